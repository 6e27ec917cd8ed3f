// Package certid mints public identifiers of the form
// <prefix>_<unix millis>_<9 base36 chars>.
package certid

import (
	"crypto/rand"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	CertificatePrefix = "cert"
	ApplicationPrefix = "app"

	randomLength = 9
	alphabet     = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// Older certificates carry a random part shorter than the nine characters
// minted today, so any length up to nine is accepted.
var certificatePattern = regexp.MustCompile(`^cert_[0-9]+_[0-9a-z]{1,9}$`)

// Minter produces fresh identifiers. Implementations must not embed any
// personal data.
type Minter interface {
	Mint() (string, error)
}

type Generator struct {
	prefix  string
	now     func() time.Time
	entropy io.Reader
}

type Option func(*Generator)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithEntropy replaces the random source (crypto/rand by default).
func WithEntropy(r io.Reader) Option {
	return func(g *Generator) { g.entropy = r }
}

func New(prefix string, opts ...Option) *Generator {
	g := &Generator{
		prefix:  prefix,
		now:     time.Now,
		entropy: rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Mint() (string, error) {
	suffix, err := randomString(g.entropy, randomLength)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.Grow(len(g.prefix) + 1 + 13 + 1 + randomLength)
	b.WriteString(g.prefix)
	b.WriteByte('_')
	b.WriteString(strconv.FormatInt(g.now().UnixMilli(), 10))
	b.WriteByte('_')
	b.WriteString(suffix)
	return b.String(), nil
}

// randomString draws n characters from alphabet without modulo bias.
func randomString(r io.Reader, n int) (string, error) {
	const limit = 256 - 256%len(alphabet)
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, c := range buf {
			if int(c) >= limit {
				continue
			}
			out = append(out, alphabet[int(c)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// Valid reports whether id looks like a certificate identifier.
func Valid(id string) bool {
	return certificatePattern.MatchString(id)
}

// IssuedAt extracts the timestamp component of an identifier.
func IssuedAt(id string) (time.Time, bool) {
	parts := strings.Split(id, "_")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

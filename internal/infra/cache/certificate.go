package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/tadcs/certportal/internal/domain"
)

const memcacheKeyPrefix = "certportal:cert:"

// TombstoneTTL bounds how long an invalidated id refuses new entries. A
// lookup that read the store before the invalidation has this long to try
// writing its result back.
const TombstoneTTL = 30 * time.Second

var tombstoneValue = []byte("-")

type tombstone struct{}

// CertificateCache holds verified projections in memcached when a client is
// given, otherwise in process memory. Entries are never kept in both, so an
// invalidation on one instance is seen by every other instance.
//
// Set only adds missing keys and Invalidate leaves a tombstone behind, so a
// lookup racing an amend or remove cannot put the old view back.
type CertificateCache struct {
	local     *gocache.Cache
	mc        *memcache.Client
	ttl       time.Duration
	tombstone time.Duration
	logger    *zap.Logger
}

func NewCertificateCache(mc *memcache.Client, ttl time.Duration, logger *zap.Logger) *CertificateCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CertificateCache{
		local:     gocache.New(ttl, 2*ttl),
		mc:        mc,
		ttl:       ttl,
		tombstone: TombstoneTTL,
		logger:    logger.With(zap.String("module", "certificate-cache")),
	}
}

func (c *CertificateCache) Get(ctx context.Context, certificateID string) (domain.VerifiedCertificate, bool) {
	if c.mc == nil {
		cached, found := c.local.Get(certificateID)
		if !found {
			return domain.VerifiedCertificate{}, false
		}
		view, ok := cached.(domain.VerifiedCertificate)
		return view, ok
	}

	item, err := c.mc.Get(memcacheKeyPrefix + certificateID)
	if err != nil {
		if err != memcache.ErrCacheMiss {
			c.logger.Debug("memcached get failed", zap.Error(err))
		}
		return domain.VerifiedCertificate{}, false
	}
	if bytes.Equal(item.Value, tombstoneValue) {
		return domain.VerifiedCertificate{}, false
	}

	var view domain.VerifiedCertificate
	if err := json.Unmarshal(item.Value, &view); err != nil {
		c.logger.Warn("dropping undecodable cache entry", zap.String("certificateId", certificateID))
		_ = c.mc.Delete(item.Key)
		return domain.VerifiedCertificate{}, false
	}
	return view, true
}

func (c *CertificateCache) Set(ctx context.Context, view domain.VerifiedCertificate) {
	if c.mc == nil {
		// fails while an entry or tombstone exists
		_ = c.local.Add(view.CertificateID, view, gocache.DefaultExpiration)
		return
	}

	value, err := json.Marshal(view)
	if err != nil {
		return
	}
	err = c.mc.Add(&memcache.Item{
		Key:        memcacheKeyPrefix + view.CertificateID,
		Value:      value,
		Expiration: int32(c.ttl.Seconds()),
	})
	if err != nil && err != memcache.ErrNotStored {
		c.logger.Debug("memcached set failed", zap.Error(err))
	}
}

func (c *CertificateCache) Invalidate(ctx context.Context, certificateID string) {
	if c.mc == nil {
		c.local.Set(certificateID, tombstone{}, c.tombstone)
		return
	}
	err := c.mc.Set(&memcache.Item{
		Key:        memcacheKeyPrefix + certificateID,
		Value:      tombstoneValue,
		Expiration: int32(c.tombstone.Seconds()),
	})
	if err != nil {
		c.logger.Warn("memcached invalidate failed", zap.String("certificateId", certificateID), zap.Error(err))
		// without a tombstone, at least drop the entry
		_ = c.mc.Delete(memcacheKeyPrefix + certificateID)
	}
}

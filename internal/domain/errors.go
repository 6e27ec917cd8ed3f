package domain

import (
	"fmt"
	"sort"
	"strings"
)

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

// AuthorizationError is returned for a missing or expired admin session and
// for bad credentials.
type AuthorizationError struct {
	Reason string
}

func (e AuthorizationError) Error() string {
	if e.Reason == "" {
		return "unauthorized"
	}
	return "unauthorized: " + e.Reason
}

func (e AuthorizationError) Is(target error) bool {
	_, ok := target.(AuthorizationError)
	return ok
}

var ErrUnauthorized = AuthorizationError{}

// StorageError wraps a failure of the backing store.
type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e StorageError) Unwrap() error { return e.Err }

func (e StorageError) Is(target error) bool {
	_, ok := target.(StorageError)
	return ok
}

var ErrStorage = StorageError{}

// MintError is returned when no unused certificate identifier could be found.
type MintError struct {
	Attempts int
	Err      error
}

func (e MintError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("certificate id minting failed after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("certificate id minting failed after %d attempts", e.Attempts)
}

func (e MintError) Unwrap() error { return e.Err }

func (e MintError) Is(target error) bool {
	_, ok := target.(MintError)
	return ok
}

var ErrMint = MintError{}

// InvalidTransitionError rejects a status change out of a terminal status.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("application is %s and cannot become %s", e.From, e.To)
}

func (e InvalidTransitionError) Is(target error) bool {
	_, ok := target.(InvalidTransitionError)
	return ok
}

var ErrInvalidTransition = InvalidTransitionError{}

// ValidationError carries per-field problems with caller input.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return e.Message + " (" + strings.Join(parts, ", ") + ")"
}

func (e ValidationError) Is(target error) bool {
	_, ok := target.(ValidationError)
	return ok
}

var ErrValidation = ValidationError{}

type VerificationReason string

const (
	VerificationNotFound    VerificationReason = "not_found"
	VerificationNotApproved VerificationReason = "not_approved"
)

// VerificationError is the negative result of the public certificate lookup.
type VerificationError struct {
	Reason VerificationReason
}

func (e VerificationError) Error() string {
	switch e.Reason {
	case VerificationNotApproved:
		return "certificate has not been approved yet"
	default:
		return "certificate not found"
	}
}

// Is matches any VerificationError when target has no reason, otherwise
// only the same reason.
func (e VerificationError) Is(target error) bool {
	t, ok := target.(VerificationError)
	if !ok {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

var (
	ErrVerification           = VerificationError{}
	ErrCertificateNotFound    = VerificationError{Reason: VerificationNotFound}
	ErrCertificateNotApproved = VerificationError{Reason: VerificationNotApproved}
)

package usecase

import (
	"context"
	"time"

	"github.com/tadcs/certportal/internal/domain"
)

// ApplicationRepository is the application store.
type ApplicationRepository interface {
	Create(ctx context.Context, app domain.Application) (domain.Application, error)
	Get(ctx context.Context, id string) (domain.Application, error)
	List(ctx context.Context, filter domain.ApplicationFilter) ([]domain.Application, error)
	// Decide sets the lifecycle fields of a pending application. It returns
	// false when the record was no longer pending.
	Decide(ctx context.Context, id string, decision Decision) (bool, error)
	Amend(ctx context.Context, id string, patch domain.FieldPatch, updatedAt time.Time) error
	Delete(ctx context.Context, id string) error
	CertificateExists(ctx context.Context, certificateID string) (bool, error)
	Count(ctx context.Context) (domain.Stats, error)
}

// Decision is the single write performed by a status transition.
type Decision struct {
	Status        domain.Status
	CertificateID *string
	ApprovedAt    *time.Time
	ApprovedBy    *string
	UpdatedAt     time.Time
}

// AdminRepository is the admin directory.
type AdminRepository interface {
	FindByEmail(ctx context.Context, email string) (domain.Admin, error)
	Upsert(ctx context.Context, admin domain.Admin) error
}

// SessionStore keeps issued admin sessions.
type SessionStore interface {
	Save(ctx context.Context, session domain.AdminSession) error
	Get(ctx context.Context, token string) (domain.AdminSession, error)
	Delete(ctx context.Context, token string) error
}

// CertificateCache holds approved projections for the public lookup. Set
// must not overwrite an existing key, and Invalidate must keep the key
// closed to Set for a while, so a lookup that read the store before an
// amend or remove cannot cache the old view.
type CertificateCache interface {
	Get(ctx context.Context, certificateID string) (domain.VerifiedCertificate, bool)
	Set(ctx context.Context, view domain.VerifiedCertificate)
	Invalidate(ctx context.Context, certificateID string)
}

// EventPublisher fans lifecycle events out to the admin realtime feed.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Clock is injected so tests can pin timestamps.
type Clock func() time.Time

// Authorizer validates the admin session token passed into admin operations.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (domain.AdminSession, error)
}

// DocumentRenderer turns an approved certificate into downloadable artifacts.
type DocumentRenderer interface {
	QRCode(certificateID string) ([]byte, error)
	CertificatePDF(view domain.VerifiedCertificate, qrPNG []byte) ([]byte, error)
}

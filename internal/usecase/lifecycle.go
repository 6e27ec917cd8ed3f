package usecase

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/tadcs/certportal/internal/certid"
	"github.com/tadcs/certportal/internal/domain"
)

var tracer = otel.Tracer("usecase")

const DefaultMintAttempts = 3

// LifecycleUsecase owns every admin-side mutation of an application.
type LifecycleUsecase struct {
	repo         ApplicationRepository
	auth         Authorizer
	minter       certid.Minter
	cache        CertificateCache
	events       EventPublisher
	logger       *zap.Logger
	now          Clock
	mintAttempts int
}

type LifecycleOption func(*LifecycleUsecase)

func WithLifecycleClock(now Clock) LifecycleOption {
	return func(uc *LifecycleUsecase) { uc.now = now }
}

func WithMintAttempts(n int) LifecycleOption {
	return func(uc *LifecycleUsecase) {
		if n > 0 {
			uc.mintAttempts = n
		}
	}
}

func NewLifecycleUsecase(
	repo ApplicationRepository,
	auth Authorizer,
	minter certid.Minter,
	cache CertificateCache,
	events EventPublisher,
	logger *zap.Logger,
	opts ...LifecycleOption,
) *LifecycleUsecase {
	uc := &LifecycleUsecase{
		repo:         repo,
		auth:         auth,
		minter:       minter,
		cache:        cache,
		events:       events,
		logger:       logger.With(zap.String("module", "lifecycle")),
		now:          time.Now,
		mintAttempts: DefaultMintAttempts,
	}
	for _, opt := range opts {
		opt(uc)
	}
	if uc.cache == nil {
		uc.cache = noopCache{}
	}
	if uc.events == nil {
		uc.events = noopPublisher{}
	}
	return uc
}

// Transition moves a pending application to approved or rejected. Asking
// for the status a record already has returns it unchanged; asking a
// terminal record for the other terminal status fails.
func (uc *LifecycleUsecase) Transition(ctx context.Context, token, id string, target domain.Status) (domain.Application, error) {
	ctx, span := tracer.Start(ctx, "Lifecycle.Transition")
	defer span.End()
	span.SetAttributes(attribute.String("applicationId", id), attribute.String("target", string(target)))

	session, err := uc.auth.Authorize(ctx, token)
	if err != nil {
		span.RecordError(err)
		return domain.Application{}, err
	}

	if target != domain.StatusApproved && target != domain.StatusRejected {
		err := domain.ValidationError{
			Message: "invalid target status",
			Fields:  map[string]string{"status": "must be approved or rejected"},
		}
		span.RecordError(err)
		return domain.Application{}, err
	}

	app, err := uc.repo.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return domain.Application{}, err
	}

	if app.Status.Terminal() {
		return settled(app, target)
	}

	now := uc.now().UTC()
	decision := Decision{
		Status:    target,
		UpdatedAt: now,
	}
	if target == domain.StatusApproved {
		certificateID, err := uc.mintCertificateID(ctx)
		if err != nil {
			span.RecordError(err)
			return domain.Application{}, err
		}
		adminID := session.AdminID
		decision.CertificateID = &certificateID
		decision.ApprovedAt = &now
		decision.ApprovedBy = &adminID
	}

	applied, err := uc.repo.Decide(ctx, id, decision)
	if err != nil {
		span.RecordError(err)
		return domain.Application{}, err
	}
	if !applied {
		// another admin decided first
		current, err := uc.repo.Get(ctx, id)
		if err != nil {
			span.RecordError(err)
			return domain.Application{}, err
		}
		uc.logger.Info("transition lost race",
			zap.String("applicationId", id),
			zap.String("target", string(target)),
			zap.String("current", string(current.Status)),
		)
		return settled(current, target)
	}

	app.Status = decision.Status
	app.CertificateID = decision.CertificateID
	app.ApprovedAt = decision.ApprovedAt
	app.ApprovedBy = decision.ApprovedBy
	app.UpdatedAt = decision.UpdatedAt

	event := domain.Event{
		Type:          domain.EventRejected,
		ApplicationID: app.ID,
		Status:        app.Status,
		Actor:         session.AdminID,
		Timestamp:     now.Unix(),
	}
	if app.Status == domain.StatusApproved {
		event.Type = domain.EventApproved
		event.CertificateID = *app.CertificateID
	}
	uc.publish(ctx, event)

	uc.logger.Info("application decided",
		zap.String("applicationId", app.ID),
		zap.String("status", string(app.Status)),
		zap.String("adminId", session.AdminID),
	)

	return app, nil
}

func settled(app domain.Application, target domain.Status) (domain.Application, error) {
	if app.Status == target {
		return app, nil
	}
	return domain.Application{}, domain.InvalidTransitionError{From: app.Status, To: target}
}

func (uc *LifecycleUsecase) mintCertificateID(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= uc.mintAttempts; attempt++ {
		candidate, err := uc.minter.Mint()
		if err != nil {
			lastErr = err
			continue
		}
		exists, err := uc.repo.CertificateExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		uc.logger.Warn("certificate id collision",
			zap.String("certificateId", candidate),
			zap.Int("attempt", attempt),
		)
	}
	return "", domain.MintError{Attempts: uc.mintAttempts, Err: lastErr}
}

// Amend changes applicant-supplied fields only.
func (uc *LifecycleUsecase) Amend(ctx context.Context, token, id string, patch domain.FieldPatch) (domain.Application, error) {
	ctx, span := tracer.Start(ctx, "Lifecycle.Amend")
	defer span.End()
	span.SetAttributes(attribute.String("applicationId", id))

	session, err := uc.auth.Authorize(ctx, token)
	if err != nil {
		span.RecordError(err)
		return domain.Application{}, err
	}

	if err := patch.Validate(); err != nil {
		span.RecordError(err)
		return domain.Application{}, err
	}

	app, err := uc.repo.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return domain.Application{}, err
	}

	now := uc.now().UTC()
	if err := uc.repo.Amend(ctx, id, patch, now); err != nil {
		span.RecordError(err)
		return domain.Application{}, err
	}

	app.ApplicantFields = patch.Apply(app.ApplicantFields)
	app.UpdatedAt = now

	if app.HasCertificate() {
		uc.cache.Invalidate(ctx, *app.CertificateID)
	}
	uc.publish(ctx, domain.Event{
		Type:          domain.EventAmended,
		ApplicationID: app.ID,
		Status:        app.Status,
		Actor:         session.AdminID,
		Timestamp:     now.Unix(),
	})

	return app, nil
}

// Remove deletes the application for good. Its certificate, if any, stops
// verifying immediately.
func (uc *LifecycleUsecase) Remove(ctx context.Context, token, id string) error {
	ctx, span := tracer.Start(ctx, "Lifecycle.Remove")
	defer span.End()
	span.SetAttributes(attribute.String("applicationId", id))

	session, err := uc.auth.Authorize(ctx, token)
	if err != nil {
		span.RecordError(err)
		return err
	}

	app, err := uc.repo.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if err := uc.repo.Delete(ctx, id); err != nil {
		span.RecordError(err)
		return err
	}

	if app.HasCertificate() {
		uc.cache.Invalidate(ctx, *app.CertificateID)
	}
	uc.publish(ctx, domain.Event{
		Type:          domain.EventRemoved,
		ApplicationID: id,
		Actor:         session.AdminID,
		Timestamp:     uc.now().Unix(),
	})

	uc.logger.Info("application removed",
		zap.String("applicationId", id),
		zap.String("adminId", session.AdminID),
	)
	return nil
}

func (uc *LifecycleUsecase) publish(ctx context.Context, event domain.Event) {
	if err := uc.events.Publish(ctx, event); err != nil {
		uc.logger.Warn("failed to publish event",
			zap.String("type", string(event.Type)),
			zap.String("applicationId", event.ApplicationID),
			zap.Error(err),
		)
	}
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) (domain.VerifiedCertificate, bool) {
	return domain.VerifiedCertificate{}, false
}
func (noopCache) Set(context.Context, domain.VerifiedCertificate) {}
func (noopCache) Invalidate(context.Context, string) {}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, domain.Event) error { return nil }

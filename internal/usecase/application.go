package usecase

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/tadcs/certportal/internal/certid"
	"github.com/tadcs/certportal/internal/domain"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// ApplicationUsecase covers submission by applicants and read access for
// admins.
type ApplicationUsecase struct {
	repo   ApplicationRepository
	auth   Authorizer
	ids    certid.Minter
	events EventPublisher
	logger *zap.Logger
	now    Clock
}

func NewApplicationUsecase(
	repo ApplicationRepository,
	auth Authorizer,
	ids certid.Minter,
	events EventPublisher,
	logger *zap.Logger,
) *ApplicationUsecase {
	if events == nil {
		events = noopPublisher{}
	}
	return &ApplicationUsecase{
		repo:   repo,
		auth:   auth,
		ids:    ids,
		events: events,
		logger: logger.With(zap.String("module", "application")),
		now:    time.Now,
	}
}

func (uc *ApplicationUsecase) Submit(ctx context.Context, userID string, fields domain.ApplicantFields) (domain.Application, error) {
	ctx, span := tracer.Start(ctx, "Application.Submit")
	defer span.End()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		err := domain.AuthorizationError{Reason: "sign in to submit an application"}
		span.RecordError(err)
		return domain.Application{}, err
	}

	fields = fields.Normalize()
	if err := fields.Validate(); err != nil {
		span.RecordError(err)
		return domain.Application{}, err
	}

	id, err := uc.ids.Mint()
	if err != nil {
		span.RecordError(err)
		return domain.Application{}, err
	}
	span.SetAttributes(attribute.String("applicationId", id))

	now := uc.now().UTC()
	created, err := uc.repo.Create(ctx, domain.Application{
		ID:              id,
		UserID:          userID,
		ApplicantFields: fields,
		Status:          domain.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		span.RecordError(err)
		return domain.Application{}, err
	}

	if err := uc.events.Publish(ctx, domain.Event{
		Type:          domain.EventSubmitted,
		ApplicationID: created.ID,
		Status:        created.Status,
		Timestamp:     now.Unix(),
	}); err != nil {
		uc.logger.Warn("failed to publish event", zap.String("applicationId", created.ID), zap.Error(err))
	}

	uc.logger.Info("application submitted", zap.String("applicationId", created.ID))
	return created, nil
}

// ListMine returns the caller's own applications, newest first.
func (uc *ApplicationUsecase) ListMine(ctx context.Context, userID string) ([]domain.Application, error) {
	ctx, span := tracer.Start(ctx, "Application.ListMine")
	defer span.End()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.AuthorizationError{Reason: "sign in to see your applications"}
	}
	return uc.repo.List(ctx, domain.ApplicationFilter{UserID: userID, Limit: MaxListLimit})
}

// List returns applications for the admin dashboard, newest first. An empty
// status or "all" lists every status.
func (uc *ApplicationUsecase) List(ctx context.Context, token string, status string, limit int) ([]domain.Application, error) {
	ctx, span := tracer.Start(ctx, "Application.List")
	defer span.End()

	if _, err := uc.auth.Authorize(ctx, token); err != nil {
		span.RecordError(err)
		return nil, err
	}

	filter := domain.ApplicationFilter{Limit: clampLimit(limit)}
	status = strings.ToLower(strings.TrimSpace(status))
	if status != "" && status != "all" {
		filter.Status = domain.Status(status)
		if !filter.Status.Valid() {
			return nil, domain.ValidationError{
				Message: "invalid status filter",
				Fields:  map[string]string{"status": "must be all, pending, approved or rejected"},
			}
		}
	}

	return uc.repo.List(ctx, filter)
}

func (uc *ApplicationUsecase) Get(ctx context.Context, token, id string) (domain.Application, error) {
	ctx, span := tracer.Start(ctx, "Application.Get")
	defer span.End()

	if _, err := uc.auth.Authorize(ctx, token); err != nil {
		span.RecordError(err)
		return domain.Application{}, err
	}
	return uc.repo.Get(ctx, id)
}

func (uc *ApplicationUsecase) Stats(ctx context.Context, token string) (domain.Stats, error) {
	ctx, span := tracer.Start(ctx, "Application.Stats")
	defer span.End()

	if _, err := uc.auth.Authorize(ctx, token); err != nil {
		span.RecordError(err)
		return domain.Stats{}, err
	}
	return uc.repo.Count(ctx)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

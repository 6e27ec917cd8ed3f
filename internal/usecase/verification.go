package usecase

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/tadcs/certportal/internal/certid"
	"github.com/tadcs/certportal/internal/domain"
)

// VerificationUsecase is the only read path of the public surface. It never
// writes to the store.
type VerificationUsecase struct {
	repo   ApplicationRepository
	cache  CertificateCache
	logger *zap.Logger
}

func NewVerificationUsecase(repo ApplicationRepository, cache CertificateCache, logger *zap.Logger) *VerificationUsecase {
	if cache == nil {
		cache = noopCache{}
	}
	return &VerificationUsecase{
		repo:   repo,
		cache:  cache,
		logger: logger.With(zap.String("module", "verification")),
	}
}

func (uc *VerificationUsecase) Resolve(ctx context.Context, certificateID string) (domain.VerifiedCertificate, error) {
	ctx, span := tracer.Start(ctx, "Verification.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("certificateId", certificateID))

	if !certid.Valid(certificateID) {
		return domain.VerifiedCertificate{}, domain.ErrCertificateNotFound
	}

	if view, ok := uc.cache.Get(ctx, certificateID); ok {
		span.SetAttributes(attribute.Bool("cached", true))
		return view, nil
	}

	matches, err := uc.repo.List(ctx, domain.ApplicationFilter{CertificateID: certificateID, Limit: 2})
	if err != nil {
		span.RecordError(err)
		return domain.VerifiedCertificate{}, err
	}

	switch len(matches) {
	case 0:
		return domain.VerifiedCertificate{}, domain.ErrCertificateNotFound
	case 1:
	default:
		uc.logger.Error("certificate id bound to several applications",
			zap.String("certificateId", certificateID),
			zap.Int("matches", len(matches)),
		)
	}

	app := matches[0]
	if app.Status != domain.StatusApproved {
		return domain.VerifiedCertificate{}, domain.ErrCertificateNotApproved
	}

	view := domain.NewVerifiedCertificate(app)
	uc.cache.Set(ctx, view)
	return view, nil
}

// IsNegative reports whether err is a verification miss rather than a
// failure of the lookup itself.
func IsNegative(err error) bool {
	return errors.Is(err, domain.ErrVerification)
}

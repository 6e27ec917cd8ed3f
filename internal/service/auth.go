package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/tadcs/certportal/internal/domain"
	"github.com/tadcs/certportal/internal/usecase"
)

var tracer = otel.Tracer("auth")

// AuthService issues and checks admin sessions. It implements
// usecase.Authorizer.
type AuthService struct {
	admins   usecase.AdminRepository
	sessions usecase.SessionStore
	logger   *zap.Logger
	ttl      time.Duration
	now      func() time.Time
}

func NewAuthService(
	admins usecase.AdminRepository,
	sessions usecase.SessionStore,
	logger *zap.Logger,
	ttl time.Duration,
) *AuthService {
	if ttl <= 0 {
		ttl = domain.SessionTTL
	}
	return &AuthService{
		admins:   admins,
		sessions: sessions,
		logger:   logger.With(zap.String("module", "auth")),
		ttl:      ttl,
		now:      time.Now,
	}
}

const BootstrapAdminID = "admin_001"

var errBadCredentials = domain.AuthorizationError{Reason: "invalid email or password"}

func (s *AuthService) Login(ctx context.Context, email, password string) (domain.AdminSession, error) {
	ctx, span := tracer.Start(ctx, "Auth.Service.Login")
	defer span.End()

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return domain.AdminSession{}, errBadCredentials
	}

	admin, err := s.admins.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// burn comparable time so unknown emails are not distinguishable
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			span.RecordError(errBadCredentials)
			return domain.AdminSession{}, errBadCredentials
		}
		span.RecordError(errors.Wrap(err, "admin lookup failed"))
		return domain.AdminSession{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("admin login rejected", zap.String("email", email))
		span.RecordError(errBadCredentials)
		return domain.AdminSession{}, errBadCredentials
	}

	token, err := newToken()
	if err != nil {
		span.RecordError(err)
		return domain.AdminSession{}, errors.Wrap(err, "generate session token")
	}

	now := s.now().UTC()
	session := domain.AdminSession{
		Token:     token,
		AdminID:   admin.ID,
		Email:     admin.Email,
		LoginTime: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		span.RecordError(err)
		return domain.AdminSession{}, err
	}

	span.SetAttributes(attribute.String("adminId", admin.ID))
	s.logger.Info("admin logged in", zap.String("adminId", admin.ID))
	return session, nil
}

// Authorize resolves a bearer token to a live session.
func (s *AuthService) Authorize(ctx context.Context, token string) (domain.AdminSession, error) {
	ctx, span := tracer.Start(ctx, "Auth.Service.Authorize")
	defer span.End()

	if token == "" {
		err := domain.AuthorizationError{Reason: "admin session required"}
		span.RecordError(err)
		return domain.AdminSession{}, err
	}

	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			err := domain.AuthorizationError{Reason: "admin session expired or unknown"}
			span.RecordError(err)
			return domain.AdminSession{}, err
		}
		span.RecordError(err)
		return domain.AdminSession{}, err
	}

	if session.Expired(s.now()) {
		_ = s.sessions.Delete(ctx, token)
		err := domain.AuthorizationError{Reason: "admin session expired"}
		span.RecordError(err)
		return domain.AdminSession{}, err
	}

	span.SetAttributes(attribute.String("adminId", session.AdminID))
	return session, nil
}

func (s *AuthService) Logout(ctx context.Context, token string) error {
	ctx, span := tracer.Start(ctx, "Auth.Service.Logout")
	defer span.End()

	if _, err := s.Authorize(ctx, token); err != nil {
		return err
	}
	return s.sessions.Delete(ctx, token)
}

// Bootstrap writes the configured administrator. The account keeps a fixed
// id, so a changed email or password in the config replaces the old one.
func (s *AuthService) Bootstrap(ctx context.Context, email, name, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return errors.New("admin email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hash admin password")
	}
	err = s.admins.Upsert(ctx, domain.Admin{
		ID:           BootstrapAdminID,
		Email:        email,
		Name:         name,
		Role:         "admin",
		PasswordHash: string(hash),
	})
	if err != nil {
		return errors.Wrap(err, "bootstrap admin")
	}
	s.logger.Info("admin account ready", zap.String("adminId", BootstrapAdminID), zap.String("email", email))
	return nil
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("certportal-dummy"), bcrypt.MinCost)

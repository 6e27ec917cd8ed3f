package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tadcs/certportal/internal/certid"
	"github.com/tadcs/certportal/internal/domain"
	"github.com/tadcs/certportal/internal/infra/cache"
	"github.com/tadcs/certportal/internal/infra/database"
	"github.com/tadcs/certportal/internal/infra/render"
	"github.com/tadcs/certportal/internal/infra/repository"
	"github.com/tadcs/certportal/internal/service"
	"github.com/tadcs/certportal/internal/usecase"
)

const adminPassword = "correct horse"

type testServer struct {
	e       *echo.Echo
	repo    *repository.ApplicationRepository
	handler *Handler
}

func newTestServer(t *testing.T, options Options) *testServer {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.Open(database.DriverSQLite, filepath.Join(t.TempDir(), "certportal.db"), logger)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	appRepo := repository.NewApplicationRepository(db)
	auth := service.NewAuthService(repository.NewAdminRepository(db), repository.NewMemorySessionStore(), logger, 0)
	require.NoError(t, auth.Bootstrap(context.Background(), "admin@tadcs.in", "System Administrator", adminPassword))

	certCache := cache.NewCertificateCache(nil, time.Minute, logger)
	verification := usecase.NewVerificationUsecase(appRepo, certCache, logger)
	handler := NewHandler(
		usecase.NewApplicationUsecase(appRepo, auth, certid.New(certid.ApplicationPrefix), nil, logger),
		usecase.NewLifecycleUsecase(appRepo, auth, certid.New(certid.CertificatePrefix), certCache, nil, logger),
		verification,
		usecase.NewDocumentUsecase(verification, appRepo, auth, render.NewRenderer("https://verify.example.org", "")),
		auth,
		nil,
		options,
		logger,
	)

	e := echo.New()
	handler.RegisterRoutes(e)
	return &testServer{e: e, repo: appRepo, handler: handler}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T) map[string]string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/admin/login", map[string]string{
		"email":    "admin@tadcs.in",
		"password": adminPassword,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var session domain.AdminSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	require.NotEmpty(t, session.Token)
	return map[string]string{"Authorization": "Bearer " + session.Token}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func applicationBody(name string) map[string]string {
	return map[string]string{
		"name":         name,
		"email":        "asha@example.org",
		"collegeName":  "City College",
		"field":        "web-development",
		"duration":     "3-months",
		"startDate":    "2024-01-01",
		"endDate":      "2024-03-31",
		"projectTitle": "Portfolio",
	}
}

func (s *testServer) submit(t *testing.T, user, name string) domain.Application {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/applications", applicationBody(name), map[string]string{domain.ApplicantIDHeader: user})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.Application](t, rec)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCertificateLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, Options{})
	admin := s.login(t)

	a := s.submit(t, "user_a", "Asha Rao")
	assert.Equal(t, domain.StatusPending, a.Status)
	assert.Nil(t, a.CertificateID)
	b := s.submit(t, "user_b", "Ravi Kumar")

	rec := s.do(t, http.MethodGet, "/api/v1/applications/mine", nil, map[string]string{domain.ApplicantIDHeader: "user_a"})
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode[[]domain.Application](t, rec)
	require.Len(t, mine, 1)
	assert.Equal(t, a.ID, mine[0].ID)

	rec = s.do(t, http.MethodPost, "/api/v1/admin/applications/"+a.ID+"/status", map[string]string{"status": "approved"}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode[domain.Application](t, rec)
	require.NotNil(t, approved.CertificateID)
	assert.True(t, certid.Valid(*approved.CertificateID))
	certID := *approved.CertificateID

	// approving again is a no-op
	rec = s.do(t, http.MethodPost, "/api/v1/admin/applications/"+a.ID+"/status", map[string]string{"status": "approved"}, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, certID, *decode[domain.Application](t, rec).CertificateID)

	rec = s.do(t, http.MethodPost, "/api/v1/admin/applications/"+a.ID+"/status", map[string]string{"status": "rejected"}, admin)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/admin/applications/"+b.ID+"/status", map[string]string{"status": "rejected"}, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[domain.Application](t, rec).CertificateID)

	rec = s.do(t, http.MethodGet, "/certificate/"+certID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decode[map[string]any](t, rec)
	assert.Equal(t, "Asha Rao", view["name"])
	assert.Equal(t, "approved", view["status"])
	assert.NotContains(t, view, "userId")
	assert.NotContains(t, view, "approvedBy")

	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	rec = s.do(t, http.MethodGet, "/certificate/"+certID, nil, map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, rec.Code)

	rec = s.do(t, http.MethodGet, "/certificate/"+certID+"/qr.png", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))

	rec = s.do(t, http.MethodGet, "/certificate/"+certID+"/certificate.pdf", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Asha_Rao_Certificate.pdf")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF-"))

	rec = s.do(t, http.MethodGet, "/api/v1/admin/applications/"+b.ID+"/certificate.pdf", nil, admin)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/admin/stats", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.Stats{Total: 2, Approved: 1, Rejected: 1}, decode[domain.Stats](t, rec))

	rec = s.do(t, http.MethodGet, "/api/v1/admin/applications?status=approved", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Application](t, rec), 1)

	rec = s.do(t, http.MethodDelete, "/api/v1/admin/applications/"+a.ID, nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/certificate/"+certID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), undisclosedMessage)
}

func TestAdminRoutesRequireSession(t *testing.T) {
	s := newTestServer(t, Options{})
	a := s.submit(t, "user_a", "Asha Rao")

	for _, tc := range []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/api/v1/admin/applications", nil},
		{http.MethodGet, "/api/v1/admin/stats", nil},
		{http.MethodGet, "/api/v1/admin/session", nil},
		{http.MethodGet, "/api/v1/admin/applications/" + a.ID, nil},
		{http.MethodPost, "/api/v1/admin/applications/" + a.ID + "/status", map[string]string{"status": "approved"}},
		{http.MethodDelete, "/api/v1/admin/applications/" + a.ID, nil},
		{http.MethodGet, "/api/v1/admin/realtime", nil},
	} {
		rec := s.do(t, tc.method, tc.path, tc.body, map[string]string{"Authorization": "Bearer forged"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.method+" "+tc.path)
	}

	rec := s.do(t, http.MethodPost, "/api/v1/admin/login", map[string]string{"email": "admin@tadcs.in", "password": "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	got, err := s.repo.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestSessionAndLogout(t *testing.T) {
	s := newTestServer(t, Options{})
	admin := s.login(t)

	rec := s.do(t, http.MethodGet, "/api/v1/admin/session", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin@tadcs.in", decode[domain.AdminSession](t, rec).Email)

	rec = s.do(t, http.MethodPost, "/api/v1/admin/logout", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/admin/session", nil, admin)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRealtimeWithoutEventSource(t *testing.T) {
	s := newTestServer(t, Options{})
	admin := s.login(t)

	rec := s.do(t, http.MethodGet, "/api/v1/admin/realtime", nil, admin)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSubmitValidation(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.do(t, http.MethodPost, "/api/v1/applications", applicationBody("Asha Rao"), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	body := applicationBody("")
	body["email"] = "nope"
	rec = s.do(t, http.MethodPost, "/api/v1/applications", body, map[string]string{domain.ApplicantIDHeader: "user_a"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[struct {
		Fields map[string]string `json:"fields"`
	}](t, rec)
	assert.Equal(t, "required", resp.Fields["name"])
	assert.Equal(t, "invalid email", resp.Fields["email"])
}

func TestAmendOverHTTP(t *testing.T) {
	s := newTestServer(t, Options{})
	admin := s.login(t)
	a := s.submit(t, "user_a", "Asha Rao")

	rec := s.do(t, http.MethodPatch, "/api/v1/admin/applications/"+a.ID, map[string]string{"status": "approved"}, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPatch, "/api/v1/admin/applications/"+a.ID, map[string]string{"certificateId": "cert_1_aaaaaaaaa"}, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPatch, "/api/v1/admin/applications/"+a.ID, map[string]string{"mentorFeedback": "Great work"}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	amended := decode[domain.Application](t, rec)
	assert.Equal(t, "Great work", amended.MentorFeedback)
	assert.Equal(t, domain.StatusPending, amended.Status)
	assert.Nil(t, amended.CertificateID)

	rec = s.do(t, http.MethodPatch, "/api/v1/admin/applications/app_missing", map[string]string{"mentorFeedback": "x"}, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyETagFollowsAmend(t *testing.T) {
	s := newTestServer(t, Options{})
	admin := s.login(t)
	a := s.submit(t, "user_a", "Asha Rao")

	rec := s.do(t, http.MethodPost, "/api/v1/admin/applications/"+a.ID+"/status", map[string]string{"status": "approved"}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	certID := *decode[domain.Application](t, rec).CertificateID

	rec = s.do(t, http.MethodGet, "/certificate/"+certID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec = s.do(t, http.MethodGet, "/certificate/"+certID, nil, map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
	assert.Equal(t, etag, rec.Header().Get("ETag"))

	rec = s.do(t, http.MethodPatch, "/api/v1/admin/applications/"+a.ID, map[string]string{"name": "Asha R. Rao"}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/certificate/"+certID, nil, map[string]string{"If-None-Match": etag})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, etag, rec.Header().Get("ETag"))
	assert.Equal(t, "Asha R. Rao", decode[map[string]any](t, rec)["name"])

	rec = s.do(t, http.MethodDelete, "/api/v1/admin/applications/"+a.ID, nil, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/certificate/"+certID, nil, map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyDisclosure(t *testing.T) {
	anomaly := func(t *testing.T, s *testServer) string {
		id := "cert_1712052000000_k3j9x2m1q"
		_, err := s.repo.Create(context.Background(), domain.Application{
			ID:              "app_anomaly",
			UserID:          "user_x",
			ApplicantFields: domain.ApplicantFields{Name: "Pending Person"},
			Status:          domain.StatusPending,
			CertificateID:   &id,
			CreatedAt:       time.Now(),
			UpdatedAt:       time.Now(),
		})
		require.NoError(t, err)
		return id
	}

	t.Run("collapsed by default", func(t *testing.T) {
		s := newTestServer(t, Options{})
		id := anomaly(t, s)

		pending := s.do(t, http.MethodGet, "/certificate/"+id, nil, nil)
		missing := s.do(t, http.MethodGet, "/certificate/cert_1712052000000_zzzzzzzzz", nil, nil)
		assert.Equal(t, http.StatusNotFound, pending.Code)
		assert.Equal(t, http.StatusNotFound, missing.Code)
		assert.Equal(t, missing.Body.String(), pending.Body.String())

		qr := s.do(t, http.MethodGet, "/certificate/"+id+"/qr.png", nil, nil)
		assert.Equal(t, http.StatusNotFound, qr.Code)
	})

	t.Run("disclosed when enabled", func(t *testing.T) {
		s := newTestServer(t, Options{DiscloseStatus: true})
		id := anomaly(t, s)

		pending := s.do(t, http.MethodGet, "/certificate/"+id, nil, nil)
		assert.Equal(t, http.StatusNotFound, pending.Code)
		assert.Contains(t, pending.Body.String(), "not been approved yet")

		missing := s.do(t, http.MethodGet, "/certificate/not-a-certificate", nil, nil)
		assert.Equal(t, http.StatusNotFound, missing.Code)
		assert.Contains(t, missing.Body.String(), "Certificate not found")
	})
}

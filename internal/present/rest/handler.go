package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/zeebo/xxh3"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tadcs/certportal/internal/domain"
	"github.com/tadcs/certportal/internal/present/rest/middleware"
	"github.com/tadcs/certportal/internal/present/rest/presenter"
	"github.com/tadcs/certportal/internal/service"
	"github.com/tadcs/certportal/internal/usecase"
)

const undisclosedMessage = "certificate not found or not verifiable"

// EventSource feeds the admin realtime socket.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan domain.Event, error)
}

type Options struct {
	// DiscloseStatus lets the public lookup say "not approved yet" instead
	// of answering every miss the same way.
	DiscloseStatus bool
}

type Handler struct {
	applications *usecase.ApplicationUsecase
	lifecycle    *usecase.LifecycleUsecase
	verification *usecase.VerificationUsecase
	documents    *usecase.DocumentUsecase
	auth         *service.AuthService
	events       EventSource
	options      Options
	logger       *zap.Logger
}

func NewHandler(
	applications *usecase.ApplicationUsecase,
	lifecycle *usecase.LifecycleUsecase,
	verification *usecase.VerificationUsecase,
	documents *usecase.DocumentUsecase,
	auth *service.AuthService,
	events EventSource,
	options Options,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		applications: applications,
		lifecycle:    lifecycle,
		verification: verification,
		documents:    documents,
		auth:         auth,
		events:       events,
		options:      options,
		logger:       logger.With(zap.String("module", "rest")),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.handleHealth)

	api := e.Group("/api/v1", middleware.IdentifyRequester)
	api.POST("/applications", h.handleSubmit)
	api.GET("/applications/mine", h.handleListMine)

	admin := api.Group("/admin")
	admin.POST("/login", h.handleLogin)
	admin.POST("/logout", h.handleLogout)
	admin.GET("/session", h.handleSession)
	admin.GET("/stats", h.handleStats)
	admin.GET("/applications", h.handleList)
	admin.GET("/applications/:id", h.handleGet)
	admin.PATCH("/applications/:id", h.handleAmend)
	admin.DELETE("/applications/:id", h.handleRemove)
	admin.POST("/applications/:id/status", h.handleTransition)
	admin.GET("/applications/:id/certificate.pdf", h.handleAdminCertificatePDF)
	admin.GET("/realtime", h.handleRealtime)

	e.GET("/certificate/:certificateId", h.handleVerify)
	e.GET("/certificate/:certificateId/qr.png", h.handleQRCode)
	e.GET("/certificate/:certificateId/certificate.pdf", h.handleCertificatePDF)
}

func (h *Handler) handleHealth(c echo.Context) error {
	return presenter.OK(c, echo.Map{"status": "ok"})
}

// fail renders err and logs it when it is a server side failure.
func (h *Handler) fail(c echo.Context, err error) error {
	serverSide, rerr := presenter.Error(c, err)
	if serverSide {
		fields := []zap.Field{
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err),
		}
		if sc := trace.SpanContextFromContext(c.Request().Context()); sc.HasTraceID() {
			fields = append(fields, zap.String("traceId", sc.TraceID().String()))
		}
		h.logger.Error("request failed", fields...)
	}
	return rerr
}

// failPublic renders errors of the public certificate routes.
func (h *Handler) failPublic(c echo.Context, err error) error {
	if usecase.IsNegative(err) && !h.options.DiscloseStatus {
		return presenter.NotFound(c, undisclosedMessage)
	}
	if errors.Is(err, domain.ErrCertificateNotFound) {
		return presenter.NotFound(c, "Certificate not found. Please check the certificate ID.")
	}
	if errors.Is(err, domain.ErrCertificateNotApproved) {
		return presenter.NotFound(c, "This certificate has not been approved yet.")
	}
	return h.fail(c, err)
}

func (h *Handler) handleSubmit(c echo.Context) error {
	ctx := c.Request().Context()

	var fields domain.ApplicantFields
	if err := c.Bind(&fields); err != nil {
		return presenter.BadRequest(c, err)
	}

	app, err := h.applications.Submit(ctx, middleware.ApplicantID(ctx), fields)
	if err != nil {
		return h.fail(c, err)
	}
	return presenter.Created(c, app)
}

func (h *Handler) handleListMine(c echo.Context) error {
	ctx := c.Request().Context()

	apps, err := h.applications.ListMine(ctx, middleware.ApplicantID(ctx))
	if err != nil {
		return h.fail(c, err)
	}
	return presenter.OK(c, apps)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(c echo.Context) error {
	ctx := c.Request().Context()

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	session, err := h.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return h.fail(c, err)
	}
	return presenter.OK(c, session)
}

func (h *Handler) handleLogout(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.auth.Logout(ctx, middleware.AdminToken(ctx)); err != nil {
		return h.fail(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleSession(c echo.Context) error {
	ctx := c.Request().Context()

	session, err := h.auth.Authorize(ctx, middleware.AdminToken(ctx))
	if err != nil {
		return h.fail(c, err)
	}
	return presenter.OK(c, session)
}

func (h *Handler) handleStats(c echo.Context) error {
	ctx := c.Request().Context()

	stats, err := h.applications.Stats(ctx, middleware.AdminToken(ctx))
	if err != nil {
		return h.fail(c, err)
	}
	return presenter.OK(c, stats)
}

func (h *Handler) handleList(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 0
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid limit")
		}
	}

	apps, err := h.applications.List(ctx, middleware.AdminToken(ctx), c.QueryParam("status"), limit)
	if err != nil {
		return h.fail(c, err)
	}
	return presenter.OK(c, apps)
}

func (h *Handler) handleGet(c echo.Context) error {
	ctx := c.Request().Context()

	app, err := h.applications.Get(ctx, middleware.AdminToken(ctx), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return presenter.OK(c, app)
}

func (h *Handler) handleAmend(c echo.Context) error {
	ctx := c.Request().Context()

	// unknown keys such as status or certificateId are refused, not dropped
	var patch domain.FieldPatch
	decoder := json.NewDecoder(c.Request().Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&patch); err != nil {
		return presenter.BadRequest(c, err)
	}

	app, err := h.lifecycle.Amend(ctx, middleware.AdminToken(ctx), c.Param("id"), patch)
	if err != nil {
		return h.fail(c, err)
	}
	return presenter.OK(c, app)
}

func (h *Handler) handleRemove(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.lifecycle.Remove(ctx, middleware.AdminToken(ctx), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

type transitionRequest struct {
	Status domain.Status `json:"status"`
}

func (h *Handler) handleTransition(c echo.Context) error {
	ctx := c.Request().Context()

	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	app, err := h.lifecycle.Transition(ctx, middleware.AdminToken(ctx), c.Param("id"), req.Status)
	if err != nil {
		return h.fail(c, err)
	}
	return presenter.OK(c, app)
}

func (h *Handler) handleAdminCertificatePDF(c echo.Context) error {
	ctx := c.Request().Context()

	doc, err := h.documents.AdminCertificatePDF(ctx, middleware.AdminToken(ctx), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrCertificateNotApproved) {
			return presenter.Conflict(c, err)
		}
		return h.fail(c, err)
	}
	return attachment(c, doc)
}

func (h *Handler) handleVerify(c echo.Context) error {
	ctx := c.Request().Context()

	view, err := h.verification.Resolve(ctx, c.Param("certificateId"))
	if err != nil {
		return h.failPublic(c, err)
	}

	body, err := json.Marshal(view)
	if err != nil {
		return h.fail(c, err)
	}

	etag := fmt.Sprintf(`"%016x"`, xxh3.Hash(body))
	c.Response().Header().Set("ETag", etag)
	c.Response().Header().Set("Cache-Control", "no-cache")
	if c.Request().Header.Get("If-None-Match") == etag {
		return c.NoContent(http.StatusNotModified)
	}
	return c.JSONBlob(http.StatusOK, body)
}

func (h *Handler) handleQRCode(c echo.Context) error {
	ctx := c.Request().Context()

	doc, err := h.documents.QRCode(ctx, c.Param("certificateId"))
	if err != nil {
		return h.failPublic(c, err)
	}
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.FileName))
	return c.Blob(http.StatusOK, doc.ContentType, doc.Body)
}

func (h *Handler) handleCertificatePDF(c echo.Context) error {
	ctx := c.Request().Context()

	doc, err := h.documents.CertificatePDF(ctx, c.Param("certificateId"))
	if err != nil {
		return h.failPublic(c, err)
	}
	return attachment(c, doc)
}

func attachment(c echo.Context, doc usecase.Document) error {
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.FileName))
	return c.Blob(http.StatusOK, doc.ContentType, doc.Body)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type socketRequest struct {
	Type string `json:"type"`
}

func (h *Handler) handleRealtime(c echo.Context) error {
	ctx := c.Request().Context()

	// browsers cannot set headers on a websocket handshake
	token := middleware.AdminToken(ctx)
	if token == "" {
		token = c.QueryParam("token")
	}
	if _, err := h.auth.Authorize(ctx, token); err != nil {
		return h.fail(c, err)
	}
	if h.events == nil {
		return presenter.Unavailable(c, "realtime feed is not configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := h.events.Subscribe(ctx)
	if err != nil {
		h.logger.Error("failed to subscribe to events", zap.Error(err))
		return presenter.Unavailable(c, "realtime feed unavailable")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket", zap.Error(err))
		return err
	}
	defer ws.Close()

	quit := make(chan struct{})
	go func() {
		defer close(quit)
		for {
			var req socketRequest
			err := ws.ReadJSON(&req)
			if err != nil {
				wsErr, ok := err.(*websocket.CloseError)
				if ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						h.logger.Debug("websocket closed", zap.Error(wsErr))
					}
				} else {
					h.logger.Debug("error reading message", zap.Error(err))
				}
				return
			}
			if req.Type != "h" { // heartbeat
				h.logger.Info("unknown request type", zap.String("type", req.Type))
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := ws.WriteJSON(event); err != nil {
				h.logger.Debug("error writing message", zap.Error(err))
				return nil
			}
		}
	}
}

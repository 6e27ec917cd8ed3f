package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tadcs/certportal/internal/domain"
)

var tracer = otel.Tracer("auth")

// IdentifyRequester copies the caller's credentials into the request
// context. It does not validate them; admin tokens are checked by the
// operation that uses them.
func IdentifyRequester(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Auth.Middleware.IdentifyRequester")
		defer span.End()

		if token, err := bearerToken(c.Request().Header.Get(domain.AuthorizationHeader)); err != nil {
			span.RecordError(err)
		} else if token != "" {
			ctx = context.WithValue(ctx, domain.AdminTokenCtxKey, token)
		}

		if applicant := strings.TrimSpace(c.Request().Header.Get(domain.ApplicantIDHeader)); applicant != "" {
			ctx = context.WithValue(ctx, domain.ApplicantIDCtxKey, applicant)
			span.SetAttributes(attribute.String("ApplicantId", applicant))
		}

		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", nil
	}
	split := strings.Split(header, " ")
	if len(split) != 2 {
		return "", fmt.Errorf("invalid authentication header")
	}
	authType, token := split[0], split[1]
	if authType != "Bearer" {
		return "", fmt.Errorf("only Bearer is acceptable")
	}
	return token, nil
}

// AdminToken returns the bearer token captured by IdentifyRequester.
func AdminToken(ctx context.Context) string {
	token, _ := ctx.Value(domain.AdminTokenCtxKey).(string)
	return token
}

// ApplicantID returns the applicant identity captured by IdentifyRequester.
func ApplicantID(ctx context.Context) string {
	id, _ := ctx.Value(domain.ApplicantIDCtxKey).(string)
	return id
}

package presenter

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tadcs/certportal/internal/domain"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// OK wraps a successful response.
func OK(c echo.Context, payload any) error {
	return c.JSON(http.StatusOK, payload)
}

func Created(c echo.Context, payload any) error {
	return c.JSON(http.StatusCreated, payload)
}

func BadRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func BadRequestMessage(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func Unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, errorResponse{Error: msg})
}

func NotFound(c echo.Context, msg string) error {
	return c.JSON(http.StatusNotFound, errorResponse{Error: msg})
}

func Conflict(c echo.Context, err error) error {
	return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
}

func Unavailable(c echo.Context, msg string) error {
	return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: msg})
}

func InternalError(c echo.Context) error {
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

// Error maps a usecase error onto its HTTP status. It reports whether the
// error was a server side failure worth logging.
func Error(c echo.Context, err error) (bool, error) {
	var validation domain.ValidationError
	switch {
	case errors.As(err, &validation):
		return false, c.JSON(http.StatusBadRequest, errorResponse{Error: validation.Message, Fields: validation.Fields})
	case errors.Is(err, domain.ErrUnauthorized):
		return false, Unauthorized(c, err.Error())
	case errors.Is(err, domain.ErrVerification):
		return false, NotFound(c, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return false, NotFound(c, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		return false, Conflict(c, err)
	case errors.Is(err, domain.ErrStorage):
		return true, Unavailable(c, "storage unavailable")
	default:
		return true, InternalError(c)
	}
}

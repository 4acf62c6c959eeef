package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperr "github.com/BogBogdan/ot-node/internal/pkg/errors"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAppError picks the status from the error's class and the code from its kind.
func RespondAppError(c *gin.Context, err error) {
	status := StatusFor(err)
	code := apperr.KindOf(err, "")
	if code == "" {
		code = http.StatusText(status)
	}
	RespondError(c, status, code, err)
}

func StatusFor(err error) int {
	switch {
	case apperr.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case apperr.Is(err, apperr.ErrInvalidArgument):
		return http.StatusBadRequest
	case apperr.Is(err, apperr.ErrPolicy):
		return http.StatusForbidden
	case apperr.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized
	case apperr.Is(err, apperr.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}

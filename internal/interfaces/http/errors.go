package httpinterface

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tdex-network/escrowd/internal/core/application/escrow"
	"github.com/tdex-network/escrowd/internal/core/domain"
)

const statusNoop = "noop"

var errMissingActor = errors.New("missing actor, set the X-Actor-Id header")

func invalidBody(err error) error {
	return fmt.Errorf("%w: invalid request body: %s", domain.ErrValidation, err)
}

// httpStatus maps the error categories of the engine to http status codes.
func httpStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrTicketNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return http.StatusConflict, statusNoop
	case errors.Is(err, domain.ErrAuthorization):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, escrow.ErrServiceStopped),
		errors.Is(err, escrow.ErrPriceUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func abortWithError(c *gin.Context, err error) {
	status, code := httpStatus(err)
	c.AbortWithStatusJSON(status, gin.H{
		"error":   code,
		"message": err.Error(),
	})
}

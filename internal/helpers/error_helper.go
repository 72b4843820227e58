package helpers

import (
	"errors"
	"log"
	"net/http"

	"github.com/farellandr/rifa/internal/services"
	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Error           string `json:"error"`
	Message         string `json:"message"`
	ConflictNumbers []int  `json:"conflict_numbers,omitempty"`
}

func HTTPStatusText(code int) string {
	return http.StatusText(code)
}

func RespondWithError(c *gin.Context, statusCode int, customMessage string) {
	c.JSON(statusCode, ErrorResponse{
		Error:   HTTPStatusText(statusCode),
		Message: customMessage,
	})
}

// RespondWithServiceError maps engine errors onto HTTP statuses. Anything
// unrecognised is logged and reported as a 500.
func RespondWithServiceError(c *gin.Context, err error) {
	var (
		validationErr *services.ValidationError
		conflictErr   *services.ConflictError
		rateErr       *services.RateLimitError
		gatewayErr    *services.GatewayError
		notFoundErr   *services.NotFoundError
		stateErr      *services.StateError
	)
	switch {
	case errors.As(err, &validationErr):
		RespondWithError(c, http.StatusBadRequest, validationErr.Message)
	case errors.As(err, &conflictErr):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:           HTTPStatusText(http.StatusConflict),
			Message:         "Some numbers are no longer available. Reload the page to see them.",
			ConflictNumbers: conflictErr.Numbers,
		})
	case errors.As(err, &rateErr):
		RespondWithError(c, http.StatusTooManyRequests, rateErr.Message)
	case errors.As(err, &gatewayErr):
		RespondWithError(c, http.StatusBadGateway, "Could not create the payment. Please try again.")
	case errors.As(err, &notFoundErr):
		RespondWithError(c, http.StatusNotFound, notFoundErr.Error())
	case errors.As(err, &stateErr):
		RespondWithError(c, http.StatusConflict, stateErr.Error())
	default:
		log.Printf("[http] %s %s: %v", c.Request.Method, c.FullPath(), err)
		RespondWithError(c, http.StatusInternalServerError, "Internal error.")
	}
}

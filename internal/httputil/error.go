package httputil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/verenigingen/boekhouden-import/internal/models"
)

// HTTPError is used for error responses that contain a body.
type HTTPError struct {
	Error string `json:"error" example:"there is no import run matching your query"`
}

// NewError writes an error response with the given status.
func NewError(c *gin.Context, status int, err error) {
	c.JSON(status, HTTPError{
		Error: err.Error(),
	})
}

// InvalidUUID writes the response for an unparseable resource id.
func InvalidUUID(c *gin.Context) {
	NewError(c, http.StatusBadRequest, errors.New("the specified resource ID is not a valid UUID"))
}

// ErrorHandler translates the model errors to HTTP responses. Unknown
// errors become a 500 carrying the request id so the log line can be found.
func ErrorHandler(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrResourceNotFound):
		NewError(c, http.StatusNotFound, err)

	case errors.Is(err, models.ErrRunActiveForCompany),
		errors.Is(err, models.ErrMutationIDNotUnique),
		errors.Is(err, models.ErrInvoiceNumberNotUnique),
		errors.Is(err, models.ErrAccountCodeNotUnique),
		errors.Is(err, models.ErrPartyNotUnique):
		NewError(c, http.StatusConflict, err)

	case errors.Is(err, models.ErrRunNotCancellable),
		errors.Is(err, models.ErrDocumentNotSubmittable),
		errors.Is(err, models.ErrDocumentNotCancellable),
		errors.Is(err, models.ErrAllocationExceedsAmount):
		NewError(c, http.StatusBadRequest, err)

	default:
		log.Error().Str("request-id", requestid.Get(c)).Msgf("%T: %v", err, err.Error())
		NewError(c, http.StatusInternalServerError, fmt.Errorf("an error occurred on the server during your request, the request id is '%v'", requestid.Get(c)))
	}
}

// BindError writes the response for an unparseable request body.
func BindError(c *gin.Context, err error) {
	NewError(c, http.StatusBadRequest, fmt.Errorf("the request body is not valid: %w", err))
}

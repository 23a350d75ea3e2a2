package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/DaDevFox/task-systems/demand-core/internal/domain"
)

// APIError is the body of every failed request
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope wraps APIError under an "error" key
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

const (
	codeInvalidRequest    = "invalid_request"
	codeInvalidArgument   = "invalid_argument"
	codeNotFound          = "not_found"
	codeAlreadyReconciled = "already_reconciled"
	codeInternal          = "internal"
)

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

// respondServiceError maps a service error onto its HTTP status. Internal
// failures are logged and answered without detail.
func (h *Handler) respondServiceError(c *gin.Context, err error) {
	var (
		invalid           *domain.ValidationError
		unknownCategory   *domain.UnknownCategoryError
		itemNotFound      *domain.InventoryItemNotFoundError
		predictionMissing *domain.PredictionNotFoundError
	)

	switch {
	case errors.As(err, &invalid), errors.As(err, &unknownCategory):
		respondError(c, http.StatusBadRequest, codeInvalidArgument, err)
	case errors.As(err, &itemNotFound), errors.As(err, &predictionMissing):
		respondError(c, http.StatusNotFound, codeNotFound, err)
	case errors.Is(err, domain.ErrAlreadyReconciled):
		respondError(c, http.StatusConflict, codeAlreadyReconciled, err)
	default:
		h.logger.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("request failed")
		respondError(c, http.StatusInternalServerError, codeInternal, errors.New("internal error"))
	}
}

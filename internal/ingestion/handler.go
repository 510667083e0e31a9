package ingestion

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
	httperr "github.com/aevon-lab/adselect/internal/core/errors"
	"github.com/aevon-lab/adselect/internal/core/storage"
	"github.com/gin-gonic/gin"
)

const (
	msgReadBodyFailed = "Failed to read request body"
	msgInvalidJSON    = "Invalid JSON body"
	msgPersistFailed  = "Failed to persist impression"
	msgDuplicateEvent = "Impression already exists"
)

// ingestionError carries the structured HTTP error shape from a helper back to the handler.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *ingestionError) Error() string {
	return e.message
}

// IngestHandler handles POST /v1/impressions. The response is sent after the delta is applied.
func (s *Service) IngestHandler(c *gin.Context) {
	imp, payloadSize, ierr := s.parseImpression(c)
	if ierr != nil {
		writeError(c, ierr)
		return
	}

	res, err := s.Accept(c.Request.Context(), imp)
	if err != nil {
		writeError(c, classify(imp, err))
		return
	}

	slog.Debug("[Ingestion] Impression accepted",
		"event_id", imp.EventID,
		"banner_id", imp.BannerID,
		"keywords", len(imp.Keywords),
		"payload_size", payloadSize,
		"applied", res.Applied,
	)

	c.JSON(http.StatusAccepted, gin.H{
		"status":           "accepted",
		"applied":          res.Applied,
		"snapshot_version": res.Version,
	})
}

// parseImpression reads the size-limited body and binds it into an Impression.
func (s *Service) parseImpression(c *gin.Context) (*v1.Impression, int, *ingestionError) {
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("[Ingestion] Failed to read request body", "error", err)
		return nil, 0, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("[Ingestion] Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	var imp v1.Impression
	if err := c.ShouldBindJSON(&imp); err != nil {
		slog.Warn("[Ingestion] Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}
	return &imp, len(bodyBytes), nil
}

// classify maps an Accept error onto the HTTP error shape.
func classify(imp *v1.Impression, err error) *ingestionError {
	var verr *v1.ValidationError
	switch {
	case errors.As(err, &verr):
		slog.Warn("[Ingestion] Impression validation failed", "error", err, "event_id", imp.EventID)
		return &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidRequestError,
			message:    err.Error(),
			details:    map[string]string{"field": verr.Field},
		}
	case errors.Is(err, storage.ErrDuplicate):
		slog.Info("[Ingestion] Duplicate impression rejected", "event_id", imp.EventID)
		return &ingestionError{
			statusCode: http.StatusConflict,
			errorType:  httperr.HttpDuplicateEventError,
			message:    msgDuplicateEvent,
		}
	default:
		slog.Error("[Ingestion] Failed to persist impression", "error", err, "event_id", imp.EventID)
		return &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgPersistFailed,
		}
	}
}

// writeError serializes an ingestionError as the JSON HTTP response.
func writeError(c *gin.Context, err *ingestionError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}

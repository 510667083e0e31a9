package errors

const (
	HttpInternalError       = "internal_error"
	HttpInvalidJsonError    = "invalid_json"
	HttpInvalidRequestError = "invalid_request"
	HttpDuplicateEventError = "duplicate_event"
	HttpNotFoundError       = "not_found"
	HttpRebuildFailedError  = "rebuild_failed"
)

// ErrorResponse is the error response body for every REST endpoint.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

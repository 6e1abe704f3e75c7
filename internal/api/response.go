package api

import (
	"net/http"

	"itc-reconciliation-service/pkg/errors"
)

// Response is the envelope of every API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo describes a failed request
type ErrorInfo struct {
	Category   string `json:"category"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

// Error codes for failures that do not come from the service
const (
	ErrCodeBadRequest = "bad_request"
	ErrCodeInternal   = "internal_error"
)

// NewSuccessResponse creates a success response
func NewSuccessResponse(data interface{}) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(category, code, message, requestID string) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Category:  category,
			Code:      code,
			Message:   message,
			RequestID: requestID,
		},
	}
}

// StatusFor maps an error category to an HTTP status. Input problems are the
// caller's; persistence and lookup failures mean no determination was made.
func StatusFor(category errors.ErrorCategory) int {
	switch category {
	case errors.CategoryValidation, errors.CategoryParse:
		return http.StatusBadRequest
	case errors.CategoryDuplicate:
		return http.StatusConflict
	case errors.CategoryPersistence, errors.CategoryLookup:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

package openrouter

import (
	"encoding/json"
	"fmt"
)

// APIError represents a non-success response from the generation backend.
type APIError struct {
	// StatusCode is the HTTP status of the failed request.
	StatusCode int

	// Message is the provider-supplied human-readable error detail, when the
	// error body carried one.
	Message string

	// Body is the raw response body (for debugging).
	Body string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("openrouter error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("openrouter error %d: %s", e.StatusCode, e.Body)
}

// errorBody is the structured error envelope OpenRouter returns on failures.
type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// newAPIError builds an APIError from a status code and raw body, extracting
// the nested provider message when present.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Body:       string(body),
	}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Message = parsed.Error.Message
	}

	return apiErr
}

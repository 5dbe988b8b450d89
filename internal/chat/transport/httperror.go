package transport

import (
	"fmt"

	"github.com/lk2023060901/copilot-chat/internal/chat/types"
)

// NewHTTPErrorEvent converts a non-2xx response into a synthetic error
// stream event so protocol failures surface the same way server-sent
// errors do. allow_retry is derived from the retryable status list.
func NewHTTPErrorEvent(status int, statusText string, retryableStatusCodes []int) *types.StreamEvent {
	retryable := false
	for _, code := range retryableStatusCodes {
		if code == status {
			retryable = true
			break
		}
	}

	var message string
	switch {
	case status == 429:
		message = "Too many requests. Please wait a moment and try again."
	case status == 408:
		message = "Request timeout. Please try again."
	case status >= 500:
		message = "Server error occurred. Please try again."
	case status == 401:
		message = "Authentication required. Please log in again."
	case status == 403:
		message = "Access denied. You don't have permission to perform this action."
	case status == 404:
		message = "Resource not found. The requested resource could not be found."
	default:
		if statusText == "" {
			statusText = "Unknown error"
		}
		message = fmt.Sprintf("HTTP error %d: %s", status, statusText)
	}

	return &types.StreamEvent{
		Type:       types.EventError,
		Code:       types.ErrCodeHTTP,
		Message:    message,
		AllowRetry: retryable,
		HTTPStatus: status,
	}
}

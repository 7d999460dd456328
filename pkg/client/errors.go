package client

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/api/googleapi"

	"github.com/knightclub/tournament-app/pkg/calendar"
	"github.com/knightclub/tournament-app/pkg/retry"
)

// Common errors returned by the client.
var (
	// ErrInvalidLimit is returned when the requested limit is not positive.
	ErrInvalidLimit = errors.New("limit must be positive")

	// ErrUpstreamUnavailable is returned when the provider failed and no
	// cached events could be served instead.
	ErrUpstreamUnavailable = errors.New("calendar provider unavailable")
)

// UpstreamError represents a calendar provider failure with its classification.
type UpstreamError struct {
	StatusCode int
	ErrorClass retry.ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("calendar %s error (status %d): %s",
			e.ErrorClass, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("calendar %s error: %s", e.ErrorClass, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// newUpstreamError wraps a provider error with its classification.
func newUpstreamError(err error) *UpstreamError {
	class, status := classifyError(err)
	return &UpstreamError{
		StatusCode: status,
		ErrorClass: class,
		Message:    err.Error(),
		Err:        err,
	}
}

// classifyError categorizes a provider error for observability and handling.
func classifyError(err error) (retry.ErrorClass, int) {
	if errors.Is(err, calendar.ErrSimulated) {
		return retry.ErrorClassSimulated, 0
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if class := retry.ClassifyStatus(apiErr.Code); class != "" {
			return class, apiErr.Code
		}
		return retry.ErrorClassUnknown, apiErr.Code
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return retry.ErrorClassNetwork, 0
	}

	return retry.ErrorClassUnknown, 0
}

package calendar

import (
	"context"
	"errors"
)

// ErrSimulated is returned for fetches forced to fail with WithSimulatedError.
var ErrSimulated = errors.New("simulated calendar failure")

type simulateKey struct{}

// WithSimulatedError marks ctx so that upstream calendar calls made with it fail
// with ErrSimulated. Used by the calendar route's simulateError switch to exercise
// the degraded paths without touching the real provider.
func WithSimulatedError(ctx context.Context) context.Context {
	return context.WithValue(ctx, simulateKey{}, true)
}

// SimulatedError reports whether ctx was marked by WithSimulatedError.
func SimulatedError(ctx context.Context) bool {
	v, _ := ctx.Value(simulateKey{}).(bool)
	return v
}

// Package optimizer runs a route optimization from raw addresses to a built
// route: resolve every address, order the stops, optionally re-time legs with
// traffic and aggregate the result.
package optimizer

import (
	"errors"

	"github.com/driveless/driveless/internal/validation"
)

// MaxNotesLength bounds the free-text notes of a stop.
const MaxNotesLength = 500

// ErrInvalidTransition is returned for a state change the run does not allow.
var ErrInvalidTransition = errors.New("invalid optimizer state transition")

// RouteRequest is one optimization request.
type RouteRequest struct {
	Start string
	// End is ignored when RoundTrip is set.
	End             string
	Stops           []StopInput
	ConsiderTraffic bool
	RoundTrip       bool
}

// StopInput is an intermediate stop as submitted by the caller.
type StopInput struct {
	Address string
	// Category is a category id or name; empty means the default category.
	Category string
	Notes    string
}

// FieldError describes a single invalid request field.
type FieldError = validation.FieldError

// ValidationError is returned before any network call when the request is
// malformed.
type ValidationError = validation.Error

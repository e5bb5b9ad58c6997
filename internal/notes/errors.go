package notes

import "errors"

var (
	// ErrSessionInFlight is returned by Start when a session is already
	// streaming for the same note id. Callers treat it as a no-op rather
	// than a failure; it exists so tests can tell the rejection apart
	// from a started session.
	ErrSessionInFlight = errors.New("a generation session is already streaming for this note")

	// errTimeout and errCanceled are cancellation causes, used to tell a
	// fired wall-clock timer apart from an explicit user cancel when the
	// chunk pull unblocks.
	errTimeout  = errors.New("generation timed out")
	errCanceled = errors.New("generation canceled")
)

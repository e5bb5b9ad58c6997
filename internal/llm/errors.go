package llm

import "errors"

// Error kinds surfaced to the note session. None of them are retried here;
// retrying is a caller decision.
var (
	// ErrNetwork covers transport and connection failures talking to the
	// generator.
	ErrNetwork = errors.New("generator network error")

	// ErrProtocol means the generator answered with a non-success status
	// before any streaming began.
	ErrProtocol = errors.New("generator protocol error")

	// ErrStreamUnsupported means the generator's response cannot be
	// consumed as a stream. Fatal for the session, never retried.
	ErrStreamUnsupported = errors.New("generator response is not a stream")
)

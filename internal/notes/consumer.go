package notes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/qiniu/notegen/internal/llm"
	"github.com/qiniu/notegen/internal/section"
	"github.com/qiniu/notegen/internal/store"
	"github.com/qiniu/notegen/pkg/models"

	"github.com/qiniu/x/xlog"
)

// StreamSource opens a generation stream for one request. Implemented by
// *llm.Client; an interface here so the consumer can be driven by fakes.
type StreamSource interface {
	GenerateNotes(ctx context.Context, req *models.GenerateRequest) (llm.Stream, error)
}

// Consumer drives generation streams: it pulls chunks, accumulates the raw
// buffer, re-parses the full buffer after every chunk, and publishes the
// parsed sections to the store. One Consumer serves all note ids, with at
// most one active session per id.
type Consumer struct {
	source  StreamSource
	store   store.Store
	grammar *section.Grammar
	timeout time.Duration

	mu     sync.Mutex
	active map[string]*sessionHandle
}

// sessionHandle identifies one running session, so a finished session only
// unregisters itself and never a successor that reused the same id.
type sessionHandle struct {
	cancel context.CancelCauseFunc
}

func NewConsumer(source StreamSource, st store.Store, grammar *section.Grammar, timeout time.Duration) *Consumer {
	return &Consumer{
		source:  source,
		store:   st,
		grammar: grammar,
		timeout: timeout,
		active:  make(map[string]*sessionHandle),
	}
}

// Start begins a generation session for the request and returns immediately;
// consumption runs on its own goroutine. If a session is already streaming
// for the same id, nothing happens and ErrSessionInFlight is returned.
//
// The session outlives the caller's context (an HTTP request, typically);
// only trace values are carried over.
func (c *Consumer) Start(ctx context.Context, req *models.GenerateRequest) error {
	if req == nil || req.ID == "" {
		return fmt.Errorf("generate request requires a note id")
	}

	if !c.store.Begin(req.ID) {
		return ErrSessionInFlight
	}

	runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	handle := &sessionHandle{cancel: cancel}

	c.mu.Lock()
	c.active[req.ID] = handle
	c.mu.Unlock()

	go c.consume(runCtx, req, handle)
	return nil
}

// Cancel stops the session for id at its next chunk-pull boundary. It
// reports whether a session was there to cancel. The session transitions
// back to Idle; already-parsed sections stay in the store.
func (c *Consumer) Cancel(id string) bool {
	c.mu.Lock()
	handle, ok := c.active[id]
	c.mu.Unlock()

	if !ok {
		return false
	}
	handle.cancel(errCanceled)
	return true
}

// consume is the session loop. The chunk pull is the only suspension point:
// between pulls it appends, re-parses, publishes, and goes straight back to
// pulling. Every exit path releases the stream (deferred close) and settles
// the session phase exactly once.
func (c *Consumer) consume(ctx context.Context, req *models.GenerateRequest, handle *sessionHandle) {
	xl := xlog.NewWith(ctx)
	defer c.release(req.ID, handle)

	ctx, cancelTimer := context.WithTimeoutCause(ctx, c.timeout, errTimeout)
	defer cancelTimer()

	xl.Infof("starting note generation for %s (diff %d bytes)", req.ID, len(req.Diff))

	stream, err := c.source.GenerateNotes(ctx, req)
	if err != nil {
		c.settle(ctx, req.ID, err)
		return
	}
	defer stream.Close()

	var buf strings.Builder
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			xl.Infof("note generation completed for %s (%d bytes)", req.ID, buf.Len())
			c.store.Finish(req.ID, models.PhaseCompleted, "")
			return
		}
		if err != nil {
			c.settle(ctx, req.ID, err)
			return
		}
		if ctx.Err() != nil {
			// The chunk raced the timer or an explicit cancel: discard it.
			c.settle(ctx, req.ID, ctx.Err())
			return
		}

		buf.WriteString(chunk)
		raw := buf.String()
		c.store.Update(req.ID, models.NoteUpdate{
			Sections: c.grammar.Parse(raw),
			RawText:  &raw,
		})
	}
}

// settle converts a stream failure or cancellation into the session's final
// state. Explicit cancels end Idle with no error; everything else ends
// Failed with a message for the error banner. Nothing is retried here.
func (c *Consumer) settle(ctx context.Context, id string, err error) {
	xl := xlog.NewWith(ctx)
	cause := context.Cause(ctx)

	switch {
	case errors.Is(cause, errCanceled):
		xl.Infof("note generation canceled for %s", id)
		c.store.Finish(id, models.PhaseIdle, "")
	case errors.Is(cause, errTimeout):
		xl.Warnf("note generation timed out for %s after %s", id, c.timeout)
		c.store.Finish(id, models.PhaseFailed, fmt.Sprintf("generation timed out after %s", c.timeout))
	case errors.Is(err, llm.ErrProtocol), errors.Is(err, llm.ErrNetwork), errors.Is(err, llm.ErrStreamUnsupported):
		xl.Errorf("note generation failed for %s: %v", id, err)
		c.store.Finish(id, models.PhaseFailed, err.Error())
	default:
		xl.Errorf("note generation stream broke for %s: %v", id, err)
		c.store.Finish(id, models.PhaseFailed, fmt.Sprintf("stream error: %v", err))
	}
}

func (c *Consumer) release(id string, handle *sessionHandle) {
	c.mu.Lock()
	if c.active[id] == handle {
		delete(c.active, id)
	}
	c.mu.Unlock()
}

package trace

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/qiniu/x/reqid"
)

// ID is a per-request trace id carried through contexts so every log line
// of one generation session shares a prefix.
type ID string

const prefix = "notegen"

// NewID creates a trace id for an operation kind, e.g. "generate" or
// "hook".
func NewID(kind string) ID {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return ID(fmt.Sprintf("%s_%s_%d", prefix, kind, time.Now().UnixNano()))
	}
	return ID(fmt.Sprintf("%s_%s_%x", prefix, kind, bytes))
}

// NewContext returns a context carrying an xlog logger keyed by the trace
// id. xlog.NewWith(ctx) recovers it anywhere downstream.
func NewContext(ctx context.Context, id ID) context.Context {
	return reqid.NewContext(ctx, string(id))
}

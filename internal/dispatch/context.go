package dispatch

import (
	"context"

	"github.com/google/uuid"

	"treemount/internal/inode"
)

type requestContextKey struct{}

// RequestContext carries per-request bookkeeping across one NFS/billy
// call, threaded through context.Context values so it survives goroutine
// hops when futures resume on other executor goroutines.
type RequestContext struct {
	ID InodeRequestID

	// InsideBridge marks a call the adapter issued to itself while
	// servicing another request (Remove's probe of the child's type). It
	// is set by WithBridgeCall; nothing in this package reads it.
	InsideBridge bool

	// Interrupted is closed if the server wants in-flight work for this
	// request abandoned (client disconnect, server shutdown). Long-running
	// inode calls don't currently select on it — the inode graph's own
	// operations are fast and non-blocking on network I/O — but it is
	// threaded through so a future call that does block (object-store
	// fetch over a network backend) has somewhere to listen.
	Interrupted <-chan struct{}
}

// InodeRequestID is a request's opaque identifier, a google/uuid value
// rendered as a string so it can be logged without an import cycle back
// into this package from a logging helper.
type InodeRequestID string

// NewRequestContext attaches a freshly minted RequestContext to ctx and
// marks it bridge-originated, so inode-graph mutations it drives skip the
// redundant bridge cache invalidation.
func NewRequestContext(ctx context.Context, interrupted <-chan struct{}) context.Context {
	rc := &RequestContext{ID: InodeRequestID(uuid.NewString()), Interrupted: interrupted}
	return context.WithValue(inode.WithBridgeOrigin(ctx), requestContextKey{}, rc)
}

// WithBridgeCall returns a context whose RequestContext has InsideBridge
// set, for calls the adapter makes to itself while already servicing a
// request (see Adapter.Remove's type-probing child load).
func WithBridgeCall(ctx context.Context) context.Context {
	rc, ok := FromContext(ctx)
	if !ok {
		return ctx
	}
	inner := *rc
	inner.InsideBridge = true
	return context.WithValue(ctx, requestContextKey{}, &inner)
}

// FromContext retrieves the RequestContext attached by NewRequestContext,
// if any.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok
}

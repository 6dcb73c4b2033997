package inode

import (
	"context"

	"treemount/internal/common"
)

type bridgeOriginKey struct{}

// WithBridgeOrigin marks ctx as originating from the filesystem bridge.
// The dispatch adapter applies it to every request context it mints;
// mutations running under such a context skip the explicit bridge
// cache-invalidation callback, because the bridge invalidates its own
// caches for operations it delivered itself.
func WithBridgeOrigin(ctx context.Context) context.Context {
	return context.WithValue(ctx, bridgeOriginKey{}, true)
}

// IsBridgeOrigin reports whether ctx was marked by WithBridgeOrigin.
func IsBridgeOrigin(ctx context.Context) bool {
	v, _ := ctx.Value(bridgeOriginKey{}).(bool)
	return v
}

// EntryInvalidator is the bridge's cache-invalidation callback: told that
// the (parent, name) binding changed, it must drop any cached positive or
// negative lookup entry for that name.
type EntryInvalidator func(parent InodeNumber, name common.PathComponent)

// SetEntryInvalidator registers the bridge's invalidation callback.
// Optional; a mount driven only through the bridge itself never needs it.
func (m *Map) SetEntryInvalidator(fn EntryInvalidator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidator = fn
}

// invalidateEntry notifies the bridge that parent/name changed, unless the
// mutation was delivered by the bridge in the first place.
func (m *Map) invalidateEntry(ctx context.Context, parent *TreeInode, name common.PathComponent) {
	if IsBridgeOrigin(ctx) {
		return
	}
	m.mu.Lock()
	fn := m.invalidator
	m.mu.Unlock()
	if fn != nil {
		fn(parent.Ino(), name)
	}
}

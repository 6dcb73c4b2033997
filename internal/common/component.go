package common

import (
	"sort"
	"strings"
)

// PathComponent is a single validated path segment: no slash, no NUL,
// and not "" / "." / "..".
type PathComponent string

// NewPathComponent validates name and returns it as a PathComponent.
func NewPathComponent(name string) (PathComponent, error) {
	if name == "" || name == "." || name == ".." {
		return "", ErrInvalidPath
	}
	if strings.ContainsAny(name, "/\x00") {
		return "", ErrInvalidPath
	}
	return PathComponent(name), nil
}

// RelativePath is a cleaned, slash-separated, root-relative path with no
// leading or trailing slash ("" denotes the root itself).
type RelativePath string

// NewRelativePath normalizes an arbitrary path into a RelativePath.
func NewRelativePath(path string) RelativePath {
	return RelativePath(NormalizePath(path))
}

// Components splits the path into its components. The parts are not
// re-validated, so a path holding ".." yields a ".." component.
func (p RelativePath) Components() []PathComponent {
	parts := SplitPath(string(p))
	out := make([]PathComponent, len(parts))
	for i, part := range parts {
		out[i] = PathComponent(part)
	}
	return out
}

// Parent returns the path's parent, or "" at the root.
func (p RelativePath) Parent() RelativePath {
	return RelativePath(ParentPath(string(p)))
}

// Base returns the final component of the path.
func (p RelativePath) Base() PathComponent {
	return PathComponent(BaseName(string(p)))
}

// Join appends a component to the path.
func (p RelativePath) Join(name PathComponent) RelativePath {
	return RelativePath(JoinPath(string(p), string(name)))
}

// IsAncestorOf reports whether p is a strict ancestor directory of other —
// used by the rename protocol to refuse moving a directory into its own
// descendant and to order lock acquisition (ancestors before descendants).
func (p RelativePath) IsAncestorOf(other RelativePath) bool {
	if p == other {
		return false
	}
	if p == "" {
		return other != ""
	}
	return strings.HasPrefix(string(other), string(p)+"/")
}

// PathMap is an ordered map keyed by PathComponent, kept sorted
// lexicographically by key at all times. Tree entries, Dir entries, and
// journal batches all rely on this ordering invariant.
type PathMap[V any] struct {
	keys   []PathComponent
	values map[PathComponent]V
}

// NewPathMap creates an empty ordered map.
func NewPathMap[V any]() *PathMap[V] {
	return &PathMap[V]{values: make(map[PathComponent]V)}
}

// Get returns the value for name and whether it was present.
func (m *PathMap[V]) Get(name PathComponent) (V, bool) {
	v, ok := m.values[name]
	return v, ok
}

// Set inserts or replaces the value for name, preserving sort order.
func (m *PathMap[V]) Set(name PathComponent, v V) {
	if _, exists := m.values[name]; !exists {
		idx := sort.Search(len(m.keys), func(i int) bool { return m.keys[i] >= name })
		m.keys = append(m.keys, "")
		copy(m.keys[idx+1:], m.keys[idx:])
		m.keys[idx] = name
	}
	m.values[name] = v
}

// Delete removes name from the map, if present.
func (m *PathMap[V]) Delete(name PathComponent) {
	if _, exists := m.values[name]; !exists {
		return
	}
	delete(m.values, name)
	idx := sort.Search(len(m.keys), func(i int) bool { return m.keys[i] >= name })
	if idx < len(m.keys) && m.keys[idx] == name {
		m.keys = append(m.keys[:idx], m.keys[idx+1:]...)
	}
}

// Len returns the number of entries.
func (m *PathMap[V]) Len() int { return len(m.keys) }

// Keys returns the sorted component keys. The caller must not mutate it.
func (m *PathMap[V]) Keys() []PathComponent { return m.keys }

// Range calls fn for each entry in sorted order. Range stops early if fn
// returns false.
func (m *PathMap[V]) Range(fn func(name PathComponent, v V) bool) {
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// Clone returns a shallow copy safe to mutate independently.
func (m *PathMap[V]) Clone() *PathMap[V] {
	out := &PathMap[V]{
		keys:   make([]PathComponent, len(m.keys)),
		values: make(map[PathComponent]V, len(m.values)),
	}
	copy(out.keys, m.keys)
	for k, v := range m.values {
		out.values[k] = v
	}
	return out
}

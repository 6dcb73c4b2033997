package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPathComponent(t *testing.T) {
	t.Parallel()

	_, err := NewPathComponent("foo")
	require.NoError(t, err)

	for _, bad := range []string{"", ".", "..", "foo/bar", "foo\x00"} {
		_, err := NewPathComponent(bad)
		assert.ErrorIs(t, err, ErrInvalidPath, "input %q", bad)
	}
}

func TestRelativePathIsAncestorOf(t *testing.T) {
	t.Parallel()

	root := NewRelativePath("")
	d := NewRelativePath("d")
	dInner := NewRelativePath("d/inner")

	assert.True(t, root.IsAncestorOf(d))
	assert.True(t, d.IsAncestorOf(dInner))
	assert.False(t, dInner.IsAncestorOf(d))
	assert.False(t, d.IsAncestorOf(d))
	assert.False(t, NewRelativePath("dd").IsAncestorOf(d))
}

func TestPathMapOrdering(t *testing.T) {
	t.Parallel()

	m := NewPathMap[int]()
	m.Set("c", 3)
	m.Set("a", 1)
	m.Set("b", 2)

	assert.Equal(t, []PathComponent{"a", "b", "c"}, m.Keys())

	m.Delete("b")
	assert.Equal(t, []PathComponent{"a", "c"}, m.Keys())
	_, ok := m.Get("b")
	assert.False(t, ok)

	m.Set("a", 10)
	assert.Equal(t, 2, m.Len())
	v, _ := m.Get("a")
	assert.Equal(t, 10, v)
}

func TestPathMapClone(t *testing.T) {
	t.Parallel()

	m := NewPathMap[int]()
	m.Set("a", 1)

	clone := m.Clone()
	clone.Set("b", 2)

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 2, clone.Len())
}

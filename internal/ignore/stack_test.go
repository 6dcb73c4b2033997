package ignore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"treemount/internal/common"
)

func TestStackRootRules(t *testing.T) {
	t.Parallel()

	s := Empty.Push("", []string{"*.log", "build/"})

	assert.True(t, s.Match(common.RelativePath("app.log"), false))
	assert.True(t, s.Match(common.RelativePath("build"), true))
	assert.False(t, s.Match(common.RelativePath("main.go"), false))
}

func TestStackNestedAddsRules(t *testing.T) {
	t.Parallel()

	root := Empty.Push("", []string{"*.log"})
	nested := root.Push(common.RelativePath("sub"), []string{"*.tmp"})

	// The nested layer's rule only applies under sub/, not at the root.
	assert.False(t, root.Match(common.RelativePath("other.tmp"), false))
	assert.True(t, nested.Match(common.RelativePath("sub/scratch.tmp"), false))
	assert.True(t, nested.Match(common.RelativePath("app.log"), false))
}

func TestStackIsImmutable(t *testing.T) {
	t.Parallel()

	root := Empty.Push("", []string{"*.log"})
	_ = root.Push(common.RelativePath("a"), []string{"*.tmp"})
	_ = root.Push(common.RelativePath("b"), []string{"*.bin"})

	assert.False(t, root.Match(common.RelativePath("a/x.tmp"), false))
	assert.False(t, root.Match(common.RelativePath("b/x.bin"), false))
}

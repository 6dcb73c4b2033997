// Package ignore implements the diff engine's ignore-rule stack: as the
// merge-walk in internal/inode descends into a subdirectory, it pushes that
// directory's own ignore rules onto the stack so children inherit every
// ancestor's rules without re-parsing them, and pops on the way back out.
package ignore

import (
	gitignore "github.com/sabhiram/go-gitignore"

	"treemount/internal/common"
)

// layer is one directory's compiled ignore rules, scoped to paths under
// dir.
type layer struct {
	dir     common.RelativePath
	matcher *gitignore.GitIgnore
}

// Stack is an immutable chain of ignore layers from the tree root down to
// the directory currently being visited. Pushing returns a new Stack
// sharing the unmodified prefix, so sibling subtrees can branch off the
// same parent stack without rebuilding it.
type Stack struct {
	layers []layer
}

// Empty is the root stack with no rules.
var Empty = &Stack{}

// Push compiles lines (the contents of a .gitignore-style file found in
// dir) and returns a new Stack with that layer appended. A nil or empty
// lines adds no layer, so callers can push unconditionally
// without checking whether the directory actually had an ignore file.
func (s *Stack) Push(dir common.RelativePath, lines []string) *Stack {
	next := &Stack{layers: make([]layer, len(s.layers), len(s.layers)+1)}
	copy(next.layers, s.layers)
	if len(lines) > 0 {
		next.layers = append(next.layers, layer{dir: dir, matcher: gitignore.CompileIgnoreLines(lines...)})
	}
	return next
}

// Match reports whether path (relative to the tree root) should be treated
// as ignored. isDir lets a pattern with a trailing slash ("build/") match
// the directory itself. Only layers whose directory is a strict ancestor of
// path apply. Their verdicts are combined with OR: a path is ignored if any
// applicable layer matches it. A negation pattern cancels matches only
// within its own layer, so a deeper layer cannot un-ignore a path that a
// shallower layer ignores.
func (s *Stack) Match(path common.RelativePath, isDir bool) bool {
	ignored := false
	for _, l := range s.layers {
		if l.dir != "" && !l.dir.IsAncestorOf(path) {
			continue
		}
		rel := string(path)
		if l.dir != "" {
			rel = rel[len(l.dir)+1:]
		}
		if rel == "" {
			continue
		}
		if isDir {
			rel += "/"
		}
		if l.matcher.MatchesPath(rel) {
			ignored = true
		}
	}
	return ignored
}

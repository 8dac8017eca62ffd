// Package workspace implements path restriction, unified-diff application,
// anchor-based code-block replacement, and the write-time Python guardrail,
// all scoped beneath a per-conversation directory under the workspace
// root.
//
// Grounded on claudetool/edit.go's path/command validation, on
// claudetool/patchkit/patchkit.go's fuzzy replace strategies (adapted here
// to unified-diff hunks instead of bare string search/replace), and on
// claudetool/patch.go's diff-generation call into github.com/pkg/diff.
package workspace

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Root is a conversation-scoped workspace directory: every path-bearing
// tool must resolve through it before touching disk.
type Root struct {
	// Base is the absolute directory tools may not escape, e.g.
	// "/workspace/user_42/Conversation_ab12".
	Base string
}

// Resolve normalizes p and rejects any traversal outside r.Base. It
// accepts both absolute paths (already rooted under Base, or bare) and
// relative paths (joined to Base).
func (r Root) Resolve(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	clean := filepath.Clean(p)

	var candidate string
	if filepath.IsAbs(clean) {
		if rel, err := filepath.Rel(r.Base, clean); err == nil && !strings.HasPrefix(rel, "..") {
			candidate = clean
		} else {
			// Treat an absolute path outside Base as workspace-relative by its
			// basename-preserving tail: strip any leading slash and join.
			candidate = filepath.Join(r.Base, strings.TrimPrefix(clean, string(filepath.Separator)))
		}
	} else {
		candidate = filepath.Join(r.Base, clean)
	}

	rel, err := filepath.Rel(r.Base, candidate)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", p, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes workspace root", p)
	}
	return candidate, nil
}

// OriginPath returns the stable identifier preserved alongside the
// resolved on-disk path for memory-pruning keys: the declared path as the
// model wrote it, not the resolved absolute path.
func OriginPath(declared string) string {
	return filepath.Clean(declared)
}

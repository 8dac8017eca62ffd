package workspace

import (
	"fmt"
	"strings"

	"github.com/pkg/diff"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// PatchContextMismatchError reports a hunk that could not be placed,
// declared position or otherwise.
type PatchContextMismatchError struct {
	Path   string
	Detail string
}

func (e *PatchContextMismatchError) Error() string {
	return fmt.Sprintf("Patch context mismatch in %s: %s", e.Path, e.Detail)
}

// ApplyUnifiedDiff implements patch_code: parse the unified diff's hunks
// and apply each to current, trying the declared oldStart first and
// falling back to fuzzy anchoring.
//
// Grounded on claudetool/patch.go's choice to import go-diff, which the
// source declares but (per its call sites) never exercises; diffmatchpatch's
// Patch type already parses standard "@@ -a,b +c,d @@" unified-diff hunks
// and its Patch_apply bitap matcher already implements "try the declared
// position, then search a bounded window, then globally, unique match
// only", so this wires the dependency in rather than hand-rolling an
// equivalent matcher.
func ApplyUnifiedDiff(path, current, unifiedDiff string) (string, error) {
	dmp := diffmatchpatch.New()
	// Bitap's match distance is in characters; a "±200 lines" tolerance is
	// approximated by assuming an ~80-char average line width.
	dmp.MatchDistance = 200 * 80
	dmp.PatchMargin = 4

	patches, err := dmp.PatchFromText(unifiedDiff)
	if err != nil {
		return "", &PatchContextMismatchError{Path: path, Detail: "could not parse unified diff: " + err.Error()}
	}
	if len(patches) == 0 {
		return "", &PatchContextMismatchError{Path: path, Detail: "diff contained no hunks"}
	}

	patched, applied := dmp.PatchApply(patches, current)
	var failed []string
	for i, ok := range applied {
		if !ok {
			failed = append(failed, fmt.Sprintf("hunk %d (declared @@ -%d,%d +%d,%d @@)",
				i+1, patches[i].Start1+1, patches[i].Length1, patches[i].Start2+1, patches[i].Length2))
		}
	}
	if len(failed) > 0 {
		return "", &PatchContextMismatchError{
			Path:   path,
			Detail: fmt.Sprintf("%d of %d hunks did not find a unique anchor: %s", len(failed), len(patches), strings.Join(failed, "; ")),
		}
	}
	return patched, nil
}

// GenerateUnifiedDiff renders the diff between original and patched for
// display, mirroring claudetool/patch.go's generateUnifiedDiff.
func GenerateUnifiedDiff(path, original, patched string) string {
	var buf strings.Builder
	if err := diff.Text(path, path, original, patched, &buf); err != nil {
		return fmt.Sprintf("(diff generation failed: %v)\n", err)
	}
	return buf.String()
}

package workspace

import "strings"

// NoMatchError is returned when replace_code_block's anchors could not be
// resolved to a unique location. It carries the full current file plus a
// keyid hint, so the model has enough context to retry.
type NoMatchError struct {
	Reason      string
	CurrentFile string
	KeyID       string
}

func (e *NoMatchError) Error() string { return e.Reason }

// NoOpError is returned when the proposed block already matches the
// current slice verbatim.
type NoOpError struct{}

func (e *NoOpError) Error() string { return "no changes: proposed block matches current content" }

// ReplaceCodeBlock performs anchor-based code-block replacement. codeBlock
// is both the anchor source (its non-empty lines, read from the head for
// the start and from the tail for the end, locate the target span) and the
// full replacement text for that span.
//
// Grounded on claudetool/patchkit/patchkit.go's UniqueDedent, generalized
// from single-line-needle matching to progressive multi-line anchor
// growth, since the source's equivalent (patch.go's PatchTool) matches a
// full literal needle in one shot rather than growing it line by line.
func ReplaceCodeBlock(currentContent, codeBlock string) (string, error) {
	fileLines := toLFLines(currentContent)
	blockLines := toLFLines(codeBlock)

	startAnchors := leadingNonEmpty(blockLines)
	if len(startAnchors) == 0 {
		return "", &NoMatchError{Reason: "replace_code_block snippet has no non-empty lines", CurrentFile: currentContent, KeyID: "replace_code_block_empty_snippet"}
	}
	start, err := locateForward(fileLines, startAnchors, 0)
	if err != nil {
		return "", &NoMatchError{Reason: "START: " + err.Error(), CurrentFile: currentContent, KeyID: "replace_code_block_start_ambiguous"}
	}

	endAnchors := trailingNonEmpty(blockLines)
	end, err := locateBackwardAfter(fileLines, endAnchors, start)
	if err != nil {
		return "", &NoMatchError{Reason: "END: " + err.Error(), CurrentFile: currentContent, KeyID: "replace_code_block_end_ambiguous"}
	}
	if end < start {
		return "", &NoMatchError{Reason: "END resolved before START", CurrentFile: currentContent, KeyID: "replace_code_block_end_before_start"}
	}

	currentSlice := strings.Join(fileLines[start:end+1], "\n")
	if normalizeForCompare(currentSlice) == normalizeForCompare(codeBlock) {
		return "", &NoOpError{}
	}

	newLines := append([]string{}, fileLines[:start]...)
	newLines = append(newLines, blockLines...)
	newLines = append(newLines, fileLines[end+1:]...)
	return strings.Join(newLines, "\n"), nil
}

func toLFLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}

func normalizeForCompare(s string) string {
	lines := toLFLines(s)
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.Join(lines, "\n")
}

func leadingNonEmpty(lines []string) []string {
	var out []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

func trailingNonEmpty(lines []string) []string {
	anchors := leadingNonEmpty(lines)
	// reverse, caller consumes tail-first
	for i, j := 0, len(anchors)-1; i < j; i, j = i+1, j-1 {
		anchors[i], anchors[j] = anchors[j], anchors[i]
	}
	return anchors
}

// locateForward implements progressive disambiguation from the head: grow
// the anchor window (1, then 2, ... anchor lines, in file order starting at
// each occurrence of anchors[0]) until exactly one starting line index
// matches, or anchors are exhausted.
func locateForward(fileLines, anchors []string, from int) (int, error) {
	candidates := matchingIndices(fileLines, anchors[0], from)
	if len(candidates) == 0 {
		return -1, errAnchorNotFound(anchors[0])
	}
	for depth := 1; len(candidates) > 1 && depth < len(anchors); depth++ {
		candidates = filterBySubsequentLine(fileLines, candidates, anchors[depth], depth)
	}
	if len(candidates) != 1 {
		return -1, errAmbiguous(len(candidates))
	}
	return candidates[0], nil
}

// locateBackwardAfter mirrors locateForward but anchors are supplied
// tail-first (see trailingNonEmpty) and only positions >= from are
// considered, since END must resolve after the already-located START.
func locateBackwardAfter(fileLines, anchors []string, from int) (int, error) {
	candidates := matchingIndices(fileLines, anchors[0], from)
	if len(candidates) == 0 {
		return -1, errAnchorNotFound(anchors[0])
	}
	for depth := 1; len(candidates) > 1 && depth < len(anchors); depth++ {
		candidates = filterByPrecedingLine(fileLines, candidates, anchors[depth], depth)
	}
	if len(candidates) != 1 {
		return -1, errAmbiguous(len(candidates))
	}
	return candidates[0], nil
}

func matchingIndices(lines []string, anchor string, from int) []int {
	var out []int
	for i := from; i < len(lines); i++ {
		if lines[i] == anchor {
			out = append(out, i)
		}
	}
	return out
}

// filterBySubsequentLine keeps only candidates whose line at offset depth
// ahead also matches the given anchor (START grows forward).
func filterBySubsequentLine(lines []string, candidates []int, anchor string, depth int) []int {
	var out []int
	for _, c := range candidates {
		if c+depth < len(lines) && lines[c+depth] == anchor {
			out = append(out, c)
		}
	}
	return out
}

// filterByPrecedingLine keeps only candidates whose line at offset depth
// behind also matches the given anchor (END grows backward from the tail).
func filterByPrecedingLine(lines []string, candidates []int, anchor string, depth int) []int {
	var out []int
	for _, c := range candidates {
		if c-depth >= 0 && lines[c-depth] == anchor {
			out = append(out, c)
		}
	}
	return out
}

type anchorError string

func (e anchorError) Error() string { return string(e) }

func errAnchorNotFound(line string) error {
	return anchorError("anchor line not found: " + line)
}

func errAmbiguous(n int) error {
	if n == 0 {
		return anchorError("anchors exhausted with no unique match")
	}
	return anchorError("anchors exhausted with multiple candidate positions remaining")
}

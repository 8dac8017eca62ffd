package actionkit

import "strings"

// Scan walks normalized text and extracts every top-level <tool>...</tool>
// occurrence whose tag name is in KnownTools, tolerating arbitrary prose
// before, between, and after blocks. It is a deterministic position/'<'
// state machine, not a backtracking regex: a regex-based scanner either
// over-matches nested '<' inside CDATA payloads (diff hunks, code bodies
// routinely contain '<') or requires unbounded backtracking to avoid it.
func Scan(text string) []Block {
	var blocks []Block
	pos := 0
	n := len(text)

	for pos < n {
		lt := strings.IndexByte(text[pos:], '<')
		if lt < 0 {
			break
		}
		start := pos + lt
		if start+1 < n && (text[start+1] == '/' || text[start+1] == '!' || text[start+1] == '?') {
			pos = start + 1
			continue
		}
		name, nameEnd, ok := scanTagName(text, start+1)
		if !ok {
			pos = start + 1
			continue
		}
		if !KnownTools[ToolName(name)] {
			pos = nameEnd
			continue
		}

		openEnd := scanToTagClose(text, nameEnd)
		if openEnd < 0 {
			pos = nameEnd
			continue
		}
		selfClosing := openEnd >= 2 && text[openEnd-2] == '/'

		if selfClosing {
			blocks = append(blocks, Block{
				ToolName: name,
				XML:      text[start:openEnd],
				Start:    start,
				End:      openEnd,
			})
			pos = openEnd
			continue
		}

		closeTag := "</" + name + ">"
		bodyStart := openEnd
		end := findMatchingClose(text, bodyStart, name, closeTag)
		if end < 0 {
			// Unterminated block: treat the rest of the text as its body so a
			// truncated stream still yields something validate.go can reject
			// or accept, rather than silently dropping it.
			blocks = append(blocks, Block{
				ToolName: name,
				XML:      text[start:],
				Start:    start,
				End:      n,
			})
			pos = n
			continue
		}

		blockEnd := end + len(closeTag)
		blocks = append(blocks, Block{
			ToolName: name,
			XML:      text[start:blockEnd],
			Start:    start,
			End:      blockEnd,
		})
		pos = blockEnd
	}

	return blocks
}

// scanTagName reads an XML identifier (tag or attribute-bearing tag name)
// starting at i, stopping at whitespace, '>', or '/'.
func scanTagName(s string, i int) (name string, end int, ok bool) {
	start := i
	for i < len(s) {
		c := s[i]
		if c == '>' || c == '/' || c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			break
		}
		i++
	}
	if i == start {
		return "", i, false
	}
	return s[start:i], i, true
}

// scanToTagClose advances from inside an opening tag to just past its
// closing '>', returning -1 if none is found.
func scanToTagClose(s string, i int) int {
	gt := strings.IndexByte(s[i:], '>')
	if gt < 0 {
		return -1
	}
	return i + gt + 1
}

// findMatchingClose finds the start index of closeTag at nesting depth 0,
// skipping over CDATA sections (which may themselves contain '<name' text
// that must not be mistaken for a nested open tag) and over any nested
// same-named tags.
func findMatchingClose(s string, from int, name, closeTag string) int {
	openTag := "<" + name
	depth := 1
	i := from
	for i < len(s) {
		if strings.HasPrefix(s[i:], "<![CDATA[") {
			cdataEnd := strings.Index(s[i:], "]]>")
			if cdataEnd < 0 {
				return -1
			}
			i += cdataEnd + len("]]>")
			continue
		}
		if strings.HasPrefix(s[i:], closeTag) {
			depth--
			if depth == 0 {
				return i
			}
			i += len(closeTag)
			continue
		}
		if strings.HasPrefix(s[i:], openTag) {
			after := i + len(openTag)
			if after < len(s) && (s[after] == '>' || s[after] == ' ' || s[after] == '/' || s[after] == '\t') {
				depth++
				i = after
				continue
			}
		}
		i++
	}
	return -1
}

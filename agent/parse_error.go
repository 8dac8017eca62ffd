package agent

import (
	"regexp"

	"lemonai.dev/codeact/actionkit"
	"lemonai.dev/codeact/memory"
)

var openTagNameRE = regexp.MustCompile(`<([a-zA-Z_][\w.-]*)[ >/]`)

// unsupportedToolName returns the first opening-tag name in raw that is not
// one of actionkit's recognized tools, or "" if every tag seen is known (or
// none is found at all).
func unsupportedToolName(raw string) string {
	for _, m := range openTagNameRE.FindAllStringSubmatch(raw, -1) {
		name := m[1]
		if name == "think" {
			continue
		}
		if !actionkit.KnownTools[actionkit.ToolName(name)] {
			return name
		}
	}
	return ""
}

const genericParseErrorCorrection = `Your previous response did not contain a recognized tool call. ` +
	`Emit exactly one action wrapped in its XML tag, e.g. <read_file><path>example.py</path></read_file>.`

// handleParseError handles the case where zero actions resolved from a
// non-empty response: this is a parse_error, not a fatal error — the
// invalid assistant turn is dropped and a developer correction is injected
// so the model can retry without a retry-count penalty.
func handleParseError(d Deps, rawText string) (*Result, error) {
	if err := d.Memory.RemoveLastAssistantMessage(); err != nil {
		return nil, err
	}

	correction := genericParseErrorCorrection
	if tool := unsupportedToolName(rawText); tool != "" {
		correction = "Unsupported tool \"" + tool + "\". Use one of the recognized tools only, for example:\n" +
			"<write_code><path>example.py</path><content><![CDATA[print(\"hi\")\n]]></content></write_code>"
	}

	if err := d.Memory.AddMessage(memory.RoleDeveloper, correction, "parse_error", false, nil); err != nil {
		return nil, err
	}
	return nil, nil
}

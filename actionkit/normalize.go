package actionkit

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Normalize applies the text-level normalization pipeline to raw LLM output,
// before block extraction: strip channel envelopes, convert JSON tool calls
// and finish's attribute form to canonical XML, and CDATA-wrap payload
// fields.
//
// Normalize is idempotent: calling it twice produces the same string as
// calling it once (re-wrapping already-CDATA'd payloads and re-parsing
// already-canonical XML are both no-ops).
func Normalize(raw string) string {
	s := stripChannelEnvelope(raw)
	s = convertJSONToolCallsToXML(s)
	s = convertFinishAttrForm(s)
	s = wrapPayloadFieldsInCDATA(s)
	return s
}

var channelEnvelopeRE = regexp.MustCompile(`(?s)<\|channel\|>(?:([a-zA-Z_][\w.]*)\s+)?(?:to=([a-zA-Z_][\w.]*)\s*)?<\|message\|>(.*?)(?:<\|(?:end|channel)\|>|$)`)

// stripChannelEnvelope removes LM-Studio-style "<|channel|>...<|message|>"
// wrapper tokens, keeping the payload. When the envelope carries a
// "to=<tool>" hint and the payload is bare JSON params (no surrounding tool
// name), the payload is wrapped as <hintedTool>...</hintedTool> so block
// extraction still finds a named tool.
func stripChannelEnvelope(s string) string {
	return channelEnvelopeRE.ReplaceAllStringFunc(s, func(m string) string {
		sub := channelEnvelopeRE.FindStringSubmatch(m)
		hint := sub[2]
		payload := strings.TrimSpace(sub[3])
		if hint == "" {
			return payload
		}
		if looksLikeBareJSONObject(payload) {
			return argsToXML(hint, json.RawMessage(payload))
		}
		return payload
	})
}

func looksLikeBareJSONObject(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return false
	}
	var v map[string]any
	return json.Unmarshal([]byte(s), &v) == nil
}

// rawToolCall is the union of the JSON tool-call shapes this package
// recognizes.
type rawToolCall struct {
	Type      string          `json:"type"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Params    json.RawMessage `json:"params"`

	ToolCalls []struct {
		Function struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		} `json:"function"`
	} `json:"tool_calls"`

	Choices []struct {
		Message struct {
			ToolCalls []struct {
				Function struct {
					Name      string          `json:"name"`
					Arguments json.RawMessage `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`

	Output []struct {
		Type      string          `json:"type"`
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"output"`
}

// findJSONObjects finds candidate top-level JSON objects to try as tool
// calls. It is deliberately coarse (balanced-brace scan, not a full JSON
// tokenizer) since the candidates are re-validated by json.Unmarshal.
func findJSONObjects(s string) []string {
	var out []string
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i, r := range s {
		switch {
		case inString:
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		case r == '"':
			inString = true
			continue
		case r == '{':
			if depth == 0 {
				start = i
			}
			depth++
		case r == '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					out = append(out, s[start:i+1])
					start = -1
				}
			}
		}
	}
	return out
}

// convertJSONToolCallsToXML converts every recognized JSON tool-call shape
// found in s into canonical <name>...</name> XML, leaving everything else
// untouched.
func convertJSONToolCallsToXML(s string) string {
	for _, candidate := range findJSONObjects(s) {
		var rtc rawToolCall
		if err := json.Unmarshal([]byte(candidate), &rtc); err != nil {
			continue
		}
		xml, ok := jsonToolCallToXML(rtc)
		if !ok {
			continue
		}
		s = strings.Replace(s, candidate, xml, 1)
	}
	return s
}

func jsonToolCallToXML(rtc rawToolCall) (string, bool) {
	// {choices:[{message:{tool_calls:[...]}}]}
	for _, c := range rtc.Choices {
		if len(c.Message.ToolCalls) > 0 {
			tc := c.Message.ToolCalls[0]
			return argsToXML(tc.Function.Name, tc.Function.Arguments), true
		}
	}
	// {tool_calls:[{function:{name, arguments}}]}
	if len(rtc.ToolCalls) > 0 {
		tc := rtc.ToolCalls[0]
		return argsToXML(tc.Function.Name, tc.Function.Arguments), true
	}
	// {output:[{type:"tool_call", name, arguments}]}
	for _, o := range rtc.Output {
		if o.Type == "tool_call" && o.Name != "" {
			return argsToXML(o.Name, o.Arguments), true
		}
	}
	// {type:"tool_call", name, arguments}
	if rtc.Type == "tool_call" && rtc.Name != "" {
		return argsToXML(rtc.Name, rtc.Arguments), true
	}
	// {name, arguments|params}
	if rtc.Name != "" && (len(rtc.Arguments) > 0 || len(rtc.Params) > 0) {
		args := rtc.Arguments
		if len(args) == 0 {
			args = rtc.Params
		}
		return argsToXML(rtc.Name, args), true
	}
	return "", false
}

// argsToXML renders a tool name + JSON arguments (object, or a JSON string
// containing an object) as <name><field>value</field>...</name>.
func argsToXML(name string, args json.RawMessage) string {
	if name == "" {
		return ""
	}
	fields := decodeArgsObject(args)
	var b strings.Builder
	fmt.Fprintf(&b, "<%s>", name)
	for k, v := range fields {
		fmt.Fprintf(&b, "<%s>%s</%s>", k, escapeXMLText(v), k)
	}
	fmt.Fprintf(&b, "</%s>", name)
	return b.String()
}

func decodeArgsObject(raw json.RawMessage) map[string]string {
	out := map[string]string{}
	if len(raw) == 0 {
		return out
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		// arguments may itself be a JSON-encoded string containing an object
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if err := json.Unmarshal([]byte(s), &obj); err != nil {
				return out
			}
		} else {
			return out
		}
	}
	for k, v := range obj {
		switch vv := v.(type) {
		case string:
			out[k] = vv
		default:
			b, _ := json.Marshal(vv)
			out[k] = string(b)
		}
	}
	return out
}

func escapeXMLText(s string) string {
	if strings.ContainsAny(s, "<&") {
		return "<![CDATA[" + s + "]]>"
	}
	return s
}

var finishAttrRE = regexp.MustCompile(`<finish\s+([^>]*?)/>`)
var attrRE = regexp.MustCompile(`(\w+)="((?:[^"\\]|\\.)*)"`)

// convertFinishAttrForm converts the self-closing attribute form
// <finish status="..." message="..."/> into the canonical child-element
// form.
func convertFinishAttrForm(s string) string {
	return finishAttrRE.ReplaceAllStringFunc(s, func(m string) string {
		attrs := finishAttrRE.FindStringSubmatch(m)[1]
		fields := map[string]string{}
		for _, am := range attrRE.FindAllStringSubmatch(attrs, -1) {
			fields[am[1]] = unescapeAttr(am[2])
		}
		var b strings.Builder
		b.WriteString("<finish>")
		if status, ok := fields["status"]; ok {
			fmt.Fprintf(&b, "<status>%s</status>", status)
		}
		if message, ok := fields["message"]; ok {
			fmt.Fprintf(&b, "<message><![CDATA[%s]]></message>", message)
		}
		b.WriteString("</finish>")
		return b.String()
	})
}

func unescapeAttr(s string) string {
	s = strings.ReplaceAll(s, `\"`, `"`)
	s = strings.ReplaceAll(s, `&amp;`, `&`)
	s = strings.ReplaceAll(s, `&lt;`, `<`)
	s = strings.ReplaceAll(s, `&gt;`, `>`)
	return s
}

// payloadFieldTags are the field names that commonly contain '<' or '&'
// and so should be CDATA-wrapped if not already.
var payloadFieldTags = []string{"content", "code_block", "diff", "message"}

func wrapPayloadFieldsInCDATA(s string) string {
	for _, tag := range payloadFieldTags {
		re := regexp.MustCompile(`(?s)<` + tag + `>(.*?)</` + tag + `>`)
		s = re.ReplaceAllStringFunc(s, func(m string) string {
			sub := re.FindStringSubmatch(m)
			body := sub[1]
			if strings.Contains(body, "<![CDATA[") {
				return m
			}
			if !strings.ContainsAny(body, "<&") {
				return m
			}
			return fmt.Sprintf("<%s><![CDATA[%s]]></%s>", tag, body, tag)
		})
	}
	return s
}

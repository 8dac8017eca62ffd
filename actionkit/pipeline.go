package actionkit

// Extract runs the full extraction pipeline over raw LLM output: normalize,
// scan for tool-call blocks, parse each into an Action, then validate.
// It is the single entry point callers (the control loop) should use.
func Extract(raw string) []Action {
	normalized := Normalize(raw)
	blocks := Scan(normalized)
	actions := ParseAll(blocks)
	return ValidateAll(actions)
}

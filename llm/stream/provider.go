package stream

import "strings"

// Quirk describes provider-specific request header injection. It is
// enumerable configuration, never a switch statement keyed on business
// logic: a new provider is a new table row, not a new code path.
//
// Grounded on the {URL, APIKeyEnv} table in the teacher's llm/oai/oai.go,
// generalized to also carry the auth header shape, since not every
// OpenAI-compatible provider uses "Authorization: Bearer ...".
type Quirk struct {
	Name       string
	URLPrefix  string
	AuthHeader string            // defaults to "Authorization" when empty
	AuthPrefix string            // e.g. "Bearer "; empty for bare-token headers like "api-key"
	Extra      map[string]string // static headers, e.g. HTTP-Referer, X-Title
}

// Quirks is the known-provider table. Order matters: the first prefix match wins.
var Quirks = []Quirk{
	{Name: "openai", URLPrefix: "https://api.openai.com", AuthPrefix: "Bearer "},
	{Name: "fireworks", URLPrefix: "https://api.fireworks.ai", AuthPrefix: "Bearer "},
	{Name: "cerebras", URLPrefix: "https://api.cerebras.ai", AuthPrefix: "Bearer "},
	{Name: "together", URLPrefix: "https://api.together.xyz", AuthPrefix: "Bearer "},
	{Name: "mistral", URLPrefix: "https://api.mistral.ai", AuthPrefix: "Bearer "},
	{Name: "moonshot", URLPrefix: "https://api.moonshot.ai", AuthPrefix: "Bearer "},
	{
		Name:       "azure",
		URLPrefix:  "https://",
		AuthHeader: "api-key",
	},
	{
		Name:       "openrouter",
		URLPrefix:  "https://openrouter.ai",
		AuthPrefix: "Bearer ",
		Extra: map[string]string{
			"HTTP-Referer": "https://lemonai.dev",
			"X-Title":      "codeact",
		},
	},
}

// quirkFor returns the best-matching Quirk for url, or a bare-Bearer default
// if nothing matches (the common case for self-hosted OpenAI-compatible
// servers such as llama.cpp or vLLM).
func quirkFor(url string) Quirk {
	for _, q := range Quirks {
		if q.Name == "azure" {
			continue // azure's prefix matches every https URL, so its row is never selected here
		}
		if strings.HasPrefix(url, q.URLPrefix) {
			return q
		}
	}
	return Quirk{Name: "default", AuthPrefix: "Bearer "}
}

func (q Quirk) applyAuth(setHeader func(key, value string), apiKey string) {
	header := q.AuthHeader
	if header == "" {
		header = "Authorization"
	}
	if apiKey != "" {
		setHeader(header, q.AuthPrefix+apiKey)
	}
	for k, v := range q.Extra {
		setHeader(k, v)
	}
}

// Package stream implements a streaming chat-completion client that
// tolerates non-standard SSE servers.
//
// Grounded on the provider table, retry backoff, and model bookkeeping in
// the teacher's llm/oai/oai.go, but the transport itself is new: go-openai's
// own stream reader enforces strict framing that this client deliberately
// relaxes (on JSON parse failure, do not treat it as a terminator; keep
// buffering).
package stream

import (
	"bufio"
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"lemonai.dev/codeact/llm"
)

const (
	defaultDelimiter = "\n\n"
	doneMarker       = "[DONE]"
)

// Client sends a prompt plus history to the model and returns the fully
// accumulated response text.
type Client struct {
	HTTPC     *http.Client
	BaseURL   string
	APIKey    string
	Model     string
	Delimiter string // defaults to "\n\n"

	// MaxRetries bounds the 5xx/429 backoff loop; defaults to 5.
	MaxRetries int
}

type chatRequestBody struct {
	Model          string  `json:"model"`
	Messages       []wire  `json:"messages"`
	Stream         bool    `json:"stream"`
	Temperature    *float64 `json:"temperature,omitempty"`
	TopP           *float64 `json:"top_p,omitempty"`
	MaxTokens      *int    `json:"max_tokens,omitempty"`
	Stop           []string `json:"stop,omitempty"`
	AssistantID    string  `json:"assistant_id,omitempty"`
	ResponseFormat any     `json:"response_format,omitempty"`
	Tools          any     `json:"tools,omitempty"`
	EnableThinking bool    `json:"enable_thinking,omitempty"`
}

type wire struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type sseChoice struct {
	Delta struct {
		Content          string `json:"content"`
		ReasoningContent string `json:"reasoning_content"`
	} `json:"delta"`
}

type sseChunk struct {
	Choices []sseChoice `json:"choices"`
}

// Chat sends prompt (as the final user message) plus history to the model
// and streams the response. onToken, when non-nil, is invoked synchronously,
// in arrival order, with each incremental text chunk as it is decoded.
//
// Chat never returns an error on cancellation: it flushes whatever was
// accumulated and returns it.
func (c *Client) Chat(ctx context.Context, system string, history []llm.Message, prompt string, opts llm.Options, onToken func(string)) (*llm.Result, error) {
	messages := make([]wire, 0, len(history)+2)
	if system != "" {
		messages = append(messages, wire{Role: "system", Content: system})
	}
	for _, m := range history {
		role := string(m.Role)
		if role == string(llm.RoleDeveloper) {
			role = "system" // OpenAI-compatible wire format has no "developer" role on older servers
		}
		messages = append(messages, wire{Role: role, Content: m.Content})
	}
	messages = append(messages, wire{Role: "user", Content: prompt})

	body := chatRequestBody{
		Model:          c.Model,
		Messages:       messages,
		Stream:         true,
		Temperature:    opts.Temperature,
		TopP:           opts.TopP,
		MaxTokens:      opts.MaxTokens,
		Stop:           opts.Stop,
		AssistantID:    opts.AssistantID,
		ResponseFormat: opts.ResponseFormat,
		Tools:          opts.Tools,
		EnableThinking: opts.EnableThinking,
	}

	result := &llm.Result{StartTime: time.Now()}
	text, err := c.doWithRetry(ctx, body, onToken)
	result.EndTime = time.Now()
	result.Text = text
	return result, err
}

func (c *Client) doWithRetry(ctx context.Context, body chatRequestBody, onToken func(string)) (string, error) {
	maxRetries := cmp.Or(c.MaxRetries, 5)
	backoff := []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if attempt > maxRetries {
				return "", fmt.Errorf("llm stream request failed after %d attempts: %w", attempt, lastErr)
			}
			sleep := backoff[min(attempt-1, len(backoff)-1)] + time.Duration(rand.Int64N(int64(time.Second)))
			slog.WarnContext(ctx, "llm_stream_retry", "attempt", attempt, "sleep", sleep, "error", lastErr)
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				return "", nil
			}
		}

		text, retryable, err := c.doOnce(ctx, body, onToken)
		if err == nil {
			return text, nil
		}
		if !retryable {
			return "", err
		}
		lastErr = err
	}
}

func (c *Client) doOnce(ctx context.Context, body chatRequestBody, onToken func(string)) (text string, retryable bool, err error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", false, fmt.Errorf("marshal chat request: %w", err)
	}

	url := strings.TrimRight(c.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	quirkFor(c.BaseURL).applyAuth(req.Header.Set, c.APIKey)

	resp, err := cmp.Or(c.HTTPC, http.DefaultClient).Do(req)
	if err != nil {
		return "", true, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == 429 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", true, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", false, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}

	text, err = c.decode(ctx, resp.Body, onToken)
	return text, false, err
}

// decode is a delimiter-splitting SSE-ish decoder: strip an optional
// "data:" prefix, treat "[DONE]" as end of stream, parse each message as
// JSON, and never treat a parse failure as a terminator.
func (c *Client) decode(ctx context.Context, body io.Reader, onToken func(string)) (string, error) {
	delim := cmp.Or(c.Delimiter, defaultDelimiter)

	type decoded struct {
		text   string
		isDone bool
	}
	raw := make(chan string)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(raw)
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
		scanner.Split(splitOnDelimiter(delim))
		for scanner.Scan() {
			select {
			case raw <- scanner.Text():
			case <-gctx.Done():
				return nil
			}
		}
		return scanner.Err()
	})

	var textBuf strings.Builder
	var reasoningBuf strings.Builder
	var sawText bool
	var tail string

	for msg := range raw {
		tail = msg
		msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(msg), "data:"))
		msg = strings.TrimSpace(msg)
		if msg == "" {
			continue
		}
		if msg == doneMarker {
			tail = ""
			continue
		}
		var chunk sseChunk
		if err := json.Unmarshal([]byte(msg), &chunk); err != nil {
			// Not a terminator, keep buffering.
			continue
		}
		tail = "" // fully parsed; nothing left for the tail extraction
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.ReasoningContent != "" && !sawText {
			reasoningBuf.WriteString(delta.ReasoningContent)
			continue
		}
		if delta.Content == "" {
			continue
		}
		if reasoningBuf.Len() > 0 && !sawText {
			think := "<think>" + reasoningBuf.String() + "</think>"
			textBuf.WriteString(think)
			emit(onToken, think)
		}
		sawText = true
		textBuf.WriteString(delta.Content)
		emit(onToken, delta.Content)
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.WarnContext(ctx, "llm_stream_read_error", "error", err)
	}

	// Cancellation: flush whatever we accumulated and resolve without error.
	if ctx.Err() != nil {
		return finalize(textBuf.String(), reasoningBuf.String(), sawText), nil
	}

	// Best-effort tail extraction: the last message may have been cut off
	// mid-JSON by the server closing the connection early.
	if extra := bestEffortTail(tail); extra != "" {
		textBuf.WriteString(extra)
		emit(onToken, extra)
	}

	text := finalize(textBuf.String(), reasoningBuf.String(), sawText)
	if text == "" {
		slog.WarnContext(ctx, "llm_stream_empty_result")
	}
	return text, nil
}

func finalize(text, reasoning string, sawText bool) string {
	if !sawText && reasoning != "" {
		return "<think>" + reasoning + "</think>"
	}
	return text
}

func emit(onToken func(string), s string) {
	if onToken != nil && s != "" {
		onToken(s)
	}
}

var tailContentRE = regexp.MustCompile(`"(?:reasoning_content|content)"\s*:\s*"((?:[^"\\]|\\.)*)"`)

// bestEffortTail recovers a trailing "content":"..." or
// "reasoning_content":"..." fragment from a message the stream ended in the
// middle of, so a connection dropped mid-chunk still yields its partial
// text.
func bestEffortTail(tail string) string {
	matches := tailContentRE.FindAllStringSubmatch(tail, -1)
	if len(matches) == 0 {
		return ""
	}
	last := matches[len(matches)-1][1]
	var out string
	if err := json.Unmarshal([]byte(`"`+last+`"`), &out); err != nil {
		return ""
	}
	return out
}

// splitOnDelimiter returns a bufio.SplitFunc that splits on an arbitrary
// byte delimiter instead of newlines, since SSE-ish servers vary in whether
// they use "\n\n", "\r\n\r\n", or something else entirely.
func splitOnDelimiter(delim string) bufio.SplitFunc {
	d := []byte(delim)
	return func(data []byte, atEOF bool) (advance int, token []byte, err error) {
		if idx := bytes.Index(data, d); idx >= 0 {
			return idx + len(d), data[:idx], nil
		}
		if atEOF && len(data) > 0 {
			return len(data), data, nil
		}
		if atEOF {
			return 0, nil, io.EOF
		}
		return 0, nil, nil
	}
}

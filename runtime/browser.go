package runtime

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"lemonai.dev/codeact/actionkit"
	"lemonai.dev/codeact/llm"
	"lemonai.dev/codeact/llm/stream"
)

// HeadlessBrowser answers a free-form question by navigating a headless
// Chrome instance, pulling the rendered page text, and asking the
// conversation's default model to answer the question from that text.
//
// Grounded on claudetool/browse/browse.go's chromedp.NewExecAllocator /
// chromedp.NewContext lifecycle; trimmed from that file's five
// click/type/wait/eval tools down to a single question-in/text-out
// contract, since this browser tool is not given a sequence of DOM
// actions to perform, only a question to answer.
type HeadlessBrowser struct {
	LLM *stream.Client // the conversation's default-model credential triple

	// MaxContentLength caps extracted page text; 0 falls back to 50000.
	MaxContentLength int

	mu        sync.Mutex
	initOnce  sync.Once
	initErr   error
	ctx       context.Context
	cancel    context.CancelFunc
	sessionID string
}

func (b *HeadlessBrowser) ensureStarted(parent context.Context) error {
	b.initOnce.Do(func() {
		allocCtx, _ := chromedp.NewExecAllocator(parent, chromedp.DefaultExecAllocatorOptions[:]...)
		browserCtx, cancel := chromedp.NewContext(allocCtx)
		if err := chromedp.Run(browserCtx); err != nil {
			b.initErr = fmt.Errorf("failed to start headless browser (is chromium installed?): %w", err)
			return
		}
		b.ctx = browserCtx
		b.cancel = cancel
		b.sessionID = uuid.NewString()
	})
	return b.initErr
}

var urlInQuestionRE = regexp.MustCompile(`https?://\S+`)

// Ask implements BrowserDispatcher.
func (b *HeadlessBrowser) Ask(ctx context.Context, question string) (*actionkit.Result, error) {
	if err := b.ensureStarted(ctx); err != nil {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: err.Error()}, nil
	}

	target := urlInQuestionRE.FindString(question)
	if target == "" {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: "browser requires a URL in the question; free-text web search is not wired into this deployment"}, nil
	}
	if _, err := url.Parse(target); err != nil {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: "invalid URL in question: " + err.Error()}, nil
	}

	navCtx, cancel := context.WithTimeout(b.ctx, 30*time.Second)
	defer cancel()

	var pageText string
	err := chromedp.Run(navCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body"),
		chromedp.Text("body", &pageText, chromedp.ByQuery),
	)
	if err != nil {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: "navigation failed: " + err.Error()}, nil
	}

	pageText = strings.TrimSpace(pageText)
	maxLen := b.MaxContentLength
	if maxLen <= 0 {
		maxLen = 50000
	}
	meta := map[string]any{"browser_session_id": b.sessionID}
	if len(pageText) > maxLen {
		meta["truncated"] = fmt.Sprintf("page text truncated to %s (original size %s)",
			humanize.Bytes(uint64(maxLen)), humanize.Bytes(uint64(len(pageText))))
		pageText = pageText[:maxLen]
	}

	if b.LLM == nil {
		return &actionkit.Result{Status: actionkit.StatusSuccess, Content: pageText, Meta: meta}, nil
	}

	prompt := fmt.Sprintf("Using only the following page text, answer the question.\n\nQuestion: %s\n\nPage text:\n%s", question, pageText)
	result, err := b.LLM.Chat(ctx, "You answer questions strictly from the provided page text.", nil, prompt, llm.Options{}, nil)
	if err != nil {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: "failed to summarize page: " + err.Error(), Meta: meta}, nil
	}
	return &actionkit.Result{Status: actionkit.StatusSuccess, Content: result.Text, Meta: meta}, nil
}

func (d *Dispatcher) dispatchBrowser(ctx context.Context, a actionkit.Action) *actionkit.Result {
	if d.Browser == nil {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: "browser dispatch is not configured for this deployment"}
	}
	result, err := d.Browser.Ask(ctx, a.Get("question"))
	if err != nil {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: err.Error()}
	}
	return result
}

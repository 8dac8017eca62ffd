package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"lemonai.dev/codeact/actionkit"
)

// SandboxClient executes actions against a remote runtime server: an HTTP
// POST to the server, asserting response.data.data is present and
// otherwise synthesizing a failure with diagnostics extracted from the
// error (code, syscall, address) or the response status/body.
type SandboxClient struct {
	HTTPC   *http.Client
	BaseURL string
}

type sandboxEnvelope struct {
	Data *struct {
		Data json.RawMessage `json:"data"`
	} `json:"data"`
	Error string `json:"error"`
}

// Execute posts a to the sandbox's /execute_action endpoint and unwraps
// its doubly-nested {data:{data:...}} response envelope.
func (s *SandboxClient) Execute(ctx context.Context, a actionkit.Action) (*actionkit.Result, error) {
	httpc := s.HTTPC
	if httpc == nil {
		httpc = http.DefaultClient
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultSandboxTimeout)
		defer cancel()
	}

	payload, err := json.Marshal(map[string]any{"type": string(a.Type), "params": a.Params})
	if err != nil {
		return nil, fmt.Errorf("marshal action: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/execute_action", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build sandbox request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpc.Do(req)
	if err != nil {
		return synthesizeNetworkFailure(err), nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return &actionkit.Result{
			Status: actionkit.StatusFailure,
			Error:  fmt.Sprintf("sandbox returned status %d", resp.StatusCode),
			Meta:   map[string]any{"status": resp.StatusCode, "body": string(body)},
		}, nil
	}

	var env sandboxEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: "sandbox returned unparseable response: " + err.Error(), Meta: map[string]any{"body": string(body)}}, nil
	}
	if env.Data == nil || env.Data.Data == nil {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: "sandbox response missing data.data", Meta: map[string]any{"body": string(body)}}, nil
	}

	var result actionkit.Result
	if err := json.Unmarshal(env.Data.Data, &result); err != nil {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: "sandbox data.data did not match expected shape: " + err.Error(), Meta: map[string]any{"body": string(body)}}, nil
	}
	return &result, nil
}

// synthesizeNetworkFailure extracts diagnostic fields from a failed HTTP
// round trip against the sandbox (connection refused, DNS failure,
// timeout).
func synthesizeNetworkFailure(err error) *actionkit.Result {
	type timeouter interface{ Timeout() bool }
	timeout := false
	if t, ok := err.(timeouter); ok {
		timeout = t.Timeout()
	}
	meta := map[string]any{"error": err.Error(), "timeout": timeout}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		meta["code"] = int(errno)
	}
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) {
		meta["syscall"] = sysErr.Syscall
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Addr != nil {
		meta["address"] = opErr.Addr.String()
	}
	return &actionkit.Result{
		Status: actionkit.StatusFailure,
		Error:  "sandbox request failed: " + err.Error(),
		Meta:   meta,
	}
}

// DefaultSandboxTimeout is the client-side HTTP deadline applied when the
// caller doesn't set one via context.
const DefaultSandboxTimeout = 60 * time.Second

// SandboxTerminalRunner adapts SandboxClient to the TerminalRunner
// interface so the dispatcher can route terminal_run through the sandbox
// server without a type switch at the call site.
type SandboxTerminalRunner struct{ Client *SandboxClient }

func (r SandboxTerminalRunner) Run(ctx context.Context, cwd, command, args string, timeoutMS int) (*actionkit.Result, error) {
	return r.Client.Execute(ctx, actionkit.Action{
		Type: actionkit.TerminalRun,
		Params: map[string]string{
			"command": command,
			"args":    args,
			"cwd":     cwd,
		},
	})
}

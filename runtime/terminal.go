package runtime

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"lemonai.dev/codeact/actionkit"
)

// LocalTerminalRunner executes terminal_run locally with a process-group
// timeout kill, grounded on claudetool/bash.go's executeBash.
type LocalTerminalRunner struct {
	// MaxOutputBytes caps captured output, mirroring bash.go's
	// maxBashOutputLength; defaults to 128KiB.
	MaxOutputBytes int
}

func (r LocalTerminalRunner) Run(ctx context.Context, cwd, command, args string, timeoutMS int) (*actionkit.Result, error) {
	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMS)*time.Millisecond)
	defer cancel()

	full := command
	if args != "" {
		full = command + " " + args
	}

	cmd := exec.CommandContext(execCtx, "bash", "-c", full)
	cmd.Dir = cwd
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start command: %w", err)
	}
	proc := cmd.Process
	done := make(chan struct{})
	go func() {
		select {
		case <-execCtx.Done():
			if execCtx.Err() == context.DeadlineExceeded && proc != nil {
				syscall.Kill(-proc.Pid, syscall.SIGKILL)
			}
		case <-done:
		}
	}()

	err := cmd.Wait()
	close(done)
	duration := time.Since(start)

	status := actionkit.StatusSuccess
	exitCode := 0
	var signal int
	timedOut := false
	stderr := stderrBuf.String()
	if execCtx.Err() == context.DeadlineExceeded {
		status = actionkit.StatusFailure
		exitCode = 1
		timedOut = true
		timeoutMsg := fmt.Sprintf("command timed out after %s", time.Duration(timeoutMS)*time.Millisecond)
		if stderr != "" {
			stderr += "\n"
		}
		stderr += timeoutMsg
	} else if err != nil {
		status = actionkit.StatusFailure
		exitCode = 1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				signal = int(ws.Signal())
			}
		}
	}

	maxOut := r.MaxOutputBytes
	if maxOut == 0 {
		maxOut = 131072
	}
	stdout := stdoutBuf.String()
	var truncationNote string
	if len(stdout) > maxOut {
		truncationNote = fmt.Sprintf("stdout truncated to %s (original size %s)",
			humanize.Bytes(uint64(maxOut)), humanize.Bytes(uint64(len(stdout))))
		stdout = stdout[:maxOut]
	}
	if len(stderr) > maxOut {
		if truncationNote != "" {
			truncationNote += "; "
		}
		truncationNote += fmt.Sprintf("stderr truncated to %s (original size %s)",
			humanize.Bytes(uint64(maxOut)), humanize.Bytes(uint64(len(stderr))))
		stderr = stderr[:maxOut]
	}

	meta := map[string]any{
		"exitCode":     exitCode,
		"signal":       signal,
		"durationMs":   duration.Milliseconds(),
		"resolved_cwd": cwd,
		"command":      command,
		"args":         args,
		"cwd":          cwd,
	}
	if timedOut {
		meta["timedOut"] = true
	}
	if truncationNote != "" {
		meta["truncated"] = truncationNote
	}

	return &actionkit.Result{
		Status:  status,
		Content: stdout,
		Stdout:  stdout,
		Stderr:  stderr,
		Meta:    meta,
	}, nil
}

// newRunID returns a fresh random token identifying one terminal_run
// invocation, used to correlate its result with later purge requests.
func newRunID() string {
	return uuid.NewString()
}

func (d *Dispatcher) dispatchTerminalRun(ctx context.Context, a actionkit.Action) *actionkit.Result {
	runner := d.Terminal
	if runner == nil {
		if d.Sandbox != nil {
			runner = SandboxTerminalRunner{Client: d.Sandbox}
		} else {
			runner = LocalTerminalRunner{}
		}
	}
	cwd := a.Get("cwd")
	if cwd == "" {
		cwd = d.Root.Base
	} else {
		resolved, err := d.Root.Resolve(cwd)
		if err != nil {
			return &actionkit.Result{Status: actionkit.StatusFailure, Error: err.Error()}
		}
		cwd = resolved
	}

	runID := newRunID()
	originPath := fmt.Sprintf("terminal_run:%s::%s", cwd, a.Get("command"))

	result, err := runner.Run(ctx, cwd, a.Get("command"), a.Get("args"), d.terminalRunTimeoutMS())
	if err != nil {
		result = &actionkit.Result{
			Status: actionkit.StatusFailure,
			Error:  err.Error(),
			Meta:   map[string]any{"exitCode": 1},
		}
	}
	if result.Meta == nil {
		result.Meta = map[string]any{}
	}
	result.Meta["run_id"] = runID
	result.Meta["origin_path"] = originPath
	result.Meta["origin_cwd"] = cwd
	result.Meta["origin_command"] = a.Get("command")
	if _, ok := result.Meta["exitCode"]; !ok {
		if result.Status == actionkit.StatusSuccess {
			result.Meta["exitCode"] = 0
		} else {
			result.Meta["exitCode"] = 1
		}
	}
	if result.Content == "" {
		result.Content = result.Stdout
	}
	return result
}

// terminalRunTimeoutMS resolves the per-call timeout, defaulting to 30
// seconds when the dispatcher was not configured with an explicit value.
func (d *Dispatcher) terminalRunTimeoutMS() int {
	if d.TerminalTimeoutMS > 0 {
		return d.TerminalTimeoutMS
	}
	return 30000
}

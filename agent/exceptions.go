package agent

import (
	"errors"
	"fmt"
	"strings"

	"lemonai.dev/codeact/memory"
	"lemonai.dev/codeact/skribe"
)

// infraPausePhrases are substrings a ChatClient may surface in an error
// message to signal an account-level condition (exhausted credits, a
// revoked key) rather than a transient transport failure. There is no
// dedicated sentinel type upstream of this package to match against, so
// detection falls back to these known phrases alongside errors.As.
var infraPausePhrases = []string{
	"insufficient credit",
	"insufficient balance",
	"quota exceeded",
	"account suspended",
	"payment required",
}

// asPauseError reports whether err signals an infrastructure pause
// condition, returning the *PauseError to surface if so.
func asPauseError(err error) *PauseError {
	if err == nil {
		return nil
	}
	var pe *PauseError
	if errors.As(err, &pe) {
		return pe
	}
	lower := strings.ToLower(err.Error())
	for _, phrase := range infraPausePhrases {
		if strings.Contains(lower, phrase) {
			return &PauseError{Reason: phrase}
		}
	}
	return nil
}

// handleException handles an unexpected error from the model call or
// dispatch: append a sanitized feedback message, count it as a retry, and
// fail the task after too many consecutive exceptions.
func handleException(task *Task, d Deps, err error) (*Result, error) {
	task.RetryCount++
	sanitized := skribe.SanitizePaths(err.Error(), d.Memory.WorkspaceRoots...)

	if addErr := d.Memory.AddMessage(memory.RoleUser, fmt.Sprintf("an error occurred: %s", sanitized), "", true, nil); addErr != nil {
		return nil, addErr
	}
	if task.RetryCount >= d.maxRetryTimes() {
		return &Result{Status: "FAILED", Message: "max consecutive exceptions"}, nil
	}
	return nil, nil
}

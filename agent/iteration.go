package agent

import (
	"fmt"
	"strings"

	"context"

	"lemonai.dev/codeact/actionkit"
	"lemonai.dev/codeact/llm"
	"lemonai.dev/codeact/memory"
)

func llmOptions(task *Task) llm.Options {
	return llm.Options{EnableThinking: true}
}

// runIteration performs one turn of the control loop. It returns a non-nil
// *Result when the task has reached a terminal or paused state; otherwise
// nil, and the caller loops again.
func runIteration(ctx context.Context, task *Task, d Deps) (*Result, error) {
	// Step 1: revalidate prior transient read-file errors.
	revalidateReadErrors(ctx, task, d)

	// Step 2: build the prompt and call the model. The prompt is rebuilt
	// every turn (the workspace listing and reflection are dynamic); the
	// PromptBuilder itself is responsible for persisting it to memory as
	// the first user message on turn one only, not on every call, so it is
	// not appended here.
	prompt, err := d.Prompt.Build(ctx, task, d.Memory)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	result, err := d.Chat.Chat(ctx, "", nil, prompt, llmOptions(task), nil)
	if err != nil {
		if pe := asPauseError(err); pe != nil {
			return nil, pe
		}
		return handleException(task, d, err)
	}
	task.RetryCount = 0 // a successful model call breaks any exception streak

	if err := d.Memory.AddMessage(memory.RoleAssistant, result.Text, "", true, nil); err != nil {
		return nil, err
	}

	// Step 3: empty output.
	if strings.TrimSpace(result.Text) == "" {
		if err := d.Memory.RemoveLastAssistantMessage(); err != nil {
			return nil, err
		}
		if err := d.Memory.AddMessage(memory.RoleDeveloper,
			"Your previous response was empty. Emit exactly one tool call.", "", false, nil); err != nil {
			return nil, err
		}
		return nil, nil // retry without penalty
	}

	// Step 4: parse.
	actions := actionkit.Extract(result.Text)
	multi := len(actions) > 1
	if multi {
		if err := d.Memory.RemoveLastAssistantMessage(); err != nil {
			return nil, err
		}
	}

	// Step 5: no actions resolved.
	if len(actions) == 0 {
		return handleParseError(d, result.Text)
	}

	for _, a := range actions {
		if multi {
			canonical := actionkit.Serialize(a)
			if err := d.Memory.AddMessage(memory.RoleAssistant, canonical, string(a.Type), true, actionCallMeta(a)); err != nil {
				return nil, err
			}
		}

		if localControlAction(a.Type) {
			return &Result{Status: "PAUSED", Message: "revise_plan requested: " + a.Get("reason")}, nil
		}

		switch a.Type {
		case actionkit.PatchComplete:
			task.PromptMode = ModeBuild
			if err := d.Memory.AddMessage(memory.RoleUser, "Acknowledged.", "", false, nil); err != nil {
				return nil, err
			}
			return nil, nil // break sequence, continue outer loop

		case actionkit.Information:
			if err := d.Memory.AddMessage(memory.RoleUser, "Acknowledged.", "", false, nil); err != nil {
				return nil, err
			}
			continue

		case actionkit.Evaluation:
			// Synthesized by a validation failure (actionkit.Validate):
			// a user-visible failure comment, the turn continues.
			if err := d.Memory.AddMessage(memory.RoleUser, "action rejected: "+a.Get("comments"), "", false, nil); err != nil {
				return nil, err
			}
			continue

		case actionkit.Finish:
			res, done, err := handleFinish(task, a)
			if err != nil || done {
				return res, err
			}
			continue
		}

		res := d.Dispatcher.Dispatch(ctx, a)
		trackReadFileFailure(task, a, res)

		if err := recordActionResult(d.Memory, a, res); err != nil {
			return nil, err
		}

		status, comments, rerr := reflect(ctx, d, task.Requirement, res)
		if rerr != nil {
			comments = "reflection unavailable: " + rerr.Error()
			status = fallbackReflectionStatus(res)
		}

		task.PromptMode = modeAfter(a, res)

		penalize, err := classifyRetry(a, res)
		if err != nil {
			return nil, err
		}
		if penalize {
			task.RetryCount++
			if d.MaxTotalRetries > 0 {
				task.TotalRetryAttempts++
			}
			if task.RetryCount >= d.maxRetryTimes() {
				return &Result{Status: "FAILED", Message: "exceeded the maximum consecutive technical failures"}, nil
			}
			if d.MaxTotalRetries > 0 && task.TotalRetryAttempts >= d.MaxTotalRetries {
				return &Result{Status: "FAILED", Message: "exceeded configured total retry budget"}, nil
			}
		} else if res.Status == actionkit.StatusSuccess {
			task.RetryCount = 0 // a successful action breaks the failure streak; a non-penalizing failure leaves the count unchanged
		}

		task.Reflection = comments
		feedback := comments
		if runID, ok := res.Meta["run_id"].(string); ok && runID != "" {
			feedback = fmt.Sprintf("%s [terminal_run_id:%s]", feedback, runID)
			if res.IsFailure() {
				task.LastTerminalFailure = runID
			}
		}
		if feedback != "" {
			if err := d.Memory.AddMessage(memory.RoleUser, feedback, "", true, nil); err != nil {
				return nil, err
			}
		}
		_ = status
	}

	return nil, nil
}


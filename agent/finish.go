package agent

import (
	"lemonai.dev/codeact/actionkit"
)

// handleFinish handles a finish action that actionkit has already confirmed
// carries a valid status (an invalid
// status/missing status was rewritten to evaluation(failure) upstream in
// actionkit.Validate, and falls through the Evaluation branch of
// runIteration instead of reaching here). done reports whether the task
// has reached a terminal Result.
func handleFinish(task *Task, a actionkit.Action) (res *Result, done bool, err error) {
	status := a.Get("status")
	message := a.Get("message")

	task.LastFinishStatus = status

	if status == "SUCCESS" {
		task.Reflection = ""
		return &Result{Status: "SUCCESS", Message: message}, true, nil
	}
	task.Reflection = message
	return &Result{Status: "FAILED", Message: message}, true, nil
}

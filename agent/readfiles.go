package agent

import (
	"context"
	"strings"

	"lemonai.dev/codeact/actionkit"
)

// trackReadFileFailure tracks transient read_file failures by path for
// future revalidation: a read_file that fails as NOT_FOUND or INACCESSIBLE
// is remembered; a read_file that now succeeds clears any earlier memory of
// it.
func trackReadFileFailure(task *Task, a actionkit.Action, res *actionkit.Result) {
	if a.Type != actionkit.ReadFile {
		return
	}
	path := a.Get("path")
	if path == "" {
		return
	}
	if res.IsFailure() {
		class, _ := res.Meta["error_class"].(string)
		if class == "NOT_FOUND" || class == "INACCESSIBLE" {
			task.transientReadErrors[path] = class
		}
		return
	}
	delete(task.transientReadErrors, path)
}

// revalidateReadErrors retries every path tracked as a transient read
// failure with a fresh read_file; a path that now
// resolves is dropped from tracking, and any reflection feedback naming it
// is cleared so the model is not shown a stale complaint.
func revalidateReadErrors(ctx context.Context, task *Task, d Deps) {
	for path := range task.transientReadErrors {
		res := d.Dispatcher.Dispatch(ctx, actionkit.Action{Type: actionkit.ReadFile, Params: map[string]string{"path": path}})
		if res.IsFailure() {
			continue
		}
		delete(task.transientReadErrors, path)
		if task.Reflection != "" && strings.Contains(task.Reflection, path) {
			task.Reflection = ""
		}
	}
}

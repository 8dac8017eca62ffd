package agent

import (
	"context"

	"lemonai.dev/codeact/actionkit"
)

// reflect calls the reflection collaborator. With no
// Reflector configured, it falls back to a verdict derived purely from the
// ActionResult's own status, so the loop still has feedback to show the
// model.
func reflect(ctx context.Context, d Deps, requirement string, res *actionkit.Result) (status, comments string, err error) {
	if d.Reflector == nil {
		return fallbackReflectionStatus(res), res.Comments, nil
	}
	return d.Reflector.Reflect(ctx, requirement, res)
}

// fallbackReflectionStatus derives a status label straight from the
// ActionResult when no reflection collaborator is available to judge it
// against the task's requirement.
func fallbackReflectionStatus(res *actionkit.Result) string {
	if res.IsFailure() {
		return "FAILED"
	}
	return "SUCCESS"
}

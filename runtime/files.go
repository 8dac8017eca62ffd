package runtime

import (
	"lemonai.dev/codeact/actionkit"
	"lemonai.dev/codeact/workspace"
)

func (d *Dispatcher) dispatchWriteFile(a actionkit.Action) *actionkit.Result {
	onDisk, originPath, err := d.resolvePath(a.Get("path"))
	if err != nil {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: err.Error()}
	}
	if err := workspace.WriteFile(onDisk, a.Get("content")); err != nil {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: err.Error(), Meta: map[string]any{"origin_path": originPath}}
	}
	return &actionkit.Result{
		Status:  actionkit.StatusSuccess,
		Content: "wrote " + a.Get("path"),
		Meta:    map[string]any{"origin_path": originPath},
	}
}

func (d *Dispatcher) dispatchReadFile(a actionkit.Action) *actionkit.Result {
	onDisk, originPath, err := d.resolvePath(a.Get("path"))
	if err != nil {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: err.Error()}
	}
	content, errClass, err := workspace.ReadFile(onDisk)
	if err != nil {
		return &actionkit.Result{
			Status: actionkit.StatusFailure,
			Error:  err.Error(),
			Meta:   map[string]any{"origin_path": originPath, "error_class": string(errClass)},
		}
	}
	return &actionkit.Result{
		Status:  actionkit.StatusSuccess,
		Content: content,
		Meta:    map[string]any{"origin_path": originPath},
	}
}

func (d *Dispatcher) dispatchPatchCode(a actionkit.Action) *actionkit.Result {
	onDisk, originPath, err := d.resolvePath(a.Get("path"))
	if err != nil {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: err.Error()}
	}
	current, _, readErr := workspace.ReadFile(onDisk)
	if readErr != nil {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: readErr.Error(), Meta: map[string]any{"origin_path": originPath}}
	}
	patched, err := workspace.ApplyUnifiedDiff(a.Get("path"), current, a.Get("diff"))
	if err != nil {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: err.Error(), Meta: map[string]any{"origin_path": originPath}}
	}
	if pat := workspace.CheckPythonGuardrail(a.Get("path"), patched); pat != "" {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: "patch rejected: contains interactive input pattern " + pat, Meta: map[string]any{"origin_path": originPath}}
	}
	if err := workspace.WriteFile(onDisk, patched); err != nil {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: err.Error(), Meta: map[string]any{"origin_path": originPath}}
	}
	return &actionkit.Result{
		Status:  actionkit.StatusSuccess,
		Content: workspace.GenerateUnifiedDiff(a.Get("path"), current, patched),
		Meta:    map[string]any{"origin_path": originPath},
	}
}

func (d *Dispatcher) dispatchReplaceCodeBlock(a actionkit.Action) *actionkit.Result {
	onDisk, originPath, err := d.resolvePath(a.Get("path"))
	if err != nil {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: err.Error()}
	}
	current, _, readErr := workspace.ReadFile(onDisk)
	if readErr != nil {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: readErr.Error(), Meta: map[string]any{"origin_path": originPath}}
	}
	newContent, err := workspace.ReplaceCodeBlock(current, a.Get("code_block"))
	if err != nil {
		meta := map[string]any{"origin_path": originPath}
		if noMatch, ok := err.(*workspace.NoMatchError); ok {
			meta["current_file"] = noMatch.CurrentFile
			meta["keyid"] = noMatch.KeyID
		} else if _, ok := err.(*workspace.NoOpError); ok {
			meta["keyid"] = "replace_code_block_noop"
		}
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: err.Error(), Meta: meta}
	}
	if pat := workspace.CheckPythonGuardrail(a.Get("path"), newContent); pat != "" {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: "replace rejected: contains interactive input pattern " + pat, Meta: map[string]any{"origin_path": originPath}}
	}
	if err := workspace.WriteFile(onDisk, newContent); err != nil {
		return &actionkit.Result{Status: actionkit.StatusFailure, Error: err.Error(), Meta: map[string]any{"origin_path": originPath}}
	}
	return &actionkit.Result{
		Status:  actionkit.StatusSuccess,
		Content: workspace.GenerateUnifiedDiff(a.Get("path"), current, newContent),
		Meta:    map[string]any{"origin_path": originPath},
	}
}

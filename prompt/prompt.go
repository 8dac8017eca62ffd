// Package prompt assembles the single string handed to the LLM each turn
// from a role header, a system descriptor, the tool catalog, a workspace
// file listing, memory's memorized-content summary, a previous-conversation
// digest, the task's goal/requirement, an optional error-feedback block,
// and an evaluation sub-prompt.
//
// Grounded on claudetool/about_sketch.go's embedded text/template role-
// header rendering, generalized from a single static template to the two
// role headers prompt_mode switches between.
package prompt

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"lemonai.dev/codeact/agent"
	"lemonai.dev/codeact/memory"
)

//go:embed templates/thinking_header_build.txt
var buildHeaderSrc string

//go:embed templates/thinking_header_codecorrector.txt
var codecorrectorHeaderSrc string

var (
	buildHeaderTemplate         = template.Must(template.New("thinking_header_build").Parse(buildHeaderSrc))
	codecorrectorHeaderTemplate = template.Must(template.New("thinking_header_codecorrector").Parse(codecorrectorHeaderSrc))
)

type headerVars struct {
	SessionID string
}

func renderHeader(mode agent.PromptMode, sessionID string) (string, error) {
	tmpl := buildHeaderTemplate
	if mode == agent.ModeCodeCorrector {
		tmpl = codecorrectorHeaderTemplate
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, headerVars{SessionID: sessionID}); err != nil {
		return "", fmt.Errorf("render role header: %w", err)
	}
	return b.String(), nil
}

// HistoryDigester is the "previous conversation digest" external
// collaborator: it summarizes conversation activity that predates the
// current task's own memory file. An out-of-process service this core only
// calls through this narrow interface.
type HistoryDigester interface {
	Digest(ctx context.Context, conversationID string) (string, error)
}

// EvaluationPrompter is the "evaluation sub-prompt" collaborator: it
// supplies an extra instructional block steering how the model should
// judge its own progress this turn.
type EvaluationPrompter interface {
	EvaluationPrompt(ctx context.Context, task *agent.Task) (string, error)
}

// Builder implements agent.PromptBuilder.
type Builder struct {
	WorkspaceDir   string // conversation-scoped root to list files under
	SessionID      string
	ConversationID string

	Catalog  Catalog
	History  HistoryDigester
	Evaluate EvaluationPrompter

	// wroteFirst guards the "write the first turn's prompt to memory as the
	// first user message" rule, so later turns don't repeat it; AddMessage
	// dedupes identical adjacent content regardless, but this avoids even
	// attempting it.
	wroteFirst bool
}

// Build assembles the next prompt string for task.
func (b *Builder) Build(ctx context.Context, task *agent.Task, mem *memory.Store) (string, error) {
	header, err := renderHeader(task.PromptMode, b.SessionID)
	if err != nil {
		return "", err
	}

	var parts []string
	parts = append(parts, strings.TrimRight(header, "\n"))
	parts = append(parts, renderSystemDescriptor())
	parts = append(parts, b.Catalog.Render(ctx))

	if listing, err := renderWorkspaceListing(b.WorkspaceDir); err == nil && listing != "" {
		parts = append(parts, "=== Workspace Files ===\n"+listing)
	}

	if memorized := mem.GetMemorizedContent(); memorized != "" {
		parts = append(parts, "=== Memorized Content ===\n"+memorized)
	}

	if b.History != nil {
		if digest, err := b.History.Digest(ctx, b.ConversationID); err == nil && digest != "" {
			parts = append(parts, "=== Previous Conversation ===\n"+digest)
		}
	}

	parts = append(parts, "=== Goal ===\n"+task.Goal)
	if task.Requirement != "" && task.Requirement != task.Goal {
		parts = append(parts, "=== Current Requirement ===\n"+task.Requirement)
	}

	// Removed entirely once the last finish was SUCCESS.
	if task.Reflection != "" && task.LastFinishStatus != "SUCCESS" {
		parts = append(parts, "=== Error Feedback ===\n"+task.Reflection)
	}

	if b.Evaluate != nil {
		if sub, err := b.Evaluate.EvaluationPrompt(ctx, task); err == nil && sub != "" {
			parts = append(parts, "=== Evaluation ===\n"+sub)
		}
	}

	out := strings.Join(parts, "\n\n")

	if !b.wroteFirst && len(mem.Messages()) == 0 {
		if err := mem.AddMessage(memory.RoleUser, out, "", false, nil); err != nil {
			return "", err
		}
	}
	b.wroteFirst = true

	return out, nil
}

// Package skribe defines codeact-wide logging types and functions.
//
// Logging happens via slog.
package skribe

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"
)

type attrsKey struct{}

// secretEnvVars is the configured set of environment variable names whose
// values Redact replaces with "[REDACTED]". The
// teacher hardcoded a single provider key name; this deployment's
// provider table (llm/stream) is larger, so the set is populated by
// config at startup via SetSecretEnvVars.
var secretEnvVars = []string{"ANTHROPIC_API_KEY"}

// SetSecretEnvVars replaces the set of env var names Redact treats as
// secret. Called once during startup with the configured provider key
// names (config.Config.APIKeyEnvVars).
func SetSecretEnvVars(names []string) {
	secretEnvVars = slices.Clone(names)
}

func Redact(arr []string) []string {
	ret := []string{}
	for _, s := range arr {
		redacted := s
		for _, name := range secretEnvVars {
			if strings.HasPrefix(s, name+"=") {
				redacted = name + "=[REDACTED]"
				break
			}
		}
		ret = append(ret, redacted)
	}
	return ret
}

// SanitizePaths strips occurrences of any of the given absolute workspace
// root paths from s, replacing each with "<workspace>" so conversation-
// local filesystem layout never leaks into a log line or a persisted
// message. Used by memory.Store's per-message sanitize step and by the
// agent's exception notices; log output does not pass through it.
func SanitizePaths(s string, workspaceRoots ...string) string {
	for _, root := range workspaceRoots {
		if root == "" {
			continue
		}
		s = strings.ReplaceAll(s, root, "<workspace>")
	}
	return s
}

func ContextWithAttr(ctx context.Context, add ...slog.Attr) context.Context {
	attrs := slices.Clone(Attrs(ctx))
	attrs = append(attrs, add...)
	return context.WithValue(ctx, attrsKey{}, attrs)
}

func Attrs(ctx context.Context) []slog.Attr {
	attrs, _ := ctx.Value(attrsKey{}).([]slog.Attr)
	return attrs
}

func AttrsWrap(h slog.Handler) slog.Handler {
	return &augmentHandler{Handler: h}
}

type augmentHandler struct {
	slog.Handler
}

func (h *augmentHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := Attrs(ctx)
	r.AddAttrs(attrs...)
	return h.Handler.Handle(ctx, r)
}

type multiHandler struct {
	AllHandler slog.Handler
}

// Enabled implements slog.Handler. Ignores slog.Level - if there's a logger, this returns true.
func (mh *multiHandler) Enabled(ctx context.Context, l slog.Level) bool {
	_, ok := ctx.Value(skribeCtxHandlerKey).(slog.Handler)
	return ok
}

// WithAttrs implements slog.Handler.
func (mh *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	panic("unimplemented")
}

// WithGroup implements slog.Handler.
func (mh *multiHandler) WithGroup(name string) slog.Handler {
	panic("unimplemented")
}

func NewMultiHandler() *multiHandler {
	return &multiHandler{}
}

type scribeCtxKeyType string

const skribeCtxHandlerKey scribeCtxKeyType = "skribe-handlerKey"

func (mh *multiHandler) NewSlogHandlerCtx(ctx context.Context, logFile io.Writer) context.Context {
	h := slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug})
	w := AttrsWrap(h)
	return context.WithValue(ctx, skribeCtxHandlerKey, w)
}

func (mh *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	if mh.AllHandler != nil {
		if err := mh.AllHandler.Handle(ctx, r); err != nil {
			return err
		}
	}
	attrs := Attrs(ctx)
	r.AddAttrs(attrs...)
	handler, ok := ctx.Value(skribeCtxHandlerKey).(slog.Handler)
	if !ok {
		panic("no skribeCtxHandlerKey value in ctx")
	}
	return handler.Handle(ctx, r)
}

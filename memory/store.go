package memory

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/richardlehane/crock32"
	"lemonai.dev/codeact/skribe"
)

// Default tuning knobs; Store's zero value uses these defaults, but config
// wires them from the agent's configured values.
const (
	DefaultRepeatDetectWindow  = 2
	DefaultPruneKeepOccurences = 3
	DefaultPruneMaxChars       = 60000
)

// Store is a per-(conversation, task) ordered message log, persisted as a
// JSON file. One Store exists per running task; its file is exclusively
// owned by this package.
//
// Grounded on llm/conversation/convo.go's newConvoID short-id scheme
// (crock32-encoded random uint32) for naming the on-disk file, and on the
// teacher's general "write JSON, no database" persistence style.
type Store struct {
	mu       sync.Mutex
	path     string
	messages []Message

	RepeatDetectWindow  int
	PruneKeepOccurences int
	PruneMaxChars       int

	// WorkspaceRoots is stripped from every persisted message's content so
	// conversation-local filesystem paths never leak into stored memory.
	WorkspaceRoots []string

	// pendingRepeatError holds a queued anti-loop correction until the next
	// eligible message is appended.
	pendingRepeatError string
}

// TaskKey returns a short, filesystem-safe identifier for a new task,
// grounded on convo.go's newConvoID (crock32-encoded random uint32,
// zero-padded and hyphenated for readability).
func TaskKey() string {
	s := crock32.Encode(uint64(rand.Uint32()))
	if len(s) < 7 {
		s += strings.Repeat("0", 7-len(s))
	}
	return s[:3] + "-" + s[3:]
}

// Open loads or creates the store backing <memoryDir>/<convPrefix>/<taskKey>.json.
func Open(memoryDir, convPrefix, taskKey string) (*Store, error) {
	dir := filepath.Join(memoryDir, convPrefix)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	s := &Store{
		path:                filepath.Join(dir, taskKey+".json"),
		RepeatDetectWindow:  DefaultRepeatDetectWindow,
		PruneKeepOccurences: DefaultPruneKeepOccurences,
		PruneMaxChars:       DefaultPruneMaxChars,
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read memory file: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.messages); err != nil {
			return nil, fmt.Errorf("parse memory file: %w", err)
		}
	}
	return s, nil
}

// Messages returns a snapshot of the current message list.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) persistLocked() error {
	raw, err := json.MarshalIndent(s.messages, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal memory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write memory temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace memory file: %w", err)
	}
	return nil
}

func (s *Store) sanitize(content string) string {
	return skribe.SanitizePaths(content, s.WorkspaceRoots...)
}

// AddMessage sanitizes, keys, anti-loop-checks, de-duplicates, and prunes
// content before appending msg to the store and persisting it to disk.
func (s *Store) AddMessage(role Role, content, actionType string, memorized bool, meta map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	content = s.sanitize(content)
	if meta == nil {
		meta = map[string]any{}
	}

	msg := Message{ID: newID(), Role: role, Content: content, ActionType: actionType, Memorized: memorized, Meta: meta}
	if msg.ActionType == "" {
		msg.ActionType = detectActionType(msg.Content)
	}

	if role == RoleAssistant {
		if s.pendingRepeatError != "" {
			// No "Acknowledged." arrived between detection and this
			// assistant append, so prepend the correction instead.
			msg.Content = s.pendingRepeatError + "\n\n" + msg.Content
			s.pendingRepeatError = ""
		}
		s.runAntiLoop(&msg)
	} else if role == RoleUser && content == "Acknowledged." && s.pendingRepeatError != "" {
		// Replace the next "Acknowledged." to preserve role alternation.
		msg.Content = s.pendingRepeatError
		s.pendingRepeatError = ""
	}

	// Adjacent de-duplication.
	if n := len(s.messages); n > 0 {
		last := s.messages[n-1]
		if last.Role == msg.Role && last.Content == msg.Content {
			return nil
		}
	}

	s.deriveKeys(&msg)

	if msg.meta()["toolCallKey"] != nil {
		if err := s.pruneOccurrences(msg); err != nil {
			return err
		}
	}

	s.messages = append(s.messages, msg)
	s.pruneByCharBudget()

	return s.persistLocked()
}

// fileTools is the set of tool names whose stableKey is a file basename.
var fileTools = map[string]bool{
	"read_file": true, "write_code": true, "write_file": true,
	"patch_code": true, "replace_code_block": true,
}

func (s *Store) deriveKeys(msg *Message) {
	if msg.Role != RoleAssistant {
		// A user message immediately following an assistant tool call
		// inherits its prune_hash.
		if n := len(s.messages); n > 0 {
			prev := s.messages[n-1]
			if prev.Role == RoleAssistant && prev.metaString("toolCallKey") != "" {
				msg.meta()["prune_hash"] = prev.metaString("prune_hash")
			}
		}
		return
	}

	toolName := msg.ActionType
	if toolName == "information" {
		msg.meta()["prune_hash"] = sha1Hex16(normalizeForHash(msg.Content))
		return
	}
	if !fileTools[toolName] && toolName != "terminal_run" {
		return
	}

	stableKey := s.stableKey(toolName, msg)
	if stableKey == "" {
		return
	}
	key := sha1Hex16(toolName + "||" + stableKey)
	msg.meta()["toolCallKey"] = key
	msg.meta()["prune_hash"] = key
}

func (s *Store) stableKey(toolName string, msg *Message) string {
	if toolName == "terminal_run" {
		command, ok := msg.Meta["command"].(string)
		if !ok || command == "" {
			command = extractXMLField(msg.Content, "command")
		}
		argsV, ok := msg.Meta["args"].(string)
		if !ok {
			argsV = extractXMLField(msg.Content, "args")
		}
		cwd, ok := msg.Meta["cwd"].(string)
		if !ok {
			cwd = extractXMLField(msg.Content, "cwd")
		}
		if command == "" {
			return ""
		}
		return command + " " + argsV + "||" + cwd
	}
	if origin, ok := msg.Meta["origin_path"].(string); ok && origin != "" {
		return filepath.Base(origin)
	}
	if p, ok := msg.Meta["path"].(string); ok && p != "" {
		return filepath.Base(p)
	}
	if p := extractXMLField(msg.Content, "path"); p != "" {
		return filepath.Base(p)
	}
	if fp, ok := msg.Meta["filepath"].(string); ok && fp != "" {
		return filepath.Base(fp)
	}
	return ""
}

// extractXMLField does a minimal best-effort scrape of <field>...</field>
// out of raw tool-call content, used only as a stableKey fallback.
func extractXMLField(content, field string) string {
	open := "<" + field + ">"
	closeTag := "</" + field + ">"
	i := strings.Index(content, open)
	if i < 0 {
		return ""
	}
	j := strings.Index(content[i+len(open):], closeTag)
	if j < 0 {
		return ""
	}
	return strings.TrimSpace(content[i+len(open) : i+len(open)+j])
}

// detectActionType recovers the logical tool name from an XML opener at
// the start of content, after stripping a leading <think> block.
func detectActionType(content string) string {
	content = strings.TrimSpace(stripThink(content))
	if !strings.HasPrefix(content, "<") {
		return ""
	}
	end := strings.IndexAny(content[1:], " \t\n>/")
	if end < 0 {
		return ""
	}
	name := content[1 : end+1]
	if name == "" || strings.HasPrefix(name, "!") {
		return ""
	}
	return name
}

func stripThink(content string) string {
	for {
		i := strings.Index(content, "<think>")
		if i < 0 {
			return content
		}
		j := strings.Index(content[i:], "</think>")
		if j < 0 {
			return content[:i]
		}
		content = content[:i] + content[i+j+len("</think>"):]
	}
}

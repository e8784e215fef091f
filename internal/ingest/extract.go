package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ToolEvent is the normalized shape of a PostToolUse/PostToolUseFailure
// hook payload, independent of the host's wire format.
type ToolEvent struct {
	ToolName  string
	Input     map[string]any
	Output    string
	Failed    bool
	SessionID string
}

// extracted is the summary HookIngest turns into an Observation, before
// redaction and admission filtering.
type extracted struct {
	title   string
	content string
}

// extractSummary classifies a tool event by tool name and produces its
// semantic summary, following the teacher's parseAiderLine shape: a flat
// switch classifying by name/prefix rather than a generic dispatcher.
func extractSummary(ev ToolEvent) extracted {
	switch {
	case ev.ToolName == "Write" || ev.ToolName == "Edit" || ev.ToolName == "MultiEdit":
		return extracted{
			title:   fmt.Sprintf("%s %s", ev.ToolName, pathFromInput(ev.Input)),
			content: writeEditSummary(ev),
		}
	case ev.ToolName == "Bash":
		return extracted{
			title:   "Bash: " + truncate(stringField(ev.Input, "command"), 80),
			content: bashSummary(ev),
		}
	case ev.ToolName == "Read":
		return extracted{
			title:   "Read " + pathFromInput(ev.Input),
			content: fmt.Sprintf("read %s", pathFromInput(ev.Input)),
		}
	case ev.ToolName == "Glob" || ev.ToolName == "Grep":
		return extracted{
			title:   ev.ToolName + ": " + truncate(stringField(ev.Input, "pattern"), 80),
			content: fmt.Sprintf("%s search for %q", ev.ToolName, stringField(ev.Input, "pattern")),
		}
	case strings.HasPrefix(ev.ToolName, "mcp__"):
		return extracted{
			title:   "MCP tool: " + ev.ToolName,
			content: fmt.Sprintf("invoked %s with input digest %s", ev.ToolName, inputDigest(ev.Input)),
		}
	default:
		return extracted{
			title:   ev.ToolName,
			content: truncate(ev.Output, 2000),
		}
	}
}

func writeEditSummary(ev ToolEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s on %s", ev.ToolName, pathFromInput(ev.Input))
	if ev.Failed {
		b.WriteString(" (failed)")
	}
	if content := stringField(ev.Input, "content"); content != "" {
		fmt.Fprintf(&b, "\n\n%s", truncate(content, 4000))
	} else if newStr := stringField(ev.Input, "new_string"); newStr != "" {
		fmt.Fprintf(&b, "\n\n%s", truncate(newStr, 4000))
	}
	return b.String()
}

func bashSummary(ev ToolEvent) string {
	cmd := stringField(ev.Input, "command")
	out := truncate(ev.Output, 1500)
	if ev.Failed {
		return fmt.Sprintf("$ %s\n(failed)\n%s", cmd, out)
	}
	return fmt.Sprintf("$ %s\n%s", cmd, out)
}

func pathFromInput(input map[string]any) string {
	if p := stringField(input, "file_path"); p != "" {
		return p
	}
	return stringField(input, "path")
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func inputDigest(input map[string]any) string {
	var b strings.Builder
	for k, v := range input {
		fmt.Fprintf(&b, "%s=%v;", k, v)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:12]
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

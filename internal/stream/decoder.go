// Package stream decodes the assistant's line-delimited structured
// output into typed events, and extracts the PR number and session id
// needed by the Worker Pool's reconciliation logic.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/claude-swarm/orchestrator/models"
)

// Event is one decoded record from the assistant's stdout stream.
type Event struct {
	Type    string
	Summary string
	Raw     map[string]interface{}
}

// DecodeLine parses one line of stream-json output. A line that fails
// structural parsing yields (nil, false) and is logged at debug —
// never treated as an error that aborts the reader.
func DecodeLine(line string) (*Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		slog.Debug("Non-JSON line from assistant stream", "line", truncate(line, 200))
		return nil, false
	}

	msgType, _ := data["type"].(string)
	if msgType == "" {
		msgType = "unknown"
	}

	switch msgType {
	case models.EventTypeAssistant:
		return &Event{Type: models.EventTypeAssistant, Summary: assistantSummary(data), Raw: data}, true
	case models.EventTypeToolUse:
		return &Event{Type: models.EventTypeToolUse, Summary: toolUseSummary(data), Raw: data}, true
	case models.EventTypeToolResult:
		return &Event{Type: models.EventTypeToolResult, Summary: "(tool result)", Raw: data}, true
	case models.EventTypeResult:
		return &Event{Type: models.EventTypeResult, Summary: resultSummary(data), Raw: data}, true
	case models.EventTypeError:
		return &Event{Type: models.EventTypeError, Summary: errorSummary(data), Raw: data}, true
	default:
		// system, or any other type — passed through verbatim.
		return &Event{Type: msgType, Summary: truncate(jsonOrEmpty(data), 200), Raw: data}, true
	}
}

func assistantSummary(data map[string]interface{}) string {
	message, _ := data["message"].(map[string]interface{})
	blocks, _ := message["content"].([]interface{})

	var parts []string
	for _, b := range blocks {
		block, ok := b.(map[string]interface{})
		if !ok {
			if s, ok := b.(string); ok {
				parts = append(parts, s)
			}
			continue
		}
		switch block["type"] {
		case "text":
			if t, ok := block["text"].(string); ok {
				parts = append(parts, t)
			}
		case "tool_use":
			parts = append(parts, toolInvocationMarker(block))
		case "thinking":
			if t, ok := block["thinking"].(string); ok && t != "" {
				parts = append(parts, "(thinking) "+t)
			} else if len(parts) == 0 {
				parts = append(parts, "(thinking...)")
			}
		}
	}

	summary := strings.Join(parts, " ")
	if summary == "" {
		summary = "(thinking...)"
	}
	return summary
}

func toolInvocationMarker(block map[string]interface{}) string {
	name, _ := block["name"].(string)
	if name == "" {
		name = "tool"
	}
	input, _ := block["input"].(map[string]interface{})

	switch name {
	case "Bash":
		cmd, _ := input["command"].(string)
		return fmt.Sprintf("[$ %s]", truncate(cmd, 80))
	case "Read":
		path, _ := input["file_path"].(string)
		return fmt.Sprintf("[Read %s]", orQuestionMark(path))
	case "Edit", "Write":
		path, _ := input["file_path"].(string)
		return fmt.Sprintf("[%s %s]", name, orQuestionMark(path))
	case "Skill":
		skill, _ := input["skill"].(string)
		return fmt.Sprintf("[Skill: %s]", orQuestionMark(skill))
	default:
		return fmt.Sprintf("[%s]", name)
	}
}

func toolUseSummary(data map[string]interface{}) string {
	name, _ := data["tool"].(string)
	if name == "" {
		name, _ = data["name"].(string)
	}
	if name == "" {
		name = "unknown"
	}
	input, _ := data["input"].(map[string]interface{})

	switch name {
	case "Bash":
		cmd, _ := input["command"].(string)
		return "Bash: " + truncate(cmd, 100)
	case "Read":
		path, _ := input["file_path"].(string)
		return "Read: " + orQuestionMark(path)
	case "Edit", "Write":
		path, _ := input["file_path"].(string)
		return name + ": " + orQuestionMark(path)
	default:
		return name + ": " + truncate(jsonOrEmpty(input), 100)
	}
}

func resultSummary(data map[string]interface{}) string {
	switch v := data["result"].(type) {
	case string:
		if v == "" {
			return "Agent finished"
		}
		return truncate(v, 200)
	case map[string]interface{}:
		return truncate(jsonOrEmpty(v), 200)
	default:
		return "Agent finished"
	}
}

func errorSummary(data map[string]interface{}) string {
	switch v := data["error"].(type) {
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			return truncate(msg, 200)
		}
		return truncate(jsonOrEmpty(v), 200)
	case string:
		return truncate(v, 200)
	default:
		return "unknown error"
	}
}

func orQuestionMark(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func jsonOrEmpty(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// prNumberPatterns matches pull/<n>, PR #<n> and pull request [#]<n>,
// case-insensitively, in a serialized raw record.
var prNumberPatterns = regexp.MustCompile(`(?i)(?:pull/|PR #|pr #|pull request #?)(\d+)`)

// ExtractPRNumber scans events newest-first and returns the number from
// the last match within the newest event that has any match, or
// (0, false) if no event matches.
func ExtractPRNumber(events []*Event) (int64, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		raw := jsonOrEmpty(events[i].Raw)
		matches := prNumberPatterns.FindAllStringSubmatch(raw, -1)
		if len(matches) == 0 {
			continue
		}
		last := matches[len(matches)-1]
		var n int64
		if _, err := fmt.Sscanf(last[1], "%d", &n); err == nil {
			return n, true
		}
	}
	return 0, false
}

// ExtractSessionID scans events (and nested message/result/metadata
// sub-records) for a session_id or sessionId field, returning the
// first found.
func ExtractSessionID(events []*Event) (string, bool) {
	for _, e := range events {
		if sid, ok := sessionIDFrom(e.Raw); ok {
			return sid, true
		}
		for _, key := range []string{"message", "result", "metadata"} {
			if nested, ok := e.Raw[key].(map[string]interface{}); ok {
				if sid, ok := sessionIDFrom(nested); ok {
					return sid, true
				}
			}
		}
	}
	return "", false
}

func sessionIDFrom(m map[string]interface{}) (string, bool) {
	if v, ok := m["session_id"]; ok {
		if s := fmt.Sprintf("%v", v); s != "" && s != "<nil>" {
			return s, true
		}
	}
	if v, ok := m["sessionId"]; ok {
		if s := fmt.Sprintf("%v", v); s != "" && s != "<nil>" {
			return s, true
		}
	}
	return "", false
}

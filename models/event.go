package models

import "time"

// Event type constants produced by the stream decoder.
const (
	EventTypeAssistant  = "assistant"
	EventTypeToolUse    = "tool_use"
	EventTypeToolResult = "tool_result"
	EventTypeResult     = "result"
	EventTypeError      = "error"
	EventTypeSystem     = "system"
)

// WorkerEvent is one append-only record of a worker's stdout stream.
type WorkerEvent struct {
	ID        int64     `db:"id"`
	AgentID   string    `db:"agent_id"`
	EventType string    `db:"event_type"`
	EventData string    `db:"event_data"`
	Timestamp time.Time `db:"timestamp"`
}

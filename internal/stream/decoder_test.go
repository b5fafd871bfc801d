package stream

import "testing"

func TestDecodeLineAssistantText(t *testing.T) {
	line := `{"type":"assistant","message":{"content":[{"type":"text","text":"Looking at the issue now."}]}}`
	ev, ok := DecodeLine(line)
	if !ok {
		t.Fatal("expected decode success")
	}
	if ev.Type != "assistant" {
		t.Fatalf("unexpected type: %s", ev.Type)
	}
	if ev.Summary != "Looking at the issue now." {
		t.Fatalf("unexpected summary: %q", ev.Summary)
	}
}

func TestDecodeLineAssistantToolUse(t *testing.T) {
	line := `{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Bash","input":{"command":"go test ./..."}}]}}`
	ev, ok := DecodeLine(line)
	if !ok {
		t.Fatal("expected decode success")
	}
	if ev.Summary != "[$ go test ./...]" {
		t.Fatalf("unexpected summary: %q", ev.Summary)
	}
}

func TestDecodeLineResult(t *testing.T) {
	line := `{"type":"result","result":"done"}`
	ev, ok := DecodeLine(line)
	if !ok {
		t.Fatal("expected decode success")
	}
	if ev.Summary != "done" {
		t.Fatalf("unexpected summary: %q", ev.Summary)
	}
}

func TestDecodeLineError(t *testing.T) {
	line := `{"type":"error","error":{"message":"boom"}}`
	ev, ok := DecodeLine(line)
	if !ok {
		t.Fatal("expected decode success")
	}
	if ev.Summary != "boom" {
		t.Fatalf("unexpected summary: %q", ev.Summary)
	}
}

func TestDecodeLineSystemPassthrough(t *testing.T) {
	line := `{"type":"system","subtype":"init"}`
	ev, ok := DecodeLine(line)
	if !ok {
		t.Fatal("expected decode success")
	}
	if ev.Type != "system" {
		t.Fatalf("expected passthrough type, got %s", ev.Type)
	}
}

func TestDecodeLineMalformedIgnored(t *testing.T) {
	if _, ok := DecodeLine("not json at all"); ok {
		t.Fatal("expected malformed line to be rejected")
	}
	if _, ok := DecodeLine("  "); ok {
		t.Fatal("expected blank line to be rejected")
	}
}

func TestExtractPRNumberNewestMatchWins(t *testing.T) {
	events := []*Event{
		{Raw: map[string]interface{}{"text": "see pull/11 for context"}},
		{Raw: map[string]interface{}{"text": "opened PR #42"}},
	}
	n, ok := ExtractPRNumber(events)
	if !ok || n != 42 {
		t.Fatalf("expected 42, got %d ok=%v", n, ok)
	}
}

func TestExtractPRNumberLastMatchInNewestEvent(t *testing.T) {
	events := []*Event{
		{Raw: map[string]interface{}{"text": "created pr #5 then pr #9 after rebasing"}},
	}
	n, ok := ExtractPRNumber(events)
	if !ok || n != 9 {
		t.Fatalf("expected 9, got %d ok=%v", n, ok)
	}
}

func TestExtractPRNumberNoMatch(t *testing.T) {
	events := []*Event{{Raw: map[string]interface{}{"text": "nothing here"}}}
	if _, ok := ExtractPRNumber(events); ok {
		t.Fatal("expected no match")
	}
}

func TestExtractSessionIDTopLevel(t *testing.T) {
	events := []*Event{
		{Raw: map[string]interface{}{"type": "system"}},
		{Raw: map[string]interface{}{"session_id": "abc-123"}},
	}
	sid, ok := ExtractSessionID(events)
	if !ok || sid != "abc-123" {
		t.Fatalf("expected abc-123, got %q ok=%v", sid, ok)
	}
}

func TestExtractSessionIDNested(t *testing.T) {
	events := []*Event{
		{Raw: map[string]interface{}{"message": map[string]interface{}{"sessionId": "nested-1"}}},
	}
	sid, ok := ExtractSessionID(events)
	if !ok || sid != "nested-1" {
		t.Fatalf("expected nested-1, got %q ok=%v", sid, ok)
	}
}

func TestExtractSessionIDAbsent(t *testing.T) {
	events := []*Event{{Raw: map[string]interface{}{"type": "assistant"}}}
	if _, ok := ExtractSessionID(events); ok {
		t.Fatal("expected no session id")
	}
}

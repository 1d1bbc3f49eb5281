package emit

import (
	"bytes"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
)

func TestLogEmitter_Text(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogEmitter(&buf, false)

	l.Emit(Event{RunID: "run-1", Seq: 2, NodeID: "fetch", Msg: "node_start"})
	line := buf.String()
	if !strings.HasPrefix(line, "[node_start] runID=run-1 seq=2 nodeID=fetch") {
		t.Errorf("text line = %q", line)
	}

	buf.Reset()
	l.Emit(Event{RunID: "run-1", Seq: 2, NodeID: "fetch", Msg: "node_end", Meta: map[string]any{"duration_ms": 5}})
	if !strings.Contains(buf.String(), "meta=") {
		t.Errorf("meta missing from %q", buf.String())
	}
}

func TestLogEmitter_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogEmitter(&buf, true)

	l.Emit(Event{RunID: "run-1", Seq: 0, NodeID: "fetch", Msg: "node_start", Meta: map[string]any{"kind": "http_get"}})

	var decoded struct {
		RunID  string         `json:"runID"`
		Seq    int            `json:"seq"`
		NodeID string         `json:"nodeID"`
		Msg    string         `json:"msg"`
		Meta   map[string]any `json:"meta"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if decoded.RunID != "run-1" || decoded.Msg != "node_start" || decoded.Meta["kind"] != "http_get" {
		t.Errorf("decoded = %+v", decoded)
	}
}

// Package events defines the workflow event stream: typed events emitted by
// the engine, an in-process bus for live subscribers, and a JSONL writer
// with daily rotation for durable history.
package events

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Type identifies the kind of workflow event.
type Type string

const (
	TypeStageStart       Type = "stage_start"
	TypeStageEnd         Type = "stage_end"
	TypeToolCall         Type = "tool_call"
	TypeToolResult       Type = "tool_result"
	TypeMessage          Type = "message"
	TypeAskUser          Type = "ask_user"
	TypeWorkflowPaused   Type = "workflow_paused"
	TypeWorkflowComplete Type = "workflow_complete"
	TypeError            Type = "error"
)

// Event is one record on the workflow stream. Payload holds type-specific
// detail (tool name, question text, error message) as loose key/value pairs
// so consumers can render without knowing every variant.
type Event struct {
	ID        string         `json:"id"`
	ThreadID  string         `json:"thread_id"`
	Type      Type           `json:"type"`
	Stage     string         `json:"stage,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// New builds an event with a sortable ID and the current timestamp.
func New(threadID string, typ Type, stage string, payload map[string]any) Event {
	return Event{
		ID:        ulid.Make().String(),
		ThreadID:  threadID,
		Type:      typ,
		Stage:     stage,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// ToJSON serializes the event for the JSONL log.
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses one JSONL record.
func FromJSON(data []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(data, &e)
	return e, err
}

// Sink receives events. The engine fans every event out to all configured
// sinks; a sink must not block for long.
type Sink interface {
	Emit(e Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(e Event)

// Emit calls the wrapped function.
func (f SinkFunc) Emit(e Event) { f(e) }

// Multi fans out to several sinks in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			if s != nil {
				s.Emit(e)
			}
		}
	})
}

// Discard drops all events.
var Discard Sink = SinkFunc(func(Event) {})

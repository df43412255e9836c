//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package debug turns the engine's per-step execution state into immutable,
// serializable debug events and checkpoint snapshots.
package debug

import (
	"encoding/json"
	"fmt"
	"time"

	"trpc.group/trpc-go/trpc-graph-go/graph"
)

// EventType tags the variant of an Event.
type EventType string

// Event types.
const (
	EventTypeTask       EventType = "task"
	EventTypeTaskResult EventType = "task_result"
	EventTypeCheckpoint EventType = "checkpoint"
)

// Event is one debug event. Payload is a *TaskPayload, *TaskResultPayload or
// *CheckpointPayload matching Type.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Step      int
	Payload   Payload
}

// Payload is implemented by the variant payloads of Event.
type Payload interface {
	EventType() EventType
}

// TaskPayload describes a task about to run.
type TaskPayload struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Input    any      `json:"input"`
	Triggers []string `json:"triggers"`
}

// EventType implements Payload.
func (*TaskPayload) EventType() EventType { return EventTypeTask }

// TaskResultPayload describes the writes a task produced.
type TaskResultPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Error is the message of the first error write, nil when there is none.
	Error      *string              `json:"error"`
	Result     []graph.ChannelWrite `json:"result"`
	Interrupts []map[string]any     `json:"interrupts"`
}

// EventType implements Payload.
func (*TaskResultPayload) EventType() EventType { return EventTypeTaskResult }

// CheckpointTask is the outcome of one next-step task inside a checkpoint event.
type CheckpointTask struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Error      *string          `json:"error,omitempty"`
	Interrupts []map[string]any `json:"interrupts"`
	State      *TaskState       `json:"state"`
}

// CheckpointPayload is the post-step snapshot carried by a checkpoint event.
type CheckpointPayload struct {
	Config       *graph.CheckpointConfig   `json:"config"`
	ParentConfig *graph.CheckpointConfig   `json:"parent_config"`
	Values       map[string]any            `json:"values"`
	Metadata     *graph.CheckpointMetadata `json:"metadata"`
	Next         []string                  `json:"next"`
	Tasks        []CheckpointTask          `json:"tasks"`
}

// EventType implements Payload.
func (*CheckpointPayload) EventType() EventType { return EventTypeCheckpoint }

type eventJSON struct {
	Type      EventType       `json:"type"`
	Timestamp string          `json:"timestamp"`
	Step      int             `json:"step"`
	Payload   json.RawMessage `json:"payload"`
}

// MarshalJSON encodes the event as {type, timestamp, step, payload} with an
// RFC 3339 UTC timestamp.
func (e *Event) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", e.Type, err)
	}
	return json.Marshal(eventJSON{
		Type:      e.Type,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		Step:      e.Step,
		Payload:   payload,
	})
}

// UnmarshalJSON decodes an event, selecting the payload variant by type.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		return fmt.Errorf("parse event timestamp: %w", err)
	}
	var payload Payload
	switch raw.Type {
	case EventTypeTask:
		payload = &TaskPayload{}
	case EventTypeTaskResult:
		payload = &TaskResultPayload{}
	case EventTypeCheckpoint:
		payload = &CheckpointPayload{}
	default:
		return fmt.Errorf("unknown debug event type %q", raw.Type)
	}
	if err := json.Unmarshal(raw.Payload, payload); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", raw.Type, err)
	}
	*e = Event{Type: raw.Type, Timestamp: ts, Step: raw.Step, Payload: payload}
	return nil
}

func errorMessage(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}

func interruptRecords(values []any) []map[string]any {
	records := make([]map[string]any, 0, len(values))
	for _, v := range values {
		records = append(records, graph.InterruptRecord(v))
	}
	return records
}

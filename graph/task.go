//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// TaskNamespace is the UUID namespace task ids are derived in.
var TaskNamespace = uuid.MustParse("6ba7b831-9dad-11d1-80b4-00c04fd430c8")

// Task is one unit of work selected by the scheduler for a superstep.
// It is immutable for the lifetime of the step.
type Task struct {
	// ID is unique within the step and stable across retries.
	ID string
	// Name is the graph node the task runs.
	Name string
	// Path is the structural position of the task (fan-out branches).
	Path []string
	// Input is the payload the task is invoked with.
	Input any
	// Triggers are the channels whose updates scheduled the task.
	Triggers []string
	// Tags are the execution tags of the task. See TagHidden.
	Tags []string
	// Runnable is the executable object the task invokes. It is only
	// inspected structurally, never run, by the debug mappers.
	Runnable any
}

// TaskRef returns the identity of the task.
func (t *Task) TaskRef() TaskRef {
	return TaskRef{ID: t.ID, Name: t.Name, Path: t.Path}
}

// Hidden reports whether the task carries TagHidden.
func (t *Task) Hidden() bool {
	return slices.Contains(t.Tags, TagHidden)
}

// TaskRef is the identity of a task, before or after execution.
type TaskRef struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Path []string `json:"path,omitempty"`
}

// TaskRef returns r itself so TaskRef satisfies TaskIdentity.
func (r TaskRef) TaskRef() TaskRef {
	return r
}

// TaskIdentity is implemented by anything that can describe a task.
type TaskIdentity interface {
	TaskRef() TaskRef
}

// NewTaskID derives a deterministic task id from the checkpoint the step
// started from, the namespace, the step number, the node name and the path.
func NewTaskID(checkpointID, namespace string, step int, name string, path ...string) string {
	parts := append([]string{checkpointID, namespace, strconv.Itoa(step), name}, path...)
	return uuid.NewSHA1(TaskNamespace, []byte(strings.Join(parts, NSSep))).String()
}

// ChannelWrite is one (channel, value) write produced by a task.
type ChannelWrite struct {
	Channel string
	Value   any
}

// MarshalJSON encodes the write as a [channel, value] pair.
func (w ChannelWrite) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{w.Channel, w.Value})
}

// UnmarshalJSON decodes a [channel, value] pair.
func (w *ChannelWrite) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("channel write: expected 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &w.Channel); err != nil {
		return fmt.Errorf("channel write: channel: %w", err)
	}
	return json.Unmarshal(pair[1], &w.Value)
}

// TaskError carries a failure payload written to ErrorChannel that is not
// itself an error.
type TaskError struct {
	Value any
}

// Error implements error.
func (e *TaskError) Error() string {
	return fmt.Sprint(e.Value)
}

// AsError converts the value of an ErrorChannel write into an error.
func AsError(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return &TaskError{Value: v}
}

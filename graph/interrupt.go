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
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Interrupt is the value a task writes to InterruptChannel when it pauses.
type Interrupt struct {
	// Value is the value that was passed to interrupt().
	Value any `json:"value" mapstructure:"value"`
	// Resumable reports whether execution can continue from this interrupt.
	Resumable bool `json:"resumable,omitempty" mapstructure:"resumable,omitempty"`
	// NS is the namespace path of the interrupted task.
	NS []string `json:"ns,omitempty" mapstructure:"ns,omitempty"`
	// When tells whether the interrupt fired during or after the task.
	When string `json:"when,omitempty" mapstructure:"when,omitempty"`
}

// InterruptError represents an interrupt in graph execution that can be resumed.
type InterruptError struct {
	// Value is the value that was passed to interrupt().
	Value any
	// NodeID is the ID of the node where the interrupt occurred.
	NodeID string
	// TaskID is the ID of the task that was interrupted.
	TaskID string
	// Step is the step number when the interrupt occurred.
	Step int
	// Timestamp is when the interrupt occurred.
	Timestamp time.Time
	// Path is the execution path to the interrupted node.
	Path []string
}

// Error returns the error message for the interrupt.
func (g *InterruptError) Error() string {
	return fmt.Sprintf("graph interrupted at node %s (step %d): %v", g.NodeID, g.Step, g.Value)
}

// Interrupt converts the error into the record written to InterruptChannel.
func (g *InterruptError) Interrupt() Interrupt {
	return Interrupt{Value: g.Value, Resumable: true, NS: g.Path, When: "during"}
}

// NewInterruptError creates a new InterruptError with the given value.
func NewInterruptError(value any) *InterruptError {
	return &InterruptError{
		Value:     value,
		Timestamp: time.Now().UTC(),
	}
}

// IsInterruptError checks if an error is or wraps an InterruptError.
func IsInterruptError(err error) bool {
	_, ok := GetInterruptError(err)
	return ok
}

// GetInterruptError extracts an InterruptError from an error chain.
func GetInterruptError(err error) (*InterruptError, bool) {
	var interrupt *InterruptError
	if errors.As(err, &interrupt) {
		return interrupt, true
	}
	return nil, false
}

// InterruptRecord normalizes the value of an InterruptChannel write into a
// plain structured record. Maps are copied, Interrupt values are flattened
// field by field and any other value becomes {"value": v}.
func InterruptRecord(v any) map[string]any {
	switch iv := v.(type) {
	case map[string]any:
		return maps.Clone(iv)
	case *InterruptError:
		return interruptToRecord(iv.Interrupt())
	case *Interrupt:
		if iv == nil {
			return map[string]any{"value": nil}
		}
		return interruptToRecord(*iv)
	case Interrupt:
		return interruptToRecord(iv)
	default:
		return map[string]any{"value": v}
	}
}

func interruptToRecord(i Interrupt) map[string]any {
	record := make(map[string]any)
	if err := mapstructure.Decode(i, &record); err != nil {
		return map[string]any{"value": i.Value}
	}
	return record
}

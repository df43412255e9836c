//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package debug

import (
	"slices"

	"trpc.group/trpc-go/trpc-graph-go/graph"
)

// TaskState locates the nested state of a task that runs a subgraph.
type TaskState struct {
	// Config addresses the child checkpoint namespace of the subgraph.
	Config *graph.CheckpointConfig `json:"config"`
	// Snapshot is the resolved nested state, set only by SnapshotReader
	// when subgraphs are requested.
	Snapshot *StateSnapshot `json:"snapshot,omitempty"`
}

// TaskOutcome is a task merged with the writes addressed to it.
type TaskOutcome struct {
	ID   string
	Name string
	Path []string
	// Error is the first error write of the task, nil when there is none.
	Error error
	// Interrupts holds the values of every interrupt write, in write order.
	Interrupts []any
	// State is set only for tasks running a subgraph.
	State *TaskState
}

// TasksWithWrites merges every task with its pending writes. The result has
// one outcome per task in input order. writes and states may be nil.
//
// When a task has several error writes the first one in write order is kept.
// Tasks sharing an id are not merged; each gets its own outcome.
func TasksWithWrites[T graph.TaskIdentity](
	tasks []T,
	writes []graph.PendingWrite,
	states map[string]*TaskState,
) []TaskOutcome {
	outcomes := make([]TaskOutcome, 0, len(tasks))
	for _, t := range tasks {
		ref := t.TaskRef()
		outcome := TaskOutcome{
			ID:         ref.ID,
			Name:       ref.Name,
			Path:       slices.Clone(ref.Path),
			Interrupts: []any{},
			State:      states[ref.ID],
		}
		for _, w := range writes {
			if w.TaskID != ref.ID {
				continue
			}
			switch w.Channel {
			case graph.ErrorChannel:
				if outcome.Error == nil {
					outcome.Error = graph.AsError(w.Value)
				}
			case graph.InterruptChannel:
				outcome.Interrupts = append(outcome.Interrupts, w.Value)
			}
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

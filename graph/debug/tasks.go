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
	"iter"
	"slices"
	"time"

	"trpc.group/trpc-go/trpc-graph-go/graph"
)

// MapTasks returns a task event for every non-hidden task, in input order.
// All events of one call share the timestamp taken when MapTasks is called.
// The sequence can be ranged over more than once.
func MapTasks(step int, tasks []*graph.Task) iter.Seq[*Event] {
	ts := time.Now().UTC()
	return func(yield func(*Event) bool) {
		for _, t := range tasks {
			if t == nil || t.Hidden() {
				continue
			}
			ev := &Event{
				Type:      EventTypeTask,
				Timestamp: ts,
				Step:      step,
				Payload: &TaskPayload{
					ID:       t.ID,
					Name:     t.Name,
					Input:    t.Input,
					Triggers: slices.Clone(t.Triggers),
				},
			}
			if !yield(ev) {
				return
			}
		}
	}
}

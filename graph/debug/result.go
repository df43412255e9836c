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
	"time"

	"trpc.group/trpc-go/trpc-graph-go/graph"
)

// MapTaskResult builds the task_result event of one task. result keeps the
// writes to streamChannels in write order, error is the first error write and
// interrupts are all interrupt writes normalized into records.
func MapTaskResult(
	step int,
	task graph.TaskIdentity,
	writes []graph.ChannelWrite,
	streamChannels []string,
) *Event {
	ref := task.TaskRef()
	payload := &TaskResultPayload{
		ID:         ref.ID,
		Name:       ref.Name,
		Result:     []graph.ChannelWrite{},
		Interrupts: []map[string]any{},
	}
	for _, w := range writes {
		switch {
		case w.Channel == graph.ErrorChannel:
			if payload.Error == nil {
				payload.Error = errorMessage(graph.AsError(w.Value))
			}
		case w.Channel == graph.InterruptChannel:
			payload.Interrupts = append(payload.Interrupts, graph.InterruptRecord(w.Value))
		}
		if slices.Contains(streamChannels, w.Channel) {
			payload.Result = append(payload.Result, w)
		}
	}
	return &Event{
		Type:      EventTypeTaskResult,
		Timestamp: time.Now().UTC(),
		Step:      step,
		Payload:   payload,
	}
}

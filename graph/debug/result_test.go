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
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-graph-go/graph"
)

func TestMapTaskResult_Scenario(t *testing.T) {
	task := &graph.Task{ID: "a", Name: "node1"}
	writes := []graph.ChannelWrite{
		{Channel: graph.ErrorChannel, Value: "timeout"},
		{Channel: graph.InterruptChannel, Value: map[string]any{"value": "paused"}},
	}

	ev := MapTaskResult(3, task, writes, []string{"out"})

	assert.Equal(t, EventTypeTaskResult, ev.Type)
	assert.Equal(t, 3, ev.Step)
	payload, err := json.Marshal(ev.Payload)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"id":"a","name":"node1","error":"timeout","result":[],"interrupts":[{"value":"paused"}]}`,
		string(payload))
}

func TestMapTaskResult(t *testing.T) {
	tests := []struct {
		name       string
		writes     []graph.ChannelWrite
		stream     []string
		wantErr    *string
		wantResult []graph.ChannelWrite
		wantIntr   []map[string]any
	}{
		{
			name:       "no writes",
			stream:     []string{"out"},
			wantResult: []graph.ChannelWrite{},
			wantIntr:   []map[string]any{},
		},
		{
			name: "observable writes keep order",
			writes: []graph.ChannelWrite{
				{Channel: "out", Value: 1},
				{Channel: "hidden", Value: 2},
				{Channel: "log", Value: "x"},
				{Channel: "out", Value: 3},
			},
			stream: []string{"out", "log"},
			wantResult: []graph.ChannelWrite{
				{Channel: "out", Value: 1},
				{Channel: "log", Value: "x"},
				{Channel: "out", Value: 3},
			},
			wantIntr: []map[string]any{},
		},
		{
			name: "first error wins",
			writes: []graph.ChannelWrite{
				{Channel: graph.ErrorChannel, Value: errors.New("first")},
				{Channel: graph.ErrorChannel, Value: "second"},
			},
			stream:     []string{"out"},
			wantErr:    ptr("first"),
			wantResult: []graph.ChannelWrite{},
			wantIntr:   []map[string]any{},
		},
		{
			name: "interrupts normalized",
			writes: []graph.ChannelWrite{
				{Channel: graph.InterruptChannel, Value: "plain"},
				{Channel: graph.InterruptChannel, Value: graph.Interrupt{Value: "ask", When: "during"}},
			},
			wantResult: []graph.ChannelWrite{},
			wantIntr: []map[string]any{
				{"value": "plain"},
				{"value": "ask", "when": "during"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := MapTaskResult(1, graph.TaskRef{ID: "t", Name: "n"}, tt.writes, tt.stream)
			payload := ev.Payload.(*TaskResultPayload)
			assert.Equal(t, tt.wantErr, payload.Error)
			assert.Equal(t, tt.wantResult, payload.Result)
			assert.Equal(t, tt.wantIntr, payload.Interrupts)
		})
	}
}

func TestMapTaskResult_DoesNotMutateWrites(t *testing.T) {
	writes := []graph.ChannelWrite{{Channel: "out", Value: []int{1}}}
	ev := MapTaskResult(1, graph.TaskRef{ID: "t"}, writes, []string{"out"})
	ev.Payload.(*TaskResultPayload).Result[0].Channel = "changed"
	assert.Equal(t, "out", writes[0].Channel)
}

func TestMapTaskResult_Idempotent(t *testing.T) {
	writes := []graph.ChannelWrite{
		{Channel: graph.ErrorChannel, Value: "boom"},
		{Channel: "out", Value: map[string]any{"k": "v"}},
	}
	first, err := json.Marshal(MapTaskResult(1, graph.TaskRef{ID: "t"}, writes, []string{"out"}).Payload)
	require.NoError(t, err)
	second, err := json.Marshal(MapTaskResult(1, graph.TaskRef{ID: "t"}, writes, []string{"out"}).Payload)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func ptr(s string) *string { return &s }

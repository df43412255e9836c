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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-graph-go/graph"
)

func drain(e *Emitter) []*Event {
	var events []*Event
	for ev := range e.Events() {
		events = append(events, ev)
	}
	return events
}

func TestEmitter_EmitsInOrder(t *testing.T) {
	ctx := context.Background()
	e := NewEmitter(WithStreamChannels("out"))

	tasks := []*graph.Task{
		{ID: "t1", Name: "a", Input: "x"},
		{ID: "t2", Name: "b", Tags: []string{graph.TagHidden}},
		{ID: "t3", Name: "c"},
	}
	require.NoError(t, e.EmitTasks(ctx, 1, tasks))
	require.NoError(t, e.EmitTaskResult(ctx, 1, tasks[0], []graph.ChannelWrite{
		{Channel: "out", Value: "done"},
		{Channel: "scratch", Value: "tmp"},
	}))

	ck := graph.NewCheckpoint(nil, nil)
	ck.Timestamp = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, e.EmitCheckpoint(ctx, CheckpointInput{
		Step:       1,
		Config:     graph.NewCheckpointConfig("lineage").WithCheckpointID(ck.ID),
		Channels:   newChannels(t),
		Metadata:   graph.NewCheckpointMetadata(graph.CheckpointSourceLoop, 1),
		Checkpoint: ck,
	}))
	require.NoError(t, e.Close())

	events := drain(e)
	require.Len(t, events, 4)
	var types []EventType
	for _, ev := range events {
		types = append(types, ev.Type)
		assert.Equal(t, 1, ev.Step)
	}
	assert.Equal(t, []EventType{EventTypeTask, EventTypeTask, EventTypeTaskResult, EventTypeCheckpoint}, types)
	assert.Equal(t, "t1", events[0].Payload.(*TaskPayload).ID)
	assert.Equal(t, "t3", events[1].Payload.(*TaskPayload).ID)

	result := events[2].Payload.(*TaskResultPayload)
	assert.Equal(t, []graph.ChannelWrite{{Channel: "out", Value: "done"}}, result.Result)

	checkpoint := events[3].Payload.(*CheckpointPayload)
	assert.Equal(t, map[string]any{"out": "done"}, checkpoint.Values)
	assert.Equal(t, ck.Timestamp, events[3].Timestamp)
}

func TestEmitter_ExplicitStreamChannels(t *testing.T) {
	e := NewEmitter(WithStreamChannels("out"))
	ck := graph.NewCheckpoint(nil, nil)
	require.NoError(t, e.EmitCheckpoint(context.Background(), CheckpointInput{
		Config:         graph.NewCheckpointConfig("lineage"),
		Channels:       newChannels(t),
		StreamChannels: []string{"messages"},
		Metadata:       graph.NewCheckpointMetadata(graph.CheckpointSourceLoop, 0),
		Checkpoint:     ck,
	}))
	require.NoError(t, e.Close())

	events := drain(e)
	require.Len(t, events, 1)
	assert.Equal(t, map[string]any{"messages": []any{"hi", "there"}}, events[0].Payload.(*CheckpointPayload).Values)
}

func TestEmitter_Close(t *testing.T) {
	ctx := context.Background()
	e := NewEmitter()
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, ok := <-e.Events()
	assert.False(t, ok)

	err := e.EmitTasks(ctx, 0, []*graph.Task{{ID: "t1", Name: "a"}})
	assert.ErrorIs(t, err, ErrEmitterClosed)
	err = e.EmitTaskResult(ctx, 0, graph.TaskRef{ID: "t1", Name: "a"}, nil)
	assert.ErrorIs(t, err, ErrEmitterClosed)

	// Nothing to emit is not an error, even when closed.
	assert.NoError(t, e.EmitTasks(ctx, 0, nil))
}

func TestEmitter_ContextCanceled(t *testing.T) {
	e := NewEmitter(WithChannelBufferSize(0))
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.EmitTaskResult(ctx, 0, graph.TaskRef{ID: "t1", Name: "a"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmitter_BufferFull(t *testing.T) {
	e := NewEmitter(WithChannelBufferSize(1))
	defer e.Close()

	task := graph.TaskRef{ID: "t1", Name: "a"}
	require.NoError(t, e.EmitTaskResult(context.Background(), 0, task, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := e.EmitTaskResult(ctx, 0, task, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ev := <-e.Events()
	assert.Equal(t, EventTypeTaskResult, ev.Type)
}

func TestEmitter_CheckpointErrors(t *testing.T) {
	e := NewEmitter()
	defer e.Close()

	tests := []struct {
		name string
		in   CheckpointInput
		want error
	}{
		{
			name: "missing config",
			in:   CheckpointInput{Channels: newChannels(t), Checkpoint: graph.NewCheckpoint(nil, nil)},
			want: graph.ErrConfigRequired,
		},
		{
			name: "missing checkpoint",
			in:   CheckpointInput{Config: graph.NewCheckpointConfig("lineage"), Channels: newChannels(t)},
			want: graph.ErrCheckpointRequired,
		},
		{
			name: "unknown stream channel",
			in: CheckpointInput{
				Config:         graph.NewCheckpointConfig("lineage"),
				Channels:       newChannels(t),
				StreamChannels: []string{"missing"},
				Checkpoint:     graph.NewCheckpoint(nil, nil),
			},
			want: graph.ErrUnknownChannel,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.EmitCheckpoint(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "map checkpoint event")
		})
	}
	assert.Empty(t, e.Events())
}

func TestEmitter_CloseUnblocksPendingSend(t *testing.T) {
	e := NewEmitter(WithChannelBufferSize(0))

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.EmitTasks(context.Background(), 0, []*graph.Task{{ID: "t1", Name: "a"}})
	}()
	time.Sleep(20 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		assert.NoError(t, e.Close())
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return while a send was waiting for a reader")
	}
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrEmitterClosed)
	case <-time.After(time.Second):
		t.Fatal("pending send did not return after Close")
	}
	_, ok := <-e.Events()
	assert.False(t, ok)
}

func TestEmitter_CloseKeepsBufferedEvents(t *testing.T) {
	e := NewEmitter(WithChannelBufferSize(2))
	require.NoError(t, e.EmitTaskResult(context.Background(), 0, graph.TaskRef{ID: "t1", Name: "a"}, nil))
	require.NoError(t, e.Close())

	events := drain(e)
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeTaskResult, events[0].Type)
}

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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-graph-go/graph"
	"trpc.group/trpc-go/trpc-graph-go/graph/checkpoint/inmemory"
)

// failingSaver fails every read of a namespace listed in failing.
type failingSaver struct {
	graph.CheckpointSaver
	failing map[string]bool
}

func (s *failingSaver) GetTuple(ctx context.Context, cfg *graph.CheckpointConfig) (*graph.CheckpointTuple, error) {
	if s.failing[cfg.Namespace] {
		return nil, errors.New("storage unavailable")
	}
	return s.CheckpointSaver.GetTuple(ctx, cfg)
}

// seedSnapshots stores a root checkpoint scheduling two tasks, the second of
// which ran a subgraph that stored its own checkpoint.
func seedSnapshots(t *testing.T) (graph.CheckpointSaver, *graph.Checkpoint) {
	t.Helper()
	ctx := context.Background()
	saver := inmemory.NewSaver()

	root := graph.NewCheckpoint(map[string]any{"out": "root"}, nil)
	root.Timestamp = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	root.NextTasks = []graph.TaskRef{
		{ID: "t1", Name: "plain"},
		{ID: "t2", Name: "nested", Path: []string{"branch"}},
	}
	_, err := saver.Put(ctx, graph.PutRequest{
		Config:     graph.NewCheckpointConfig("lineage"),
		Checkpoint: root,
		Metadata:   graph.NewCheckpointMetadata(graph.CheckpointSourceLoop, 2),
		PendingWrites: []graph.PendingWrite{
			{TaskID: "t1", Channel: graph.ErrorChannel, Value: "boom"},
			{TaskID: "t2", Channel: graph.InterruptChannel, Value: "approve"},
		},
	})
	require.NoError(t, err)

	child := graph.NewCheckpoint(map[string]any{"inner": "v"}, nil)
	child.NextTasks = []graph.TaskRef{{ID: "c1", Name: "leaf"}}
	_, err = saver.Put(ctx, graph.PutRequest{
		Config:     graph.NewCheckpointConfig("lineage").WithNamespace("nested:t2"),
		Checkpoint: child,
		Metadata:   graph.NewCheckpointMetadata(graph.CheckpointSourceLoop, 0),
	})
	require.NoError(t, err)
	return saver, root
}

func TestSnapshotReader_Get(t *testing.T) {
	saver, root := seedSnapshots(t)
	reader := NewSnapshotReader(saver)

	snap, err := reader.Get(context.Background(), graph.NewCheckpointConfig("lineage"))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"out": "root"}, snap.Values)
	assert.Equal(t, []string{"plain", "nested"}, snap.Next)
	assert.Equal(t, root.ID, snap.Config.CheckpointID)
	assert.Nil(t, snap.ParentConfig)
	assert.Equal(t, 2, snap.Metadata.Step)
	assert.True(t, root.Timestamp.Equal(snap.CreatedAt))

	require.Len(t, snap.Tasks, 2)
	plain, nested := snap.Tasks[0], snap.Tasks[1]
	assert.Equal(t, "t1", plain.ID)
	var taskErr *graph.TaskError
	require.ErrorAs(t, plain.Error, &taskErr)
	assert.Equal(t, "boom", taskErr.Value)
	assert.Nil(t, plain.State)

	assert.Equal(t, []string{"branch"}, nested.Path)
	assert.Equal(t, []any{"approve"}, nested.Interrupts)
	require.NotNil(t, nested.State)
	assert.Equal(t, &graph.CheckpointConfig{LineageID: "lineage", Namespace: "nested:t2"}, nested.State.Config)
	assert.Nil(t, nested.State.Snapshot)
}

func TestSnapshotReader_WithSubgraphs(t *testing.T) {
	saver, _ := seedSnapshots(t)
	reader := NewSnapshotReader(saver, WithSubgraphs(true), WithParallelism(1))

	snap, err := reader.Get(context.Background(), graph.NewCheckpointConfig("lineage"))
	require.NoError(t, err)
	require.Len(t, snap.Tasks, 2)
	assert.Nil(t, snap.Tasks[0].State)

	state := snap.Tasks[1].State
	require.NotNil(t, state)
	require.NotNil(t, state.Snapshot)
	assert.Equal(t, "nested:t2", state.Snapshot.Config.Namespace)
	assert.Equal(t, map[string]any{"inner": "v"}, state.Snapshot.Values)
	assert.Equal(t, []string{"leaf"}, state.Snapshot.Next)
	require.Len(t, state.Snapshot.Tasks, 1)
	assert.Nil(t, state.Snapshot.Tasks[0].State)
}

func TestSnapshotReader_ByCheckpointID(t *testing.T) {
	saver, root := seedSnapshots(t)
	ctx := context.Background()
	next := root.Fork()
	next.Timestamp = root.Timestamp.Add(time.Second)
	next.NextTasks = nil
	_, err := saver.Put(ctx, graph.PutRequest{Config: graph.NewCheckpointConfig("lineage"), Checkpoint: next})
	require.NoError(t, err)

	reader := NewSnapshotReader(saver)
	latest, err := reader.Get(ctx, graph.NewCheckpointConfig("lineage"))
	require.NoError(t, err)
	assert.Equal(t, next.ID, latest.Config.CheckpointID)
	assert.Equal(t, root.ID, latest.ParentConfig.CheckpointID)
	assert.Empty(t, latest.Next)
	assert.Empty(t, latest.Tasks)

	older, err := reader.Get(ctx, graph.NewCheckpointConfig("lineage").WithCheckpointID(root.ID))
	require.NoError(t, err)
	assert.Equal(t, []string{"plain", "nested"}, older.Next)
}

func TestSnapshotReader_Errors(t *testing.T) {
	saver, _ := seedSnapshots(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		reader *SnapshotReader
		cfg    *graph.CheckpointConfig
		want   error
		msg    string
	}{
		{name: "nil config", reader: NewSnapshotReader(saver), want: graph.ErrConfigRequired},
		{name: "no lineage", reader: NewSnapshotReader(saver), cfg: &graph.CheckpointConfig{}, want: graph.ErrLineageIDRequired},
		{
			name:   "unknown lineage",
			reader: NewSnapshotReader(saver),
			cfg:    graph.NewCheckpointConfig("other"),
			want:   graph.ErrCheckpointNotFound,
		},
		{
			name:   "root read fails",
			reader: NewSnapshotReader(&failingSaver{CheckpointSaver: saver, failing: map[string]bool{"": true}}),
			cfg:    graph.NewCheckpointConfig("lineage"),
			msg:    "get checkpoint: storage unavailable",
		},
		{
			name: "child probe fails",
			reader: NewSnapshotReader(&failingSaver{
				CheckpointSaver: saver,
				failing:         map[string]bool{"plain:t1": true},
			}),
			cfg: graph.NewCheckpointConfig("lineage"),
			msg: "probe subgraph of task t1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.reader.Get(ctx, tt.cfg)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestSnapshotReader_Options(t *testing.T) {
	r := NewSnapshotReader(nil, WithParallelism(0))
	assert.Equal(t, defaultParallelism, r.parallelism)
	assert.False(t, r.subgraphs)

	r = NewSnapshotReader(nil, WithParallelism(8), WithSubgraphs(true))
	assert.Equal(t, 8, r.parallelism)
	assert.True(t, r.subgraphs)
}

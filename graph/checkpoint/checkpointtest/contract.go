//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package checkpointtest provides the behaviour suite every
// graph.CheckpointSaver implementation must pass.
package checkpointtest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-graph-go/graph"
	"trpc.group/trpc-go/trpc-graph-go/graph/debug"
)

var base = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// RunSaverContract verifies that saver honours the graph.CheckpointSaver
// contract. Every subtest works in its own lineage.
func RunSaverContract(t *testing.T, saver graph.CheckpointSaver) {
	ctx := context.Background()

	t.Run("Put and GetTuple", func(t *testing.T) {
		cfg := newConfig("")
		ck := newCheckpoint(0, map[string]any{"out": "v"})
		ck.NextTasks = []graph.TaskRef{{ID: "t1", Name: "next", Path: []string{"p"}}}
		meta := graph.NewCheckpointMetadata(graph.CheckpointSourceLoop, 1)
		meta.Extra["k"] = "v"

		stored, err := saver.Put(ctx, graph.PutRequest{Config: cfg, Checkpoint: ck, Metadata: meta})
		require.NoError(t, err)
		assert.Equal(t, cfg.LineageID, stored.LineageID)
		assert.Equal(t, ck.ID, stored.CheckpointID)

		tuple, err := saver.GetTuple(ctx, cfg)
		require.NoError(t, err)
		require.NotNil(t, tuple)
		assert.Equal(t, stored, tuple.Config)
		assert.Nil(t, tuple.ParentConfig)
		assert.Equal(t, ck.ID, tuple.Checkpoint.ID)
		assert.True(t, ck.Timestamp.Equal(tuple.Checkpoint.Timestamp))
		assert.Equal(t, "v", tuple.Checkpoint.ChannelValues["out"])
		assert.Equal(t, ck.NextTasks, tuple.Checkpoint.NextTasks)
		require.NotNil(t, tuple.Metadata)
		assert.Equal(t, graph.CheckpointSourceLoop, tuple.Metadata.Source)
		assert.Equal(t, 1, tuple.Metadata.Step)
		assert.Equal(t, "v", tuple.Metadata.Extra["k"])

		byID, err := saver.GetTuple(ctx, stored)
		require.NoError(t, err)
		require.NotNil(t, byID)
		assert.Equal(t, ck.ID, byID.Checkpoint.ID)
	})

	t.Run("GetTuple Missing", func(t *testing.T) {
		cfg := newConfig("")
		tuple, err := saver.GetTuple(ctx, cfg)
		require.NoError(t, err)
		assert.Nil(t, tuple)

		_, err = saver.Put(ctx, graph.PutRequest{Config: cfg, Checkpoint: newCheckpoint(0, nil)})
		require.NoError(t, err)
		tuple, err = saver.GetTuple(ctx, cfg.Clone().WithCheckpointID("missing"))
		require.NoError(t, err)
		assert.Nil(t, tuple)
	})

	t.Run("Latest By Timestamp", func(t *testing.T) {
		cfg := newConfig("")
		for _, offset := range []int{1, 3, 2} {
			_, err := saver.Put(ctx, graph.PutRequest{
				Config:     cfg,
				Checkpoint: newCheckpoint(offset, map[string]any{"offset": offset}),
			})
			require.NoError(t, err)
		}
		tuple, err := saver.GetTuple(ctx, cfg)
		require.NoError(t, err)
		require.NotNil(t, tuple)
		assert.True(t, base.Add(3*time.Second).Equal(tuple.Checkpoint.Timestamp))
	})

	t.Run("Namespace Isolation", func(t *testing.T) {
		root := newConfig("")
		child := root.Child("node", "t1")
		rootCk := newCheckpoint(0, nil)
		childCk := newCheckpoint(5, nil)
		_, err := saver.Put(ctx, graph.PutRequest{Config: root, Checkpoint: rootCk})
		require.NoError(t, err)
		_, err = saver.Put(ctx, graph.PutRequest{Config: child, Checkpoint: childCk})
		require.NoError(t, err)

		tuple, err := saver.GetTuple(ctx, root)
		require.NoError(t, err)
		require.NotNil(t, tuple)
		assert.Equal(t, rootCk.ID, tuple.Checkpoint.ID, "empty namespace reads the root only")

		tuple, err = saver.GetTuple(ctx, child)
		require.NoError(t, err)
		require.NotNil(t, tuple)
		assert.Equal(t, childCk.ID, tuple.Checkpoint.ID)
		assert.Equal(t, child.Namespace, tuple.Config.Namespace)

		tuple, err = saver.GetTuple(ctx, root.Child("other", "t2"))
		require.NoError(t, err)
		assert.Nil(t, tuple)
	})

	t.Run("Parent Config", func(t *testing.T) {
		cfg := newConfig("parent:1")
		first := newCheckpoint(0, nil)
		second := first.Fork()
		second.Timestamp = base.Add(time.Second)
		_, err := saver.Put(ctx, graph.PutRequest{Config: cfg, Checkpoint: first})
		require.NoError(t, err)
		_, err = saver.Put(ctx, graph.PutRequest{Config: cfg, Checkpoint: second})
		require.NoError(t, err)

		tuple, err := saver.GetTuple(ctx, cfg)
		require.NoError(t, err)
		require.NotNil(t, tuple)
		require.NotNil(t, tuple.ParentConfig)
		assert.Equal(t, first.ID, tuple.ParentConfig.CheckpointID)
		assert.Equal(t, cfg.Namespace, tuple.ParentConfig.Namespace)
	})

	t.Run("Pending Writes", func(t *testing.T) {
		cfg := newConfig("")
		ck := newCheckpoint(0, nil)
		stored, err := saver.Put(ctx, graph.PutRequest{
			Config:        cfg,
			Checkpoint:    ck,
			PendingWrites: []graph.PendingWrite{{TaskID: "t1", Channel: "out", Value: "a", Sequence: 1}},
		})
		require.NoError(t, err)

		err = saver.PutWrites(ctx, graph.PutWritesRequest{
			Config: stored,
			TaskID: "t2",
			Writes: []graph.PendingWrite{
				{Channel: graph.ErrorChannel, Value: "boom", Sequence: 2},
				{Channel: graph.InterruptChannel, Value: "wait", Sequence: 3},
			},
		})
		require.NoError(t, err)

		tuple, err := saver.GetTuple(ctx, stored)
		require.NoError(t, err)
		require.NotNil(t, tuple)
		assert.Equal(t, []graph.PendingWrite{
			{TaskID: "t1", Channel: "out", Value: "a", Sequence: 1},
			{TaskID: "t2", Channel: graph.ErrorChannel, Value: "boom", Sequence: 2},
			{TaskID: "t2", Channel: graph.InterruptChannel, Value: "wait", Sequence: 3},
		}, tuple.PendingWrites)
	})

	t.Run("Error Writes Keep Message", func(t *testing.T) {
		cfg := newConfig("")
		ck := newCheckpoint(0, nil)
		ck.NextTasks = []graph.TaskRef{{ID: "t1", Name: "node"}}
		stored, err := saver.Put(ctx, graph.PutRequest{
			Config:        cfg,
			Checkpoint:    ck,
			PendingWrites: []graph.PendingWrite{{TaskID: "t1", Channel: graph.ErrorChannel, Value: errors.New("boom"), Sequence: 1}},
		})
		require.NoError(t, err)
		err = saver.PutWrites(ctx, graph.PutWritesRequest{
			Config: stored,
			TaskID: "t2",
			Writes: []graph.PendingWrite{{Channel: graph.ErrorChannel, Value: fmt.Errorf("wrapped: %w", errors.New("bang")), Sequence: 2}},
		})
		require.NoError(t, err)

		tuple, err := saver.GetTuple(ctx, stored)
		require.NoError(t, err)
		require.NotNil(t, tuple)
		require.Len(t, tuple.PendingWrites, 2)
		assert.Equal(t, "boom", graph.AsError(tuple.PendingWrites[0].Value).Error())
		assert.Equal(t, "wrapped: bang", graph.AsError(tuple.PendingWrites[1].Value).Error())

		snap, err := debug.NewSnapshotReader(saver).Get(ctx, stored)
		require.NoError(t, err)
		require.Len(t, snap.Tasks, 1)
		require.Error(t, snap.Tasks[0].Error)
		assert.Equal(t, "boom", snap.Tasks[0].Error.Error())
	})

	t.Run("PutWrites Errors", func(t *testing.T) {
		cfg := newConfig("")
		err := saver.PutWrites(ctx, graph.PutWritesRequest{Config: cfg, TaskID: "t1"})
		assert.ErrorIs(t, err, graph.ErrLineageIDAndCheckpointIDRequired)

		err = saver.PutWrites(ctx, graph.PutWritesRequest{
			Config: cfg.Clone().WithCheckpointID("missing"),
			TaskID: "t1",
			Writes: []graph.PendingWrite{{Channel: "out", Value: "x"}},
		})
		assert.ErrorIs(t, err, graph.ErrCheckpointNotFound)
	})

	t.Run("List", func(t *testing.T) {
		cfg := newConfig("")
		var ids []string
		for i := range 4 {
			ck := newCheckpoint(i, nil)
			meta := graph.NewCheckpointMetadata(graph.CheckpointSourceLoop, i)
			if i%2 == 0 {
				meta.Extra["even"] = "yes"
			}
			_, err := saver.Put(ctx, graph.PutRequest{Config: cfg, Checkpoint: ck, Metadata: meta})
			require.NoError(t, err)
			ids = append(ids, ck.ID)
		}

		all, err := saver.List(ctx, cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{ids[3], ids[2], ids[1], ids[0]}, checkpointIDs(all))

		limited, err := saver.List(ctx, cfg, &graph.CheckpointFilter{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{ids[3], ids[2]}, checkpointIDs(limited))

		before, err := saver.List(ctx, cfg, &graph.CheckpointFilter{
			Before: cfg.Clone().WithCheckpointID(ids[2]),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{ids[1], ids[0]}, checkpointIDs(before))

		even, err := saver.List(ctx, cfg, &graph.CheckpointFilter{Metadata: map[string]any{"even": "yes"}})
		require.NoError(t, err)
		assert.Equal(t, []string{ids[2], ids[0]}, checkpointIDs(even))

		other, err := saver.List(ctx, cfg.Child("node", "t1"), nil)
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("DeleteLineage", func(t *testing.T) {
		cfg := newConfig("")
		_, err := saver.Put(ctx, graph.PutRequest{Config: cfg, Checkpoint: newCheckpoint(0, nil)})
		require.NoError(t, err)
		_, err = saver.Put(ctx, graph.PutRequest{Config: cfg.Child("node", "t1"), Checkpoint: newCheckpoint(1, nil)})
		require.NoError(t, err)

		require.NoError(t, saver.DeleteLineage(ctx, cfg.LineageID))

		tuple, err := saver.GetTuple(ctx, cfg)
		require.NoError(t, err)
		assert.Nil(t, tuple)
		tuple, err = saver.GetTuple(ctx, cfg.Child("node", "t1"))
		require.NoError(t, err)
		assert.Nil(t, tuple)
	})

	t.Run("Validation", func(t *testing.T) {
		_, err := saver.GetTuple(ctx, nil)
		assert.ErrorIs(t, err, graph.ErrConfigRequired)
		_, err = saver.GetTuple(ctx, &graph.CheckpointConfig{})
		assert.ErrorIs(t, err, graph.ErrLineageIDRequired)
		_, err = saver.List(ctx, &graph.CheckpointConfig{}, nil)
		assert.ErrorIs(t, err, graph.ErrLineageIDRequired)
		_, err = saver.Put(ctx, graph.PutRequest{Config: newConfig("")})
		assert.ErrorIs(t, err, graph.ErrCheckpointRequired)
		_, err = saver.Put(ctx, graph.PutRequest{Checkpoint: newCheckpoint(0, nil)})
		assert.ErrorIs(t, err, graph.ErrConfigRequired)
	})
}

func newConfig(namespace string) *graph.CheckpointConfig {
	return graph.NewCheckpointConfig("contract-" + uuid.NewString()).WithNamespace(namespace)
}

func newCheckpoint(offsetSeconds int, values map[string]any) *graph.Checkpoint {
	ck := graph.NewCheckpoint(values, nil)
	ck.Timestamp = base.Add(time.Duration(offsetSeconds) * time.Second)
	return ck
}

func checkpointIDs(tuples []*graph.CheckpointTuple) []string {
	ids := make([]string, 0, len(tuples))
	for _, t := range tuples {
		ids = append(ids, t.Checkpoint.ID)
	}
	return ids
}

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
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/trpc-graph-go/graph"
	"trpc.group/trpc-go/trpc-graph-go/log"
)

const defaultParallelism = 4

// StateSnapshot is the state of a graph at one checkpoint.
type StateSnapshot struct {
	// Values are the channel values of the checkpoint.
	Values map[string]any `json:"values"`
	// Next are the names of the tasks scheduled after the checkpoint.
	Next []string `json:"next"`
	// Config addresses the checkpoint.
	Config *graph.CheckpointConfig `json:"config"`
	// ParentConfig addresses the parent checkpoint, if any.
	ParentConfig *graph.CheckpointConfig `json:"parent_config,omitempty"`
	// Metadata is the checkpoint metadata.
	Metadata *graph.CheckpointMetadata `json:"metadata"`
	// CreatedAt is the checkpoint timestamp.
	CreatedAt time.Time `json:"created_at"`
	// Tasks are the next tasks merged with their pending writes.
	Tasks []TaskOutcome `json:"-"`
}

// SnapshotReader rebuilds state snapshots from a checkpoint saver.
type SnapshotReader struct {
	saver       graph.CheckpointSaver
	parallelism int
	subgraphs   bool
}

// SnapshotOption configures a SnapshotReader.
type SnapshotOption func(*SnapshotReader)

// WithParallelism sets how many child namespaces are probed concurrently.
func WithParallelism(n int) SnapshotOption {
	return func(r *SnapshotReader) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

// WithSubgraphs makes Get resolve the nested snapshot of every task running
// a subgraph.
func WithSubgraphs(enabled bool) SnapshotOption {
	return func(r *SnapshotReader) {
		r.subgraphs = enabled
	}
}

// NewSnapshotReader creates a reader over saver.
func NewSnapshotReader(saver graph.CheckpointSaver, opts ...SnapshotOption) *SnapshotReader {
	r := &SnapshotReader{saver: saver, parallelism: defaultParallelism}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the snapshot of the checkpoint addressed by cfg, the latest of
// its namespace when cfg has no checkpoint id.
func (r *SnapshotReader) Get(ctx context.Context, cfg *graph.CheckpointConfig) (*StateSnapshot, error) {
	if cfg == nil {
		return nil, graph.ErrConfigRequired
	}
	if cfg.LineageID == "" {
		return nil, graph.ErrLineageIDRequired
	}
	tuple, err := r.saver.GetTuple(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	if tuple == nil || tuple.Checkpoint == nil {
		return nil, fmt.Errorf("lineage %s namespace %q: %w", cfg.LineageID, cfg.Namespace, graph.ErrCheckpointNotFound)
	}
	tupleCfg := tuple.Config
	if tupleCfg == nil {
		tupleCfg = cfg
	}
	states, err := r.subgraphStates(ctx, tupleCfg, tuple.Checkpoint.NextTasks)
	if err != nil {
		return nil, err
	}
	return &StateSnapshot{
		Values:       maps.Clone(tuple.Checkpoint.ChannelValues),
		Next:         tuple.Checkpoint.NextNodes(),
		Config:       tupleCfg.Clone(),
		ParentConfig: tuple.ParentConfig.Clone(),
		Metadata:     tuple.Metadata,
		CreatedAt:    tuple.Checkpoint.Timestamp,
		Tasks:        TasksWithWrites(tuple.Checkpoint.NextTasks, tuple.PendingWrites, states),
	}, nil
}

// subgraphStates probes the child namespace of every task and returns the
// states of the tasks that stored checkpoints there.
func (r *SnapshotReader) subgraphStates(
	ctx context.Context,
	cfg *graph.CheckpointConfig,
	tasks []graph.TaskRef,
) (map[string]*TaskState, error) {
	states := make(map[string]*TaskState)
	if len(tasks) == 0 {
		return states, nil
	}
	pool, err := ants.NewPool(r.parallelism)
	if err != nil {
		return nil, fmt.Errorf("failed to create subgraph worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		errCh = make(chan error, len(tasks))
	)
	for _, task := range tasks {
		wg.Add(1)
		child := cfg.Child(task.Name, task.ID)
		taskID := task.ID
		err := pool.Submit(func() {
			defer wg.Done()
			state, err := r.probe(ctx, child)
			if err != nil {
				errCh <- fmt.Errorf("probe subgraph of task %s: %w", taskID, err)
				return
			}
			if state == nil {
				return
			}
			mu.Lock()
			states[taskID] = state
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			errCh <- fmt.Errorf("submit subgraph probe: %w", err)
		}
	}
	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return nil, err
	}
	return states, nil
}

func (r *SnapshotReader) probe(ctx context.Context, child *graph.CheckpointConfig) (*TaskState, error) {
	if !r.subgraphs {
		tuple, err := r.saver.GetTuple(ctx, child)
		if err != nil || tuple == nil {
			return nil, err
		}
		return &TaskState{Config: child}, nil
	}
	nested, err := r.Get(ctx, child)
	if err != nil {
		if errors.Is(err, graph.ErrCheckpointNotFound) {
			return nil, nil
		}
		return nil, err
	}
	log.Debugf("debug: resolved subgraph snapshot in namespace %q", child.Namespace)
	return &TaskState{Config: child, Snapshot: nested}, nil
}

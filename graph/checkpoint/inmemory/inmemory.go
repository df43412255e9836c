//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides in-memory checkpoint storage implementation
// for graph execution state persistence and recovery.
package inmemory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"trpc.group/trpc-go/trpc-graph-go/graph"
)

// Saver provides an in-memory implementation of CheckpointSaver.
// This is suitable for testing and debugging but not for production use.
type Saver struct {
	mu      sync.RWMutex
	storage map[string]map[string]*namespaceStore // lineageID -> namespace -> store
	// maxCheckpointsPerLineage limits the number of checkpoints per namespace.
	maxCheckpointsPerLineage int
}

type namespaceStore struct {
	order       []string // checkpoint ids in insertion order
	checkpoints map[string]*graph.CheckpointTuple
	writes      map[string][]graph.PendingWrite
}

// NewSaver creates a new in-memory checkpoint saver.
func NewSaver() *Saver {
	return &Saver{
		storage:                  make(map[string]map[string]*namespaceStore),
		maxCheckpointsPerLineage: graph.DefaultMaxCheckpointsPerLineage,
	}
}

// WithMaxCheckpointsPerLineage sets the maximum number of checkpoints kept
// per lineage and namespace.
func (s *Saver) WithMaxCheckpointsPerLineage(max int) *Saver {
	s.maxCheckpointsPerLineage = max
	return s
}

// GetTuple retrieves a checkpoint tuple by configuration.
func (s *Saver) GetTuple(ctx context.Context, config *graph.CheckpointConfig) (*graph.CheckpointTuple, error) {
	if err := validate(config); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	store := s.storage[config.LineageID][config.Namespace]
	if store == nil {
		return nil, nil
	}
	if config.CheckpointID != "" {
		if _, ok := store.checkpoints[config.CheckpointID]; !ok {
			return nil, nil
		}
		return store.result(config.CheckpointID), nil
	}
	ids := store.newestFirst()
	if len(ids) == 0 {
		return nil, nil
	}
	return store.result(ids[0]), nil
}

// List retrieves checkpoints of a namespace, newest first.
func (s *Saver) List(
	ctx context.Context,
	config *graph.CheckpointConfig,
	filter *graph.CheckpointFilter,
) ([]*graph.CheckpointTuple, error) {
	if err := validate(config); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*graph.CheckpointTuple
	store := s.storage[config.LineageID][config.Namespace]
	if store == nil {
		return results, nil
	}
	for _, id := range store.newestFirst() {
		tuple := store.checkpoints[id]
		if !store.passesFilters(tuple, filter) {
			continue
		}
		results = append(results, store.result(id))
		if filter != nil && filter.Limit > 0 && len(results) == filter.Limit {
			break
		}
	}
	return results, nil
}

// Put stores a checkpoint and, atomically, its pending writes.
func (s *Saver) Put(ctx context.Context, req graph.PutRequest) (*graph.CheckpointConfig, error) {
	if err := validate(req.Config); err != nil {
		return nil, err
	}
	if req.Checkpoint == nil {
		return nil, graph.ErrCheckpointRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	lineageID, namespace := req.Config.LineageID, req.Config.Namespace
	if s.storage[lineageID] == nil {
		s.storage[lineageID] = make(map[string]*namespaceStore)
	}
	store := s.storage[lineageID][namespace]
	if store == nil {
		store = &namespaceStore{
			checkpoints: make(map[string]*graph.CheckpointTuple),
			writes:      make(map[string][]graph.PendingWrite),
		}
		s.storage[lineageID][namespace] = store
	}

	// Create updated config with THIS checkpoint's ID.
	updatedConfig := graph.NewCheckpointConfig(lineageID).
		WithNamespace(namespace).
		WithCheckpointID(req.Checkpoint.ID)
	tuple := &graph.CheckpointTuple{
		Config:     updatedConfig,
		Checkpoint: req.Checkpoint.Copy(), // Store a copy to avoid external modification
		Metadata:   req.Metadata,
	}
	if parentID := req.Checkpoint.ParentCheckpointID; parentID != "" {
		tuple.ParentConfig = graph.NewCheckpointConfig(lineageID).
			WithNamespace(namespace).
			WithCheckpointID(parentID)
	}

	if _, exists := store.checkpoints[req.Checkpoint.ID]; !exists {
		store.order = append(store.order, req.Checkpoint.ID)
	}
	store.checkpoints[req.Checkpoint.ID] = tuple
	store.writes[req.Checkpoint.ID] = slices.Clone(req.PendingWrites)
	store.cleanup(s.maxCheckpointsPerLineage)
	return updatedConfig.Clone(), nil
}

// PutWrites appends the writes of a task to a stored checkpoint.
func (s *Saver) PutWrites(ctx context.Context, req graph.PutWritesRequest) error {
	if req.Config == nil {
		return graph.ErrConfigRequired
	}
	if req.Config.LineageID == "" || req.Config.CheckpointID == "" {
		return graph.ErrLineageIDAndCheckpointIDRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	store := s.storage[req.Config.LineageID][req.Config.Namespace]
	if store == nil || store.checkpoints[req.Config.CheckpointID] == nil {
		return graph.ErrCheckpointNotFound
	}
	for _, w := range req.Writes {
		if w.TaskID == "" {
			w.TaskID = req.TaskID
		}
		store.writes[req.Config.CheckpointID] = append(store.writes[req.Config.CheckpointID], w)
	}
	return nil
}

// DeleteLineage removes all checkpoints for a lineage.
func (s *Saver) DeleteLineage(ctx context.Context, lineageID string) error {
	if lineageID == "" {
		return graph.ErrLineageIDRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.storage, lineageID)
	return nil
}

// Close releases resources held by the saver.
func (s *Saver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storage = make(map[string]map[string]*namespaceStore)
	return nil
}

func validate(config *graph.CheckpointConfig) error {
	if config == nil {
		return graph.ErrConfigRequired
	}
	if config.LineageID == "" {
		return graph.ErrLineageIDRequired
	}
	return nil
}

// newestFirst returns the checkpoint ids ordered by timestamp, newest first.
// Equal timestamps keep the later insertion first.
func (n *namespaceStore) newestFirst() []string {
	ids := slices.Clone(n.order)
	slices.Reverse(ids)
	sort.SliceStable(ids, func(i, j int) bool {
		return n.checkpoints[ids[i]].Checkpoint.Timestamp.After(n.checkpoints[ids[j]].Checkpoint.Timestamp)
	})
	return ids
}

func (n *namespaceStore) result(id string) *graph.CheckpointTuple {
	tuple := n.checkpoints[id]
	return &graph.CheckpointTuple{
		Config:        tuple.Config.Clone(),
		Checkpoint:    tuple.Checkpoint.Copy(),
		Metadata:      tuple.Metadata,
		ParentConfig:  tuple.ParentConfig.Clone(),
		PendingWrites: slices.Clone(n.writes[id]),
	}
}

// cleanup removes the oldest checkpoints beyond max.
func (n *namespaceStore) cleanup(max int) {
	if max <= 0 || len(n.order) <= max {
		return
	}
	ids := n.newestFirst()
	for _, id := range ids[max:] {
		delete(n.checkpoints, id)
		delete(n.writes, id)
	}
	n.order = slices.DeleteFunc(n.order, func(id string) bool {
		_, ok := n.checkpoints[id]
		return !ok
	})
}

func (n *namespaceStore) passesFilters(tuple *graph.CheckpointTuple, filter *graph.CheckpointFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Before != nil && filter.Before.CheckpointID != "" {
		before, ok := n.checkpoints[filter.Before.CheckpointID]
		if !ok || !tuple.Checkpoint.Timestamp.Before(before.Checkpoint.Timestamp) {
			return false
		}
	}
	for key, value := range filter.Metadata {
		if tuple.Metadata == nil || tuple.Metadata.Extra[key] != value {
			return false
		}
	}
	return true
}

var _ graph.CheckpointSaver = (*Saver)(nil)

//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package redis provides a Redis-backed checkpoint saver.
//
// Per lineage and namespace the saver keeps a hash of checkpoints, a sorted
// set indexing them by timestamp and one list of pending writes per
// checkpoint. Every key of a lineage is tracked in a set so the lineage can
// be deleted without scanning.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"

	"trpc.group/trpc-go/trpc-graph-go/graph"
)

const defaultKeyPrefix = "trpc-graph:checkpoint:"

// Saver implements graph.CheckpointSaver using Redis.
type Saver struct {
	client                   backend.UniversalClient
	prefix                   string
	ttl                      time.Duration
	maxCheckpointsPerLineage int
}

// Option configures a Saver.
type Option func(*Saver)

// WithKeyPrefix sets the prefix of every key written by the saver.
func WithKeyPrefix(prefix string) Option {
	return func(s *Saver) {
		s.prefix = prefix
	}
}

// WithTTL expires every key of a lineage ttl after its last write.
// Zero keeps keys forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Saver) {
		s.ttl = ttl
	}
}

// WithMaxCheckpointsPerLineage bounds the checkpoints kept per lineage and
// namespace. Zero keeps everything.
func WithMaxCheckpointsPerLineage(max int) Option {
	return func(s *Saver) {
		s.maxCheckpointsPerLineage = max
	}
}

// NewSaver creates a saver over an existing client.
func NewSaver(client backend.UniversalClient, opts ...Option) *Saver {
	s := &Saver{
		client:                   client,
		prefix:                   defaultKeyPrefix,
		maxCheckpointsPerLineage: graph.DefaultMaxCheckpointsPerLineage,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type record struct {
	Checkpoint         *graph.Checkpoint         `json:"checkpoint"`
	Metadata           *graph.CheckpointMetadata `json:"metadata"`
	ParentCheckpointID string                    `json:"parent_checkpoint_id,omitempty"`
}

func (s *Saver) checkpointsKey(lineageID, namespace string) string {
	return s.prefix + lineageID + ":ns:" + namespace + ":checkpoints"
}

func (s *Saver) indexKey(lineageID, namespace string) string {
	return s.prefix + lineageID + ":ns:" + namespace + ":index"
}

func (s *Saver) writesKey(lineageID, namespace, checkpointID string) string {
	return s.prefix + lineageID + ":ns:" + namespace + ":writes:" + checkpointID
}

func (s *Saver) lineageKey(lineageID string) string {
	return s.prefix + lineageID + ":keys"
}

// score orders checkpoints by timestamp. Microseconds fit a float64 exactly.
func score(ts time.Time) float64 {
	return float64(ts.UnixMicro())
}

// GetTuple returns the checkpoint tuple for the given config, nil when
// nothing is stored.
func (s *Saver) GetTuple(ctx context.Context, config *graph.CheckpointConfig) (*graph.CheckpointTuple, error) {
	if err := validate(config); err != nil {
		return nil, err
	}
	checkpointID := config.CheckpointID
	if checkpointID == "" {
		ids, err := s.client.ZRevRange(ctx, s.indexKey(config.LineageID, config.Namespace), 0, 0).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read checkpoint index: %w", err)
		}
		if len(ids) == 0 {
			return nil, nil
		}
		checkpointID = ids[0]
	}
	return s.load(ctx, config, checkpointID)
}

// List returns checkpoints of the lineage and namespace, newest first.
func (s *Saver) List(
	ctx context.Context,
	config *graph.CheckpointConfig,
	filter *graph.CheckpointFilter,
) ([]*graph.CheckpointTuple, error) {
	if err := validate(config); err != nil {
		return nil, err
	}
	index := s.indexKey(config.LineageID, config.Namespace)
	max := "+inf"
	if filter != nil && filter.Before != nil && filter.Before.CheckpointID != "" {
		before, err := s.client.ZScore(ctx, index, filter.Before.CheckpointID).Result()
		if errors.Is(err, backend.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read before checkpoint: %w", err)
		}
		max = "(" + strconv.FormatFloat(before, 'f', -1, 64)
	}
	ids, err := s.client.ZRevRangeByScore(ctx, index, &backend.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint index: %w", err)
	}

	var results []*graph.CheckpointTuple
	for _, id := range ids {
		tuple, err := s.load(ctx, config, id)
		if err != nil {
			return nil, err
		}
		if tuple == nil || !matchesMetadataFilter(tuple, filter) {
			continue
		}
		results = append(results, tuple)
		if filter != nil && filter.Limit > 0 && len(results) == filter.Limit {
			break
		}
	}
	return results, nil
}

// Put stores a checkpoint and its pending writes in one MULTI/EXEC block.
func (s *Saver) Put(ctx context.Context, req graph.PutRequest) (*graph.CheckpointConfig, error) {
	if err := validate(req.Config); err != nil {
		return nil, err
	}
	if req.Checkpoint == nil {
		return nil, graph.ErrCheckpointRequired
	}
	lineageID, namespace, checkpointID := req.Config.LineageID, req.Config.Namespace, req.Checkpoint.ID
	data, err := json.Marshal(record{
		Checkpoint:         req.Checkpoint,
		Metadata:           req.Metadata,
		ParentCheckpointID: req.Checkpoint.ParentCheckpointID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	writes, err := encodeWrites(req.PendingWrites, "")
	if err != nil {
		return nil, err
	}

	checkpoints := s.checkpointsKey(lineageID, namespace)
	index := s.indexKey(lineageID, namespace)
	writesKey := s.writesKey(lineageID, namespace, checkpointID)
	_, err = s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.HSet(ctx, checkpoints, checkpointID, data)
		pipe.ZAdd(ctx, index, backend.Z{Score: score(req.Checkpoint.Timestamp), Member: checkpointID})
		pipe.Del(ctx, writesKey)
		if len(writes) > 0 {
			pipe.RPush(ctx, writesKey, writes...)
		}
		s.track(ctx, pipe, lineageID, checkpoints, index, writesKey)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save checkpoint to redis: %w", err)
	}
	if err := s.cleanup(ctx, lineageID, namespace); err != nil {
		return nil, err
	}
	return graph.NewCheckpointConfig(lineageID).WithNamespace(namespace).WithCheckpointID(checkpointID), nil
}

// PutWrites appends the writes of a task to a stored checkpoint.
func (s *Saver) PutWrites(ctx context.Context, req graph.PutWritesRequest) error {
	if req.Config == nil {
		return graph.ErrConfigRequired
	}
	if req.Config.LineageID == "" || req.Config.CheckpointID == "" {
		return graph.ErrLineageIDAndCheckpointIDRequired
	}
	lineageID, namespace, checkpointID := req.Config.LineageID, req.Config.Namespace, req.Config.CheckpointID
	exists, err := s.client.HExists(ctx, s.checkpointsKey(lineageID, namespace), checkpointID).Result()
	if err != nil {
		return fmt.Errorf("failed to check checkpoint: %w", err)
	}
	if !exists {
		return graph.ErrCheckpointNotFound
	}
	writes, err := encodeWrites(req.Writes, req.TaskID)
	if err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}
	writesKey := s.writesKey(lineageID, namespace, checkpointID)
	_, err = s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.RPush(ctx, writesKey, writes...)
		s.track(ctx, pipe, lineageID, writesKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save writes to redis: %w", err)
	}
	return nil
}

// DeleteLineage removes every key written for the lineage.
func (s *Saver) DeleteLineage(ctx context.Context, lineageID string) error {
	if lineageID == "" {
		return graph.ErrLineageIDRequired
	}
	lineageKey := s.lineageKey(lineageID)
	keys, err := s.client.SMembers(ctx, lineageKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list lineage keys: %w", err)
	}
	keys = append(keys, lineageKey)
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete lineage: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (s *Saver) Close() error {
	return s.client.Close()
}

func (s *Saver) load(ctx context.Context, config *graph.CheckpointConfig, checkpointID string) (*graph.CheckpointTuple, error) {
	lineageID, namespace := config.LineageID, config.Namespace
	data, err := s.client.HGet(ctx, s.checkpointsKey(lineageID, namespace), checkpointID).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint from redis: %w", err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	if rec.Checkpoint == nil {
		return nil, fmt.Errorf("checkpoint %s: empty record", checkpointID)
	}
	tuple := &graph.CheckpointTuple{
		Config:     graph.NewCheckpointConfig(lineageID).WithNamespace(namespace).WithCheckpointID(checkpointID),
		Checkpoint: rec.Checkpoint,
		Metadata:   rec.Metadata,
	}
	if rec.ParentCheckpointID != "" {
		tuple.ParentConfig = graph.NewCheckpointConfig(lineageID).
			WithNamespace(namespace).
			WithCheckpointID(rec.ParentCheckpointID)
	}

	raw, err := s.client.LRange(ctx, s.writesKey(lineageID, namespace, checkpointID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get writes from redis: %w", err)
	}
	for _, item := range raw {
		var w graph.PendingWrite
		if err := json.Unmarshal([]byte(item), &w); err != nil {
			return nil, fmt.Errorf("failed to unmarshal write: %w", err)
		}
		tuple.PendingWrites = append(tuple.PendingWrites, w)
	}
	return tuple, nil
}

// track records keys in the lineage set and refreshes their TTL.
func (s *Saver) track(ctx context.Context, pipe backend.Pipeliner, lineageID string, keys ...string) {
	lineageKey := s.lineageKey(lineageID)
	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	pipe.SAdd(ctx, lineageKey, members...)
	if s.ttl <= 0 {
		return
	}
	for _, k := range append(keys, lineageKey) {
		pipe.Expire(ctx, k, s.ttl)
	}
}

// cleanup removes the oldest checkpoints beyond the configured maximum.
func (s *Saver) cleanup(ctx context.Context, lineageID, namespace string) error {
	if s.maxCheckpointsPerLineage <= 0 {
		return nil
	}
	index := s.indexKey(lineageID, namespace)
	stale, err := s.client.ZRevRange(ctx, index, int64(s.maxCheckpointsPerLineage), -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read checkpoint index: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}
	_, err = s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		for _, id := range stale {
			pipe.HDel(ctx, s.checkpointsKey(lineageID, namespace), id)
			pipe.ZRem(ctx, index, id)
			pipe.Del(ctx, s.writesKey(lineageID, namespace, id))
			pipe.SRem(ctx, s.lineageKey(lineageID), s.writesKey(lineageID, namespace, id))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove old checkpoints: %w", err)
	}
	return nil
}

func encodeWrites(writes []graph.PendingWrite, taskID string) ([]any, error) {
	encoded := make([]any, 0, len(writes))
	for _, w := range writes {
		if w.TaskID == "" {
			w.TaskID = taskID
		}
		w.Value = w.StorableValue()
		data, err := json.Marshal(w)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal write: %w", err)
		}
		encoded = append(encoded, data)
	}
	return encoded, nil
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

func matchesMetadataFilter(tuple *graph.CheckpointTuple, filter *graph.CheckpointFilter) bool {
	if filter == nil {
		return true
	}
	for key, value := range filter.Metadata {
		if tuple.Metadata == nil || tuple.Metadata.Extra[key] != value {
			return false
		}
	}
	return true
}

var _ graph.CheckpointSaver = (*Saver)(nil)

//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

const (
	// CheckpointVersion is the current version of the checkpoint format.
	CheckpointVersion = 1
	// DefaultMaxCheckpointsPerLineage is the default maximum number of
	// checkpoints kept per lineage and namespace by bounded savers.
	DefaultMaxCheckpointsPerLineage = 100
)

// Checkpoint represents a snapshot of channel state taken after a superstep
// commits.
type Checkpoint struct {
	// Version is the version of the checkpoint format.
	Version int `json:"v"`
	// ID is the unique identifier for this checkpoint.
	ID string `json:"id"`
	// Timestamp is when the checkpoint was created.
	Timestamp time.Time `json:"ts"`
	// ChannelValues contains the values of channels at checkpoint time.
	ChannelValues map[string]any `json:"channel_values"`
	// ChannelVersions contains the versions of channels at checkpoint time.
	ChannelVersions map[string]int64 `json:"channel_versions"`
	// ParentCheckpointID is the ID of the parent checkpoint.
	ParentCheckpointID string `json:"parent_checkpoint_id,omitempty"`
	// UpdatedChannels lists channels updated in the step that produced it.
	UpdatedChannels []string `json:"updated_channels,omitempty"`
	// NextTasks describes the tasks scheduled for the following step.
	NextTasks []TaskRef `json:"next_tasks,omitempty"`
}

// CheckpointMetadata contains metadata about a checkpoint.
type CheckpointMetadata struct {
	// Source indicates how the checkpoint was created.
	Source string `json:"source"`
	// Step is the step number (-1 for input, 0+ for loop steps).
	Step int `json:"step"`
	// Parents maps checkpoint namespaces to parent checkpoint IDs.
	Parents map[string]string `json:"parents"`
	// Timestamp is when the metadata was recorded.
	Timestamp time.Time `json:"ts"`
	// Extra holds additional metadata fields.
	Extra map[string]any `json:"extra,omitempty"`
}

// PendingWrite is a task-addressed, channel-addressed value produced during
// a superstep and not yet committed to channel state.
type PendingWrite struct {
	// TaskID is the ID of the task that created this write.
	TaskID string `json:"task_id"`
	// Channel is the channel being written to.
	Channel string `json:"channel"`
	// Value is the value being written.
	Value any `json:"value"`
	// Sequence orders writes for deterministic replay.
	Sequence int64 `json:"sequence"`
}

// StorableValue returns the value as savers persist it. An error written to
// ErrorChannel is stored as its message, which AsError turns back into an
// error on load.
func (w PendingWrite) StorableValue() any {
	if w.Channel == ErrorChannel {
		if err, ok := w.Value.(error); ok {
			return err.Error()
		}
	}
	return w.Value
}

// CheckpointTuple wraps a checkpoint with its configuration and metadata.
type CheckpointTuple struct {
	Config        *CheckpointConfig   `json:"config"`
	Checkpoint    *Checkpoint         `json:"checkpoint"`
	Metadata      *CheckpointMetadata `json:"metadata"`
	ParentConfig  *CheckpointConfig   `json:"parent_config,omitempty"`
	PendingWrites []PendingWrite      `json:"pending_writes,omitempty"`
}

// PutRequest contains all data needed to store a checkpoint. PendingWrites,
// when set, are stored atomically with the checkpoint.
type PutRequest struct {
	Config        *CheckpointConfig
	Checkpoint    *Checkpoint
	Metadata      *CheckpointMetadata
	PendingWrites []PendingWrite
}

// PutWritesRequest appends the writes of one task to a stored checkpoint.
type PutWritesRequest struct {
	Config *CheckpointConfig
	TaskID string
	Writes []PendingWrite
}

// CheckpointFilter defines filtering criteria for listing checkpoints.
type CheckpointFilter struct {
	// Before limits results to checkpoints created before this checkpoint.
	Before *CheckpointConfig `json:"before,omitempty"`
	// Limit is the maximum number of checkpoints to return.
	Limit int `json:"limit,omitempty"`
	// Metadata filters checkpoints by metadata Extra fields.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CheckpointSaver is the persistence collaborator storing checkpoints and
// their pending writes.
type CheckpointSaver interface {
	// GetTuple retrieves a checkpoint tuple, the latest of the namespace when
	// config.CheckpointID is empty. It returns nil, nil when nothing matches.
	GetTuple(ctx context.Context, config *CheckpointConfig) (*CheckpointTuple, error)
	// List retrieves checkpoints of a namespace, newest first.
	List(ctx context.Context, config *CheckpointConfig, filter *CheckpointFilter) ([]*CheckpointTuple, error)
	// Put stores a checkpoint and returns the config addressing it.
	Put(ctx context.Context, req PutRequest) (*CheckpointConfig, error)
	// PutWrites appends writes to a stored checkpoint.
	PutWrites(ctx context.Context, req PutWritesRequest) error
	// DeleteLineage removes all checkpoints for a lineage.
	DeleteLineage(ctx context.Context, lineageID string) error
	// Close releases resources held by the saver.
	Close() error
}

// NewCheckpoint creates a new checkpoint with the given channel data.
func NewCheckpoint(channelValues map[string]any, channelVersions map[string]int64) *Checkpoint {
	if channelValues == nil {
		channelValues = make(map[string]any)
	}
	if channelVersions == nil {
		channelVersions = make(map[string]int64)
	}
	return &Checkpoint{
		Version:         CheckpointVersion,
		ID:              uuid.New().String(),
		Timestamp:       time.Now().UTC(),
		ChannelValues:   channelValues,
		ChannelVersions: channelVersions,
	}
}

// NewCheckpointMetadata creates new checkpoint metadata.
func NewCheckpointMetadata(source string, step int) *CheckpointMetadata {
	return &CheckpointMetadata{
		Source:    source,
		Step:      step,
		Parents:   make(map[string]string),
		Timestamp: time.Now().UTC(),
		Extra:     make(map[string]any),
	}
}

// Copy creates a deep copy of the checkpoint.
func (c *Checkpoint) Copy() *Checkpoint {
	if c == nil {
		return nil
	}
	return &Checkpoint{
		Version:            c.Version,
		ID:                 c.ID,
		Timestamp:          c.Timestamp,
		ChannelValues:      deepCopyMap(c.ChannelValues),
		ChannelVersions:    maps.Clone(c.ChannelVersions),
		ParentCheckpointID: c.ParentCheckpointID,
		UpdatedChannels:    slices.Clone(c.UpdatedChannels),
		NextTasks:          cloneTaskRefs(c.NextTasks),
	}
}

// Fork creates a copy of the checkpoint with a new ID whose parent is c.
func (c *Checkpoint) Fork() *Checkpoint {
	if c == nil {
		return nil
	}
	forked := c.Copy()
	forked.ParentCheckpointID = c.ID
	forked.ID = uuid.New().String()
	forked.Timestamp = time.Now().UTC()
	return forked
}

// NextNodes returns the names of the tasks scheduled after this checkpoint.
func (c *Checkpoint) NextNodes() []string {
	names := make([]string, 0, len(c.NextTasks))
	for _, t := range c.NextTasks {
		names = append(names, t.Name)
	}
	return names
}

func cloneTaskRefs(src []TaskRef) []TaskRef {
	if src == nil {
		return nil
	}
	dst := make([]TaskRef, len(src))
	for i, t := range src {
		dst[i] = TaskRef{ID: t.ID, Name: t.Name, Path: slices.Clone(t.Path)}
	}
	return dst
}

// deepCopy performs a deep copy using JSON marshaling/unmarshaling.
func deepCopy(src any) any {
	if src == nil {
		return nil
	}
	data, err := json.Marshal(src)
	if err != nil {
		// Unserializable values are shared rather than dropped.
		return src
	}
	var result any
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&result); err != nil {
		return src
	}
	return result
}

// deepCopyMap performs a deep copy of a map[string]any.
func deepCopyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = deepCopy(v)
	}
	return dst
}

//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package graph

// CheckpointConfig identifies a checkpoint lineage, a namespace inside it and,
// optionally, one checkpoint of that namespace.
type CheckpointConfig struct {
	// LineageID is the execution thread the checkpoints belong to.
	LineageID string `json:"lineage_id"`
	// CheckpointID selects one checkpoint. Empty means the latest.
	CheckpointID string `json:"checkpoint_id,omitempty"`
	// Namespace is the checkpoint namespace. Empty is the root graph.
	Namespace string `json:"checkpoint_ns"`
}

// NewCheckpointConfig creates a config for the root namespace of a lineage.
func NewCheckpointConfig(lineageID string) *CheckpointConfig {
	return &CheckpointConfig{LineageID: lineageID}
}

// WithCheckpointID sets the checkpoint ID.
func (c *CheckpointConfig) WithCheckpointID(checkpointID string) *CheckpointConfig {
	c.CheckpointID = checkpointID
	return c
}

// WithNamespace sets the namespace.
func (c *CheckpointConfig) WithNamespace(namespace string) *CheckpointConfig {
	c.Namespace = namespace
	return c
}

// Clone returns a copy of the config. A nil config clones to nil.
func (c *CheckpointConfig) Clone() *CheckpointConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Child returns the config locating the checkpoints of a subgraph run by the
// task with the given name and id. The lineage is kept, the checkpoint id is
// dropped.
func (c *CheckpointConfig) Child(taskName, taskID string) *CheckpointConfig {
	return &CheckpointConfig{
		LineageID: c.LineageID,
		Namespace: ChildNamespace(c.Namespace, taskName, taskID),
	}
}

// ToMap converts the config to the {"configurable": {...}} map shape.
func (c *CheckpointConfig) ToMap() map[string]any {
	configurable := map[string]any{
		CfgKeyLineageID:    c.LineageID,
		CfgKeyCheckpointNS: c.Namespace,
	}
	if c.CheckpointID != "" {
		configurable[CfgKeyCheckpointID] = c.CheckpointID
	}
	return map[string]any{CfgKeyConfigurable: configurable}
}

// ConfigFromMap reads a config from the {"configurable": {...}} map shape.
// Missing keys are left empty.
func ConfigFromMap(config map[string]any) *CheckpointConfig {
	cfg := &CheckpointConfig{}
	configurable, ok := config[CfgKeyConfigurable].(map[string]any)
	if !ok {
		return cfg
	}
	cfg.LineageID, _ = configurable[CfgKeyLineageID].(string)
	cfg.CheckpointID, _ = configurable[CfgKeyCheckpointID].(string)
	cfg.Namespace, _ = configurable[CfgKeyCheckpointNS].(string)
	return cfg
}

// ChildNamespace builds the namespace of a nested execution:
// name + NSEnd + id, prefixed with parent + NSSep when parent is non-empty.
func ChildNamespace(parent, taskName, taskID string) string {
	ns := taskName + NSEnd + taskID
	if parent == "" {
		return ns
	}
	return parent + NSSep + ns
}

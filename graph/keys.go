//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package graph

// Config map keys (used under config["configurable"]).
const (
	CfgKeyConfigurable = "configurable"
	CfgKeyLineageID    = "lineage_id"
	CfgKeyCheckpointID = "checkpoint_id"
	CfgKeyCheckpointNS = "checkpoint_ns"
)

// Reserved channel names. Writes addressed to them carry control
// information for a task rather than state.
const (
	ErrorChannel     = "__error__"
	InterruptChannel = "__interrupt__"
	ResumeChannel    = "__resume__"
	ScheduledChannel = "__scheduled__"
)

// Checkpoint namespace separators.
const (
	// NSSep joins the namespaces of nested graph levels.
	NSSep = "|"
	// NSEnd separates a task name from its id within one namespace level.
	NSEnd = ":"
)

// TagHidden marks a task that must not surface in debug output.
const TagHidden = "graph:hidden"

// Checkpoint Metadata.Source enumeration values.
const (
	CheckpointSourceInput     = "input"
	CheckpointSourceLoop      = "loop"
	CheckpointSourceUpdate    = "update"
	CheckpointSourceFork      = "fork"
	CheckpointSourceInterrupt = "interrupt"
)

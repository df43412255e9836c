//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package graph

import "errors"

// Errors.
var (
	ErrLineageIDRequired                = errors.New("lineage_id is required")
	ErrLineageIDAndCheckpointIDRequired = errors.New("lineage_id and checkpoint_id are required")
	ErrCheckpointNotFound               = errors.New("checkpoint not found")
	ErrCheckpointRequired               = errors.New("checkpoint is required")
	ErrConfigRequired                   = errors.New("checkpoint config is required")
	ErrChannelsRequired                 = errors.New("channel reader is required")
	ErrUnknownChannel                   = errors.New("unknown channel")
)

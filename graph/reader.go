//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package graph

// ChannelReader is the channel-store collaborator. It materializes the
// current values of the selected channels and never mutates them.
type ChannelReader interface {
	// ReadChannels returns name -> value for every selected channel holding
	// a value. Channels without a value are omitted; unknown names fail with
	// ErrUnknownChannel.
	ReadChannels(names []string) (map[string]any, error)
}

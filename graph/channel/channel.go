//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package channel provides the named channels a graph's tasks read and write
// across supersteps, and the read-only view the debug mappers consume.
package channel

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"trpc.group/trpc-go/trpc-graph-go/graph"
)

// Behavior represents the type of channel behavior.
type Behavior int

const (
	// BehaviorLastValue stores only the last value sent to the channel.
	BehaviorLastValue Behavior = iota
	// BehaviorTopic accumulates multiple values (pub/sub).
	BehaviorTopic
	// BehaviorEphemeral stores values temporarily for one step.
	BehaviorEphemeral
	// BehaviorBarrier waits for multiple inputs before proceeding.
	BehaviorBarrier
)

// String returns the string representation of the behavior.
func (b Behavior) String() string {
	switch b {
	case BehaviorLastValue:
		return "last_value"
	case BehaviorTopic:
		return "topic"
	case BehaviorEphemeral:
		return "ephemeral"
	case BehaviorBarrier:
		return "barrier"
	default:
		return fmt.Sprintf("behavior(%d)", int(b))
	}
}

// Channel is a named piece of shared state in Pregel-style execution.
type Channel struct {
	mu              sync.RWMutex
	name            string
	behavior        Behavior
	value           any
	values          []any
	barrierSet      map[string]bool
	version         int64
	available       bool
	lastUpdatedStep int
}

// NewChannel creates a new channel with the specified behavior.
func NewChannel(name string, behavior Behavior) *Channel {
	return &Channel{
		name:       name,
		behavior:   behavior,
		barrierSet: make(map[string]bool),
	}
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

// Behavior returns the channel behavior.
func (c *Channel) Behavior() Behavior { return c.behavior }

// Version returns the number of accepted updates.
func (c *Channel) Version() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Update applies the writes of one step and reports whether the channel changed.
func (c *Channel) Update(values []any, step int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.behavior {
	case BehaviorLastValue:
		if len(values) == 0 {
			return false
		}
		c.value = values[len(values)-1]
	case BehaviorTopic:
		c.values = append(c.values, values...)
	case BehaviorEphemeral:
		if len(values) == 0 {
			return false
		}
		c.value = values[0]
	case BehaviorBarrier:
		for _, value := range values {
			if sender, ok := value.(string); ok {
				c.barrierSet[sender] = true
			}
		}
	default:
		return false
	}
	c.version++
	c.available = true
	c.lastUpdatedStep = step
	return true
}

// Get returns the current value and whether the channel holds one.
func (c *Channel) Get() (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.available {
		return nil, false
	}
	switch c.behavior {
	case BehaviorTopic:
		return slices.Clone(c.values), true
	case BehaviorBarrier:
		return slices.Sorted(maps.Keys(c.barrierSet)), true
	default:
		return c.value, true
	}
}

// Consume clears an ephemeral channel after its step.
func (c *Channel) Consume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.behavior != BehaviorEphemeral {
		return false
	}
	c.value = nil
	c.available = false
	return true
}

// IsUpdatedInStep returns true if the channel was updated in the specified step.
func (c *Channel) IsUpdatedInStep(step int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdatedStep == step
}

// Manager manages all channels of a graph.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewManager creates a new channel manager.
func NewManager() *Manager {
	return &Manager{channels: make(map[string]*Channel)}
}

// AddChannel adds a channel to the manager, replacing any channel of the
// same name.
func (m *Manager) AddChannel(name string, behavior Behavior) *Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := NewChannel(name, behavior)
	m.channels[name] = ch
	return ch
}

// GetChannel retrieves a channel by name.
func (m *Manager) GetChannel(name string) (*Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// Names returns the sorted channel names.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.channels))
}

// ReadChannels implements graph.ChannelReader.
func (m *Manager) ReadChannels(names []string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	values := make(map[string]any, len(names))
	for _, name := range names {
		ch, ok := m.channels[name]
		if !ok {
			return nil, fmt.Errorf("read channel %q: %w", name, graph.ErrUnknownChannel)
		}
		if v, ok := ch.Get(); ok {
			values[name] = v
		}
	}
	return values, nil
}

// Snapshot returns the values and versions of every channel holding a
// value, ready to be stored in a graph.Checkpoint.
func (m *Manager) Snapshot() (map[string]any, map[string]int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	values := make(map[string]any, len(m.channels))
	versions := make(map[string]int64, len(m.channels))
	for name, ch := range m.channels {
		if v, ok := ch.Get(); ok {
			values[name] = v
			versions[name] = ch.Version()
		}
	}
	return values, versions
}

var _ graph.ChannelReader = (*Manager)(nil)

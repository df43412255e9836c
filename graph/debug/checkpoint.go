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
	"fmt"
	"reflect"

	"trpc.group/trpc-go/trpc-graph-go/graph"
	"trpc.group/trpc-go/trpc-graph-go/log"
)

// maxWalkCandidates bounds the structural walk of one task.
const maxWalkCandidates = 10000

// CheckpointInput is the state of the world after a superstep commits.
type CheckpointInput struct {
	// Step is the step that just completed.
	Step int
	// Config addresses the current checkpoint. Required.
	Config *graph.CheckpointConfig
	// Channels reads the current channel values. Required.
	Channels graph.ChannelReader
	// StreamChannels are the observable channels whose values are reported.
	StreamChannels []string
	// Metadata is the metadata of the checkpoint.
	Metadata *graph.CheckpointMetadata
	// Checkpoint is the stored checkpoint record. Required.
	Checkpoint *graph.Checkpoint
	// Tasks are the tasks scheduled for the next step.
	Tasks []*graph.Task
	// PendingWrites are the writes of the step that just completed.
	PendingWrites []graph.PendingWrite
	// ParentConfig addresses the parent checkpoint, if any.
	ParentConfig *graph.CheckpointConfig
}

// MapCheckpoint builds the checkpoint event of a step. Tasks running a
// subgraph get a state pointing to their child checkpoint namespace. Nil
// tasks are skipped.
// The event timestamp is the checkpoint timestamp.
func MapCheckpoint(in CheckpointInput) (*Event, error) {
	if in.Config == nil {
		return nil, graph.ErrConfigRequired
	}
	if in.Checkpoint == nil {
		return nil, graph.ErrCheckpointRequired
	}
	if in.Channels == nil {
		return nil, graph.ErrChannelsRequired
	}
	values, err := in.Channels.ReadChannels(in.StreamChannels)
	if err != nil {
		return nil, fmt.Errorf("read stream channels: %w", err)
	}

	scheduled := make([]*graph.Task, 0, len(in.Tasks))
	for _, t := range in.Tasks {
		if t != nil {
			scheduled = append(scheduled, t)
		}
	}
	states := make(map[string]*TaskState)
	next := make([]string, 0, len(scheduled))
	for _, t := range scheduled {
		next = append(next, t.Name)
		if _, ok := FindSubgraph(t.Runnable); !ok {
			continue
		}
		child := in.Config.Child(t.Name, t.ID)
		log.Debugf("debug: task %s (%s) runs a subgraph, namespace %q", t.Name, t.ID, child.Namespace)
		states[t.ID] = &TaskState{Config: child}
	}

	outcomes := TasksWithWrites(scheduled, in.PendingWrites, states)
	tasks := make([]CheckpointTask, 0, len(outcomes))
	for _, o := range outcomes {
		tasks = append(tasks, CheckpointTask{
			ID:         o.ID,
			Name:       o.Name,
			Error:      errorMessage(o.Error),
			Interrupts: interruptRecords(o.Interrupts),
			State:      o.State,
		})
	}

	return &Event{
		Type:      EventTypeCheckpoint,
		Timestamp: in.Checkpoint.Timestamp.UTC(),
		Step:      in.Step,
		Payload: &CheckpointPayload{
			Config:       in.Config.Clone(),
			ParentConfig: in.ParentConfig.Clone(),
			Values:       values,
			Metadata:     in.Metadata,
			Next:         next,
			Tasks:        tasks,
		},
	}, nil
}

// FindSubgraph walks the structure behind runnable breadth first and returns
// the first object implementing graph.Subgraph. Composite objects contribute
// their children. Objects already seen are skipped, so cyclic structures
// terminate. Nil values, typed or not, end their branch. A matched subgraph
// is not walked into.
func FindSubgraph(runnable any) (graph.Subgraph, bool) {
	if isNil(runnable) {
		return nil, false
	}
	var (
		found   graph.Subgraph
		queue   = []any{runnable}
		visited = make(map[visitKey]struct{})
		walked  int
	)
	for len(queue) > 0 {
		if walked == maxWalkCandidates {
			log.Debugf("debug: subgraph walk stopped after %d candidates", walked)
			break
		}
		c := queue[0]
		queue = queue[1:]
		walked++
		if key, ok := identity(c); ok {
			if _, seen := visited[key]; seen {
				continue
			}
			visited[key] = struct{}{}
		}
		if sg, ok := c.(graph.Subgraph); ok {
			found = sg
			break
		}
		if comp, ok := c.(graph.Composite); ok {
			for _, child := range children(comp) {
				if !isNil(child) {
					queue = append(queue, child)
				}
			}
		}
	}
	return found, found != nil
}

type visitKey struct {
	typ reflect.Type
	ptr uintptr
	n   int
	val any
}

// identity returns the key c is deduplicated by: its address for reference
// kinds and its value for comparable values.
func identity(c any) (visitKey, bool) {
	v := reflect.ValueOf(c)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return visitKey{typ: v.Type(), ptr: v.Pointer()}, true
	case reflect.Slice:
		return visitKey{typ: v.Type(), ptr: v.Pointer(), n: v.Len()}, true
	}
	if v.Comparable() {
		return visitKey{val: c}, true
	}
	return visitKey{}, false
}

func isNil(c any) bool {
	if c == nil {
		return true
	}
	v := reflect.ValueOf(c)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface, reflect.UnsafePointer:
		return v.IsNil()
	}
	return false
}

// children returns the children of comp. A Children call that panics ends
// the branch.
func children(comp graph.Composite) (out []any) {
	defer func() {
		if r := recover(); r != nil {
			log.Debugf("debug: skipping %T, Children panicked: %v", comp, r)
			out = nil
		}
	}()
	return comp.Children()
}

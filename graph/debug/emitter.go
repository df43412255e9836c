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
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	noopm "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"trpc.group/trpc-go/trpc-graph-go/graph"
	itelemetry "trpc.group/trpc-go/trpc-graph-go/internal/telemetry"
	"trpc.group/trpc-go/trpc-graph-go/log"
	ametric "trpc.group/trpc-go/trpc-graph-go/telemetry/metric"
	atrace "trpc.group/trpc-go/trpc-graph-go/telemetry/trace"
)

const defaultChannelBufferSize = 256

// ErrEmitterClosed is returned when emitting on a closed Emitter.
var ErrEmitterClosed = errors.New("debug emitter is closed")

// Emitter is the append-only output stream of debug events. Events are
// delivered on Events in emission order.
type Emitter struct {
	events         chan *Event
	done           chan struct{}
	streamChannels []string
	counter        metric.Int64Counter

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// EmitterOption configures an Emitter.
type EmitterOption func(*emitterOptions)

type emitterOptions struct {
	bufferSize     int
	streamChannels []string
}

// WithChannelBufferSize sets the buffer size of the event channel.
func WithChannelBufferSize(size int) EmitterOption {
	return func(o *emitterOptions) {
		if size >= 0 {
			o.bufferSize = size
		}
	}
}

// WithStreamChannels sets the observable channels reported in task_result
// and checkpoint events.
func WithStreamChannels(channels ...string) EmitterOption {
	return func(o *emitterOptions) {
		o.streamChannels = channels
	}
}

// NewEmitter creates an emitter.
func NewEmitter(opts ...EmitterOption) *Emitter {
	o := &emitterOptions{bufferSize: defaultChannelBufferSize}
	for _, opt := range opts {
		opt(o)
	}
	counter, err := ametric.Meter.Int64Counter(
		itelemetry.MetricDebugEvents,
		metric.WithDescription("The number of debug events emitted"),
	)
	if err != nil {
		log.Warnf("debug: create %s counter: %v", itelemetry.MetricDebugEvents, err)
		counter = noopm.Int64Counter{}
	}
	return &Emitter{
		events:         make(chan *Event, o.bufferSize),
		done:           make(chan struct{}),
		streamChannels: o.streamChannels,
		counter:        counter,
	}
}

// Events returns the event stream. It is closed by Close.
func (e *Emitter) Events() <-chan *Event {
	return e.events
}

// EmitTasks emits a task event for every non-hidden task.
func (e *Emitter) EmitTasks(ctx context.Context, step int, tasks []*graph.Task) error {
	ctx, span := atrace.Tracer.Start(ctx, itelemetry.NewDebugSpanName(string(EventTypeTask)))
	defer span.End()
	span.SetAttributes(
		attribute.Int(itelemetry.KeyStep, step),
		attribute.Int(itelemetry.KeyTaskCount, len(tasks)),
	)
	for ev := range MapTasks(step, tasks) {
		if err := e.send(ctx, ev); err != nil {
			recordError(span, err)
			return err
		}
	}
	return nil
}

// EmitTaskResult emits the task_result event of one task.
func (e *Emitter) EmitTaskResult(
	ctx context.Context,
	step int,
	task graph.TaskIdentity,
	writes []graph.ChannelWrite,
) error {
	ctx, span := atrace.Tracer.Start(ctx, itelemetry.NewDebugSpanName(string(EventTypeTaskResult)))
	defer span.End()
	ref := task.TaskRef()
	span.SetAttributes(
		attribute.String(itelemetry.KeyTaskID, ref.ID),
		attribute.String(itelemetry.KeyTaskName, ref.Name),
	)
	ev := MapTaskResult(step, task, writes, e.streamChannels)
	itelemetry.TraceDebugEvent(span, string(ev.Type), step, ev.Payload)
	if err := e.send(ctx, ev); err != nil {
		recordError(span, err)
		return err
	}
	return nil
}

// EmitCheckpoint emits the checkpoint event of a step. The emitter's stream
// channels are used when in.StreamChannels is nil.
func (e *Emitter) EmitCheckpoint(ctx context.Context, in CheckpointInput) error {
	ctx, span := atrace.Tracer.Start(ctx, itelemetry.NewDebugSpanName(string(EventTypeCheckpoint)))
	defer span.End()
	if in.StreamChannels == nil {
		in.StreamChannels = e.streamChannels
	}
	ev, err := MapCheckpoint(in)
	if err != nil {
		err = fmt.Errorf("map checkpoint event: %w", err)
		recordError(span, err)
		return err
	}
	span.SetAttributes(
		attribute.Int(itelemetry.KeyStep, in.Step),
		attribute.String(itelemetry.KeyLineageID, in.Config.LineageID),
		attribute.String(itelemetry.KeyNamespace, in.Config.Namespace),
		attribute.String(itelemetry.KeyCheckpoint, in.Checkpoint.ID),
	)
	if err := e.send(ctx, ev); err != nil {
		recordError(span, err)
		return err
	}
	return nil
}

// Close closes the event stream. Sends blocked on a full stream and every
// later emission fail with ErrEmitterClosed. Events already buffered stay
// readable.
func (e *Emitter) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.done)
	e.mu.Unlock()

	e.inflight.Wait()
	close(e.events)
	return nil
}

func (e *Emitter) send(ctx context.Context, ev *Event) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEmitterClosed
	}
	e.inflight.Add(1)
	e.mu.Unlock()
	defer e.inflight.Done()

	select {
	case e.events <- ev:
	case <-e.done:
		return ErrEmitterClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	e.counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(itelemetry.KeyEventType, string(ev.Type)),
	))
	log.Debugf("debug: emitted %s event for step %d", ev.Type, ev.Step)
	return nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

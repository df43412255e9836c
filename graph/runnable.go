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
	"context"
	"errors"
	"fmt"
)

// Runnable is an object a task can invoke.
type Runnable interface {
	Invoke(ctx context.Context, input any) (any, error)
}

// Subgraph is implemented by graph engines that can run as a task of an
// enclosing graph. Types embedding an engine satisfy it through method
// promotion.
type Subgraph interface {
	// SubgraphName returns the name of the nested graph.
	SubgraphName() string
}

// Composite is implemented by composed callables that expose the objects they
// delegate to, so the structure behind a task can be walked without running it.
type Composite interface {
	// Children returns the directly wrapped objects.
	Children() []any
}

// Func is the synchronous function signature of a Callable.
type Func func(ctx context.Context, input any) (any, error)

// AsyncFunc is the asynchronous function signature of a Callable. The result
// is delivered on the returned channel.
type AsyncFunc func(ctx context.Context, input any) <-chan FuncResult

// FuncResult is the outcome of an AsyncFunc.
type FuncResult struct {
	Output any
	Err    error
}

// Sequence runs its steps one after the other, feeding each step's output to
// the next.
type Sequence struct {
	Steps []any
}

// NewSequence creates a sequence of steps.
func NewSequence(steps ...any) *Sequence {
	return &Sequence{Steps: steps}
}

// Children returns the steps.
func (s *Sequence) Children() []any {
	return s.Steps
}

// Invoke runs the steps in order. Every step must be a Runnable.
func (s *Sequence) Invoke(ctx context.Context, input any) (any, error) {
	out := input
	for i, step := range s.Steps {
		r, ok := step.(Runnable)
		if !ok {
			return nil, fmt.Errorf("sequence step %d (%T) is not runnable", i, step)
		}
		var err error
		if out, err = r.Invoke(ctx, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Lambda defers building its runnable until invocation. Deps is the fixed set
// of objects the builder depends on.
type Lambda struct {
	Name string
	Deps []any
	Fn   Func
}

// NewLambda creates a lambda over fn with its dependencies.
func NewLambda(name string, fn Func, deps ...any) *Lambda {
	return &Lambda{Name: name, Fn: fn, Deps: deps}
}

// Children returns the captured dependencies.
func (l *Lambda) Children() []any {
	return l.Deps
}

// Invoke calls the lambda function.
func (l *Lambda) Invoke(ctx context.Context, input any) (any, error) {
	if l.Fn == nil {
		return nil, fmt.Errorf("lambda %q has no function", l.Name)
	}
	return l.Fn(ctx, input)
}

// Callable wraps an optional synchronous and an optional asynchronous
// function. Go closures cannot be inspected, so every object a function
// captures that matters structurally must be declared alongside it.
type Callable struct {
	Name          string
	Func          Func
	FuncCaptures  []any
	AFunc         AsyncFunc
	AFuncCaptures []any
}

// NewCallable creates a callable over a synchronous function and the objects
// it closes over.
func NewCallable(name string, fn Func, captures ...any) *Callable {
	return &Callable{Name: name, Func: fn, FuncCaptures: captures}
}

// WithAsync sets the asynchronous function and the objects it closes over.
func (c *Callable) WithAsync(fn AsyncFunc, captures ...any) *Callable {
	c.AFunc = fn
	c.AFuncCaptures = captures
	return c
}

// Children returns the captures of whichever functions are present.
func (c *Callable) Children() []any {
	var children []any
	if c.Func != nil {
		children = append(children, c.FuncCaptures...)
	}
	if c.AFunc != nil {
		children = append(children, c.AFuncCaptures...)
	}
	return children
}

// Invoke calls the synchronous function when present, otherwise the
// asynchronous one, waiting for its result or ctx cancellation.
func (c *Callable) Invoke(ctx context.Context, input any) (any, error) {
	if c.Func != nil {
		return c.Func(ctx, input)
	}
	if c.AFunc == nil {
		return nil, errors.New("callable has no function")
	}
	select {
	case res, ok := <-c.AFunc(ctx, input):
		if !ok {
			return nil, fmt.Errorf("callable %q: result channel closed", c.Name)
		}
		return res.Output, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

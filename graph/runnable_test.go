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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendFunc(suffix string) Func {
	return func(ctx context.Context, input any) (any, error) {
		return input.(string) + suffix, nil
	}
}

func TestSequence(t *testing.T) {
	seq := NewSequence(
		NewLambda("a", appendFunc("a")),
		NewCallable("b", appendFunc("b")),
	)
	out, err := seq.Invoke(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "ab", out)
	assert.Len(t, seq.Children(), 2)

	_, err = NewSequence("not runnable").Invoke(context.Background(), "")
	assert.ErrorContains(t, err, "is not runnable")

	boom := errors.New("boom")
	failing := NewSequence(NewLambda("f", func(context.Context, any) (any, error) { return nil, boom }))
	_, err = failing.Invoke(context.Background(), "")
	assert.ErrorIs(t, err, boom)
}

func TestLambda(t *testing.T) {
	dep := &struct{}{}
	l := NewLambda("l", appendFunc("!"), dep, "x")
	assert.Equal(t, []any{dep, "x"}, l.Children())
	out, err := l.Invoke(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi!", out)

	_, err = (&Lambda{Name: "empty"}).Invoke(context.Background(), nil)
	assert.ErrorContains(t, err, `lambda "empty" has no function`)
}

func TestCallable_Children(t *testing.T) {
	async := func(ctx context.Context, input any) <-chan FuncResult { return nil }
	tests := []struct {
		name string
		c    *Callable
		want []any
	}{
		{name: "sync", c: NewCallable("c", appendFunc(""), "s"), want: []any{"s"}},
		{name: "async", c: (&Callable{}).WithAsync(async, "a"), want: []any{"a"}},
		{name: "both", c: NewCallable("c", appendFunc(""), "s").WithAsync(async, "a"), want: []any{"s", "a"}},
		{name: "captures without sync func", c: &Callable{FuncCaptures: []any{"s"}}},
		{name: "captures without async func", c: &Callable{AFuncCaptures: []any{"a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.Children())
		})
	}
}

func TestCallable_Invoke(t *testing.T) {
	ctx := context.Background()
	out, err := NewCallable("c", appendFunc("!")).Invoke(ctx, "sync")
	require.NoError(t, err)
	assert.Equal(t, "sync!", out)

	async := (&Callable{Name: "a"}).WithAsync(func(ctx context.Context, input any) <-chan FuncResult {
		ch := make(chan FuncResult, 1)
		ch <- FuncResult{Output: input.(string) + "?"}
		return ch
	})
	out, err = async.Invoke(ctx, "async")
	require.NoError(t, err)
	assert.Equal(t, "async?", out)

	closed := (&Callable{Name: "closed"}).WithAsync(func(context.Context, any) <-chan FuncResult {
		ch := make(chan FuncResult)
		close(ch)
		return ch
	})
	_, err = closed.Invoke(ctx, nil)
	assert.ErrorContains(t, err, "result channel closed")

	blocked := (&Callable{Name: "blocked"}).WithAsync(func(context.Context, any) <-chan FuncResult {
		return make(chan FuncResult)
	})
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = blocked.Invoke(canceled, nil)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = (&Callable{}).Invoke(ctx, nil)
	assert.Error(t, err)
}

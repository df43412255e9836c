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
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterruptErrorFormattingAndHelpers(t *testing.T) {
	ie := &InterruptError{NodeID: "N", Step: 2, Value: "ask", Timestamp: time.Now().UTC()}
	msg := ie.Error()
	require.Contains(t, msg, "graph interrupted at node N")
	require.Contains(t, msg, "step 2")

	var err error = ie
	require.True(t, IsInterruptError(err))
	got, ok := GetInterruptError(fmt.Errorf("wrapped: %w", err))
	require.True(t, ok)
	require.Equal(t, "ask", got.Value)

	require.False(t, IsInterruptError(errors.New("x")))
	_, ok = GetInterruptError(nil)
	require.False(t, ok)
}

func TestInterruptError_Interrupt(t *testing.T) {
	ie := NewInterruptError("approve")
	ie.Path = []string{"outer", "inner"}
	assert.Equal(t, Interrupt{
		Value:     "approve",
		Resumable: true,
		NS:        []string{"outer", "inner"},
		When:      "during",
	}, ie.Interrupt())
}

func TestInterruptRecord(t *testing.T) {
	src := map[string]any{"value": "x", "resumable": true}
	tests := []struct {
		name string
		in   any
		want map[string]any
	}{
		{name: "scalar", in: "paused", want: map[string]any{"value": "paused"}},
		{name: "nil", in: nil, want: map[string]any{"value": nil}},
		{name: "map", in: src, want: map[string]any{"value": "x", "resumable": true}},
		{
			name: "interrupt",
			in:   Interrupt{Value: "v", Resumable: true, When: "during"},
			want: map[string]any{"value": "v", "resumable": true, "when": "during"},
		},
		{name: "interrupt pointer", in: &Interrupt{Value: 1}, want: map[string]any{"value": 1}},
		{name: "nil interrupt pointer", in: (*Interrupt)(nil), want: map[string]any{"value": nil}},
		{
			name: "interrupt error",
			in:   NewInterruptError("ask"),
			want: map[string]any{"value": "ask", "resumable": true, "when": "during"},
		},
		{
			name: "namespaced",
			in:   Interrupt{Value: "v", NS: []string{"a:1"}},
			want: map[string]any{"value": "v", "ns": []string{"a:1"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InterruptRecord(tt.in))
		})
	}

	record := InterruptRecord(src)
	record["value"] = "changed"
	assert.Equal(t, "x", src["value"], "maps are copied")
}

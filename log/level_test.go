//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestSetLevel(t *testing.T) {
	defer SetLevel(LevelInfo)
	cases := []struct {
		in       string
		expected zapcore.Level
	}{
		{LevelDebug, zapcore.DebugLevel},
		{LevelInfo, zapcore.InfoLevel},
		{LevelWarn, zapcore.WarnLevel},
		{LevelError, zapcore.ErrorLevel},
		{LevelFatal, zapcore.FatalLevel},
		{"unknown", zapcore.InfoLevel},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			SetLevel(c.in)
			assert.Equal(t, c.expected, zapLevel.Level())
		})
	}
}

func TestSetLevel_GatesDefault(t *testing.T) {
	defer SetLevel(LevelInfo)
	sugared, ok := Default.(*zap.SugaredLogger)
	require.True(t, ok)
	core := sugared.Desugar().Core()

	assert.False(t, core.Enabled(zapcore.DebugLevel))
	SetLevel(LevelDebug)
	assert.True(t, core.Enabled(zapcore.DebugLevel))
	SetLevel(LevelError)
	assert.False(t, core.Enabled(zapcore.WarnLevel))
}

func TestTracef(t *testing.T) {
	var recorded string
	stub := &stubLogger{debugf: func(format string, _ ...any) {
		recorded = format
	}}
	old := Default
	Default = stub
	defer func() { Default = old }()

	Tracef("hello %s", "world")
	assert.Equal(t, "[TRACE] hello %s", recorded)
}

// stubLogger captures Debugf calls.
type stubLogger struct {
	debugf func(format string, args ...any)
}

func (s *stubLogger) Debug(args ...any)                 {}
func (s *stubLogger) Debugf(format string, args ...any) { s.debugf(format, args...) }
func (s *stubLogger) Info(args ...any)                  {}
func (s *stubLogger) Infof(format string, args ...any)  {}
func (s *stubLogger) Warn(args ...any)                  {}
func (s *stubLogger) Warnf(format string, args ...any)  {}
func (s *stubLogger) Error(args ...any)                 {}
func (s *stubLogger) Errorf(format string, args ...any) {}
func (s *stubLogger) Fatal(args ...any)                 {}
func (s *stubLogger) Fatalf(format string, args ...any) {}

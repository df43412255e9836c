//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package log_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"trpc.group/trpc-go/trpc-graph-go/log"
)

func TestLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	old := log.Default
	log.Default = zap.New(core).Sugar()
	defer func() { log.Default = old }()

	log.Debug("debug")
	log.Debugf("debug %d", 1)
	log.Info("info")
	log.Infof("info %d", 2)
	log.Warn("warn")
	log.Warnf("warn %d", 3)
	log.Error("error")
	log.Errorf("error %d", 4)
	log.Tracef("trace %d", 5)

	var got []string
	var levels []zapcore.Level
	for _, entry := range logs.All() {
		got = append(got, entry.Message)
		levels = append(levels, entry.Level)
	}
	assert.Equal(t, []string{
		"debug", "debug 1", "info", "info 2", "warn", "warn 3", "error", "error 4", "[TRACE] trace 5",
	}, got)
	assert.Equal(t, []zapcore.Level{
		zapcore.DebugLevel, zapcore.DebugLevel,
		zapcore.InfoLevel, zapcore.InfoLevel,
		zapcore.WarnLevel, zapcore.WarnLevel,
		zapcore.ErrorLevel, zapcore.ErrorLevel,
		zapcore.DebugLevel,
	}, levels)
}

func TestLog_Fatal(t *testing.T) {
	old := log.Default
	log.Default = &noopLogger{}
	defer func() { log.Default = old }()

	log.Fatal("test")
	log.Fatalf("test")
}

type noopLogger struct{}

func (*noopLogger) Debug(args ...any)                 {}
func (*noopLogger) Debugf(format string, args ...any) {}
func (*noopLogger) Info(args ...any)                  {}
func (*noopLogger) Infof(format string, args ...any)  {}
func (*noopLogger) Warn(args ...any)                  {}
func (*noopLogger) Warnf(format string, args ...any)  {}
func (*noopLogger) Error(args ...any)                 {}
func (*noopLogger) Errorf(format string, args ...any) {}
func (*noopLogger) Fatal(args ...any)                 {}
func (*noopLogger) Fatalf(format string, args ...any) {}

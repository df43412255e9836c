//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package telemetry holds the names, attribute keys and connection helpers
// shared by the trace and metric providers and by instrumented packages.
package telemetry

import (
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// telemetry service constants.
const (
	ServiceName      = "telemetry"
	ServiceVersion   = "v0.1.0"
	ServiceNamespace = "trpc-graph-go"
	InstrumentName   = "trpc.graph.go"

	SpanNamePrefixDebug = "debug"

	MetricDebugEvents = "graph.debug.events"
)

const (
	// ProtocolGRPC uses gRPC protocol for OTLP exporter.
	ProtocolGRPC string = "grpc"
	// ProtocolHTTP uses HTTP protocol for OTLP exporter.
	ProtocolHTTP string = "http"
)

// telemetry attributes constants.
var (
	KeyEventType  = "trpc.go.graph.event_type"
	KeyStep       = "trpc.go.graph.step"
	KeyTaskID     = "trpc.go.graph.task_id"
	KeyTaskName   = "trpc.go.graph.task_name"
	KeyTaskCount  = "trpc.go.graph.task_count"
	KeyLineageID  = "trpc.go.graph.lineage_id"
	KeyNamespace  = "trpc.go.graph.checkpoint_ns"
	KeyCheckpoint = "trpc.go.graph.checkpoint_id"
	KeyPayload    = "trpc.go.graph.payload"
)

// NewDebugSpanName returns the span name of a debug emission, e.g.
// "debug.task_result".
func NewDebugSpanName(eventType string) string {
	if eventType == "" {
		return SpanNamePrefixDebug
	}
	return SpanNamePrefixDebug + "." + eventType
}

// TraceDebugEvent records the type, step and payload of a debug event on span.
func TraceDebugEvent(span trace.Span, eventType string, step int, payload any) {
	span.SetAttributes(
		attribute.String(KeyEventType, eventType),
		attribute.Int(KeyStep, step),
	)
	if bts, err := json.Marshal(payload); err == nil {
		span.SetAttributes(attribute.String(KeyPayload, string(bts)))
	} else {
		span.SetAttributes(attribute.String(KeyPayload, "<not json serializable>"))
	}
}

// NewGRPCConn creates a new gRPC connection to the OpenTelemetry Collector.
func NewGRPCConn(endpoint string) (*grpc.ClientConn, error) {
	// Insecure transport; put TLS in front of the collector in production.
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to collector: %w", err)
	}
	return conn, nil
}

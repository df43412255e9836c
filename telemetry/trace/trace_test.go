//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTracesEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "custom-trace:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "generic-endpoint:4317")
	require.Equal(t, "custom-trace:4317", tracesEndpoint(""))

	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")
	require.Equal(t, "generic-endpoint:4317", tracesEndpoint(""))

	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	require.Equal(t, "localhost:4317", tracesEndpoint("grpc"))
	require.Equal(t, "localhost:4318", tracesEndpoint("http"))
}

func TestParseEndpointURL(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		endpoint string
		path     string
		wantErr  bool
	}{
		{name: "full", in: "http://localhost:3000/api/public/otel", endpoint: "localhost:3000", path: "/api/public/otel"},
		{name: "no scheme", in: "collector:4318", endpoint: "collector:4318", path: "/"},
		{name: "https", in: "https://otel.example.com/v1", endpoint: "otel.example.com", path: "/v1"},
		{name: "no host", in: "http:///path", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint, path, err := parseEndpointURL(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.endpoint, endpoint)
			require.Equal(t, tt.path, path)
		})
	}
}

func TestStartAndClean(t *testing.T) {
	old := Tracer
	t.Cleanup(func() { Tracer = old })

	for _, protocol := range []string{"grpc", "http"} {
		t.Run(protocol, func(t *testing.T) {
			clean, err := Start(context.Background(),
				WithEndpoint("localhost:4317"),
				WithProtocol(protocol),
				WithHeaders(map[string]string{"x-test": "1"}),
				WithServiceName("graph-test"),
			)
			require.NoError(t, err)
			require.NotNil(t, clean)
			// No collector is running, shutdown errors are expected.
			_ = clean()
		})
	}
}

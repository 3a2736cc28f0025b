// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package trace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const tracerProviderExportCreationTimeout = 5 * time.Second

// ExporterType is the protocol spans are exported with.
type ExporterType byte

const (
	NoOp ExporterType = iota
	GRPC
	HTTP
)

var (
	errUnknownExporterType = errors.New("unknown exporter type")

	exporterNames = map[ExporterType]string{
		NoOp: "",
		GRPC: "grpc",
		HTTP: "http",
	}
	// Clients of the exporter types that export spans.
	exporterClients = map[ExporterType]func(ExporterConfig) otlptrace.Client{
		GRPC: newGRPCClient,
		HTTP: newHTTPClient,
	}
)

// ExporterTypeFromString is case insensitive. The empty string, "null" and
// "none" all disable exporting.
func ExporterTypeFromString(s string) (ExporterType, error) {
	s = strings.ToLower(s)
	if s == "null" || s == "none" {
		return NoOp, nil
	}
	for t, name := range exporterNames {
		if s == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", errUnknownExporterType, s)
}

func (t ExporterType) String() string {
	if name, ok := exporterNames[t]; ok {
		return name
	}
	return "unknown"
}

func (t ExporterType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ExporterType) UnmarshalText(text []byte) error {
	exporterType, err := ExporterTypeFromString(string(text))
	if err != nil {
		return err
	}
	*t = exporterType
	return nil
}

type ExporterConfig struct {
	Type ExporterType `json:"type"`

	// Endpoint to send metrics to. If empty, the default endpoint will be used.
	Endpoint string `json:"endpoint"`

	// Headers to send with metrics
	Headers map[string]string `json:"headers"`

	// If true, don't use TLS
	Insecure bool `json:"insecure"`
}

func newGRPCClient(config ExporterConfig) otlptrace.Client {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithHeaders(config.Headers),
		otlptracegrpc.WithTimeout(tracerExportTimeout),
	}
	if config.Endpoint != "" {
		opts = append(opts, otlptracegrpc.WithEndpoint(config.Endpoint))
	}
	if config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.NewClient(opts...)
}

func newHTTPClient(config ExporterConfig) otlptrace.Client {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithHeaders(config.Headers),
		otlptracehttp.WithTimeout(tracerExportTimeout),
	}
	if config.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(config.Endpoint))
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.NewClient(opts...)
}

func newExporter(config ExporterConfig) (sdktrace.SpanExporter, error) {
	newClient, ok := exporterClients[config.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownExporterType, config.Type)
	}

	ctx, cancel := context.WithTimeout(context.Background(), tracerProviderExportCreationTimeout)
	defer cancel()
	return otlptrace.New(ctx, newClient(config))
}

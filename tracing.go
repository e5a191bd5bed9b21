// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package veescrow

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func (s *System) setupTracing() error {
	var exporter sdktrace.SpanExporter
	var err error
	if s.config.tracingStdout {
		opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		if s.config.tracingWriter != nil {
			opts = append(opts, stdouttrace.WithWriter(s.config.tracingWriter))
		}
		exporter, err = stdouttrace.New(opts...)
		if err != nil {
			return fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
	} else {
		exporter, err = otlptracehttp.New(context.Background())
		if err != nil {
			return fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	s.tracerProvider = tp
	s.shutdownFuncs = append(s.shutdownFuncs, tp.Shutdown)
	return nil
}

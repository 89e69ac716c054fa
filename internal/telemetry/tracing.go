/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ServiceName identifies backdrop in exported traces.
const ServiceName = "backdrop"

// Span attribute keys shared by every backdrop component.
const (
	AttrTheme      = attribute.Key("backdrop.theme")
	AttrSession    = attribute.Key("backdrop.session_id")
	AttrTrackIndex = attribute.Key("backdrop.track.index")
	AttrTrackFile  = attribute.Key("backdrop.track.file")
	AttrReason     = attribute.Key("backdrop.transition.reason")
)

// TracerConfig contains configuration for OpenTelemetry tracing.
type TracerConfig struct {
	ServiceName    string
	ServiceVersion string
	// Environment becomes deployment.environment on the resource.
	Environment  string
	OTLPEndpoint string // e.g., "localhost:4317"
	Enabled      bool
	SampleRate   float64 // 0.0 to 1.0
}

// sampler maps a sample rate onto a parent-based sampler so remote callers
// of the control API keep their sampling decision.
func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case rate <= 0.0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// TracerProvider owns the exporter pipeline, if any.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	logger   zerolog.Logger
}

// InitTracer installs the global tracer provider. Disabled tracing installs
// a no-op provider so spans cost nothing.
func InitTracer(ctx context.Context, cfg TracerConfig, logger zerolog.Logger) (*TracerProvider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = ServiceName
	}
	logger = logger.With().Str("component", "tracing").Logger()
	if !cfg.Enabled {
		logger.Info().Msg("tracing disabled")
		otel.SetTracerProvider(noop.NewTracerProvider())
		return &TracerProvider{logger: logger}, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(resourceAttributes(cfg)...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		otlptracegrpc.WithTimeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info().
		Str("otlp_endpoint", cfg.OTLPEndpoint).
		Float64("sample_rate", cfg.SampleRate).
		Str("environment", cfg.Environment).
		Msg("tracing enabled")
	return &TracerProvider{provider: tp, logger: logger}, nil
}

func resourceAttributes(cfg TracerConfig) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.ServiceVersion),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentKey.String(cfg.Environment))
	}
	return attrs
}

// Shutdown flushes pending spans, waiting at most five seconds.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := tp.provider.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	tp.logger.Debug().Msg("tracer provider flushed")
	return nil
}

type playbackKey struct{}

// playbackScope names the engine a context works for.
type playbackScope struct {
	theme   string
	session string
}

// WithPlayback tags ctx with the theme and session of an engine. Spans
// started from it, or from any context derived from it, carry both.
func WithPlayback(ctx context.Context, theme, session string) context.Context {
	return context.WithValue(ctx, playbackKey{}, playbackScope{theme: theme, session: session})
}

// PlaybackAttributes returns the theme and session attributes ctx carries.
func PlaybackAttributes(ctx context.Context) []attribute.KeyValue {
	scope, ok := ctx.Value(playbackKey{}).(playbackScope)
	if !ok {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, 2)
	if scope.theme != "" {
		attrs = append(attrs, AttrTheme.String(scope.theme))
	}
	if scope.session != "" {
		attrs = append(attrs, AttrSession.String(scope.session))
	}
	return attrs
}

// TrackAttributes describes one track of a theme.
func TrackAttributes(theme string, index int, file string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrTheme.String(theme),
		AttrTrackIndex.Int(index),
		AttrTrackFile.String(file),
	}
}

// StartSpan starts a span on the component's tracer. The playback scope of
// ctx is stamped on first so explicit attrs win.
func StartSpan(ctx context.Context, component, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append(PlaybackAttributes(ctx), attrs...)
	return otel.Tracer(ServiceName+"/"+component).Start(ctx, name, trace.WithAttributes(all...))
}

// FailSpan marks span failed with err. A nil err does nothing.
func FailSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// EndSpan records err, if any, and ends span.
func EndSpan(span trace.Span, err error) {
	FailSpan(span, err)
	span.End()
}

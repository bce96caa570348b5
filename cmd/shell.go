// Package cmd provides utilities that underlie the specific commands.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/letsencrypt/batchdml/blog"
	"github.com/letsencrypt/batchdml/strictyaml"
)

// Command returns the name of the running binary.
func Command() string {
	return filepath.Base(os.Args[0])
}

// VersionString produces a friendly Application version string.
func VersionString() string {
	version := "(devel)"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		version = info.Main.Version
	}
	return fmt.Sprintf("Versions: %s=(%s) Golang=(%s)", Command(), version, runtime.Version())
}

// FailOnError prints an error message and exits if err is non-nil.
func FailOnError(err error, msg string) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %s\n", msg, err)
	os.Exit(1)
}

// Fail prints msg and exits.
func Fail(msg string) {
	FailOnError(errors.New(msg), "fatal error")
}

// isYAML reports whether filename should be decoded as YAML.
func isYAML(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// ReadConfigFile takes a file path as an argument and attempts to
// unmarshal the content of the file into a struct containing a
// configuration. Files ending in .yaml or .yml are
// decoded as YAML, everything else as JSON. Any unknown field is an error.
func ReadConfigFile(filename string, out interface{}) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if isYAML(filename) {
		b, err := io.ReadAll(file)
		if err != nil {
			return err
		}
		return strictyaml.Unmarshal(b, out)
	}
	return decodeJSONStrict(file, out)
}

// decodeJSONStrict unmarshals JSON from in into out, rejecting unknown
// fields.
func decodeJSONStrict(in io.Reader, out interface{}) error {
	decoder := json.NewDecoder(in)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

// Clock functions similarly to clock.New(), but the returned value can be
// pinned using the FAKECLOCK environment variable.
//
// The FAKECLOCK env var is in the time.RFC3339 format.
func Clock() clock.Clock {
	if tgt := os.Getenv("FAKECLOCK"); tgt != "" {
		targetTime, err := time.Parse(time.RFC3339, tgt)
		FailOnError(err, "cmd.Clock: bad format for FAKECLOCK")

		cl := clock.NewFake()
		cl.Set(targetTime)
		return cl
	}
	return clock.New()
}

// StatsAndLogging constructs a prometheus registerer and a logger from the
// provided configs and points our dependencies' loggers at it. It also sets
// up the global OpenTelemetry tracer provider; the returned func flushes and
// shuts it down. If addr is not empty, the registry is served on /metrics.
func StatsAndLogging(logConf blog.Config, otConf OpenTelemetryConfig, addr string) (*prometheus.Registry, *slog.Logger, func(context.Context)) {
	logger, err := blog.New(os.Stderr, logConf)
	FailOnError(err, "Could not create logger")
	blog.InitAdapters(logger)

	shutdown := newOpenTelemetry(otConf, logger)
	return newStatsRegistry(addr, logger), logger, shutdown
}

func newStatsRegistry(addr string, logger *slog.Logger) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if addr == "" {
		return registry
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}))
	server := http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: time.Minute,
	}
	go func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("unable to boot debug server", slog.String("addr", addr), slog.Any("error", err))
		}
	}()
	return registry
}

func newOpenTelemetry(config OpenTelemetryConfig, logger *slog.Logger) func(ctx context.Context) {
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Error("OpenTelemetry error", slog.Any("error", err))
	}))

	resources := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(Command()),
		semconv.ProcessPID(os.Getpid()),
	)

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resources),
		// Use a ParentBased sampler to respect the sample decisions on incoming
		// traces, and TraceIDRatioBased to randomly sample new traces.
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SampleRatio))),
	}

	if config.Endpoint != "" {
		exporter, err := otlptracegrpc.New(
			context.Background(),
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithEndpoint(config.Endpoint))
		FailOnError(err, "Could not create OpenTelemetry OTLP exporter")
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tracerProvider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		err := tracerProvider.Shutdown(ctx)
		if err != nil {
			logger.Error("Error while shutting down OpenTelemetry", slog.Any("error", err))
		}
	}
}

// Package observe wires logging, tracing and the store event bus together.
package observe

import (
	"context"
	"fmt"
	"io"

	"github.com/felixgeelhaar/bolt/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/mnemo/internal/telemetry"
)

var tracer = otel.Tracer("mnemo")

// Observer handles logging, tracing and store events.
type Observer struct {
	log *bolt.Logger
	bus *telemetry.Bus
}

// New creates an Observer writing to out in the given format ("console" or
// "json"). If verbose is false, only warnings and errors are shown.
// Store events are logged through the same logger.
func New(out io.Writer, format string, verbose bool) (*Observer, error) {
	var l *bolt.Logger
	switch format {
	case "", "console":
		l = bolt.New(bolt.NewConsoleHandler(out))
	case "json":
		l = bolt.New(bolt.NewJSONHandler(out))
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	if !verbose {
		l.SetLevel(bolt.WARN)
	}

	bus := telemetry.NewBus(telemetry.DefaultBuffer)
	bus.SubscribeAll(telemetry.LogHandler(l))

	return &Observer{
		log: l,
		bus: bus,
	}, nil
}

// Log returns the underlying logger
func (o *Observer) Log() *bolt.Logger {
	return o.log
}

// Events returns the sink the store publishes to.
func (o *Observer) Events() *telemetry.Bus {
	return o.bus
}

// StartSpan starts a new OTel span
func (o *Observer) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// Close delivers queued events and warns about any that were dropped.
func (o *Observer) Close() error {
	o.bus.Close()
	if n := o.bus.Dropped(); n > 0 {
		o.log.Warn().Int("dropped", int(n)).Msg("telemetry events dropped")
	}
	return nil
}

package observability

import (
	"context"
	"errors"
	"log/slog"
)

// Options selects which telemetry pipelines Setup starts.
type Options struct {
	ServiceName  string
	MetricsAddr  string
	OTELEndpoint string
}

// Setup starts the configured pipelines and returns one shutdown function for
// all of them. Empty addresses leave the corresponding pipeline disabled and
// the global no-op providers in place.
func Setup(ctx context.Context, opts Options, log *slog.Logger) (func(context.Context) error, error) {
	var shutdowns []func(context.Context) error

	InstallPropagator()

	if opts.OTELEndpoint != "" {
		shutdownTracer, err := InitTracer(ctx, opts.ServiceName, opts.OTELEndpoint)
		if err != nil {
			return nil, err
		}
		shutdowns = append(shutdowns, shutdownTracer)
	}

	if opts.MetricsAddr != "" {
		handler, shutdownMetrics, err := InitMetrics()
		if err != nil {
			return nil, errors.Join(err, runAll(ctx, shutdowns))
		}
		shutdowns = append(shutdowns, shutdownMetrics)
		go ServeMetrics(ctx, opts.MetricsAddr, handler, log)
	}

	return func(ctx context.Context) error {
		return runAll(ctx, shutdowns)
	}, nil
}

func runAll(ctx context.Context, fns []func(context.Context) error) error {
	var errs []error
	for _, fn := range fns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

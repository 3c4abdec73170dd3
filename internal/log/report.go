package log

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
)

// InitReporting enables error reporting to Sentry. With an empty DSN it is a
// no-op; the returned flush func is always safe to call.
func InitReporting(dsn, environment, release string, logger *Logger) (flush func()) {
	if dsn == "" {
		return func() {}
	}
	opts := sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	}
	if opts.Environment == "" {
		opts.Environment = "production"
	}
	if err := sentry.Init(opts); err != nil {
		logger.Error("Failed to initialize Sentry", FieldError, err.Error())
		return func() {}
	}
	logger.Info("Error reporting enabled", "environment", opts.Environment)
	return func() { sentry.Flush(2 * time.Second) }
}

// ReportError sends err to Sentry with tags. It uses the hub bound to ctx
// when there is one. Without InitReporting the call does nothing.
func ReportError(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	if hub.Client() == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		hub.CaptureException(err)
	})
}

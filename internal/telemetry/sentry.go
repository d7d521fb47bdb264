// Package telemetry reports failures to Sentry and keeps in-process query
// metrics for the retriever. Both are optional: an empty DSN disables Sentry
// and a nil *QueryMetrics records nothing.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

const serverName = "corpusrag"

// flushTimeout bounds how long shutdown waits for queued events.
const flushTimeout = 5 * time.Second

// Config holds the configuration for Sentry initialization.
type Config struct {
	DSN         string `yaml:"dsn" split_words:"true"`
	Environment string `yaml:"environment" split_words:"true"`
	Debug       bool   `yaml:"debug" split_words:"true"`
}

// Enabled reports whether a DSN is configured.
func (c Config) Enabled() bool {
	return c.DSN != ""
}

// Init initializes the global Sentry client.
// Returns a shutdown function that flushes pending events.
// If DSN is empty, returns a no-op shutdown function. An invalid DSN is
// logged and also degrades to a no-op so telemetry never blocks a run.
func Init(cfg Config, logger *slog.Logger) func() {
	if !cfg.Enabled() {
		return func() {}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Debug:       cfg.Debug,
		ServerName:  serverName,
	})
	if err != nil {
		logger.Warn("sentry init failed, continuing without error reporting",
			slog.String("error", err.Error()))
		return func() {}
	}

	logger.Debug("sentry initialized", slog.String("environment", cfg.Environment))
	return func() {
		sentry.Flush(flushTimeout)
	}
}

// SentryReporter captures errors to the Sentry hub on the context, or the
// global hub when there is none.
type SentryReporter struct{}

// CaptureError captures err with tags attached to the event scope.
func (SentryReporter) CaptureError(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		hub.CaptureException(err)
	})
}

// AddBreadcrumb adds a breadcrumb to the current scope.
func AddBreadcrumb(ctx context.Context, category, message string) {
	breadcrumb := &sentry.Breadcrumb{
		Type:      "default",
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}

	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.AddBreadcrumb(breadcrumb, nil)
	} else {
		sentry.AddBreadcrumb(breadcrumb)
	}
}

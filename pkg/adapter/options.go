package adapter

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/specvital/pyadapter/pkg/locator"
)

// Options configures an Adapter.
type Options struct {
	// Locator fills in source lines after discovery. Nil disables annotation.
	Locator *locator.Locator

	Logger *slog.Logger

	// NewRunID generates the id attached to every event of one run.
	// Default: random UUID.
	NewRunID func() string

	// Timeout bounds a single Load or Run. Zero means no limit.
	Timeout time.Duration

	locatorSet bool
}

// Option is a functional option for configuring an Adapter.
type Option func(*Options)

// WithLogger sets the logger for the adapter and the default locator.
// Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithLocator replaces the default source locator. Passing nil disables
// line annotation.
func WithLocator(l *locator.Locator) Option {
	return func(o *Options) {
		o.Locator = l
		o.locatorSet = true
	}
}

// WithRunIDs replaces the run id generator. Nil is ignored.
func WithRunIDs(fn func() string) Option {
	return func(o *Options) {
		if fn != nil {
			o.NewRunID = fn
		}
	}
}

// WithTimeout bounds each Load and Run. Negative values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d >= 0 {
			o.Timeout = d
		}
	}
}

func defaultOptions(logger *slog.Logger) *Options {
	return &Options{
		Logger:   logger,
		NewRunID: uuid.NewString,
	}
}

// finish fills in defaults that depend on other options.
func (o *Options) finish() {
	if !o.locatorSet {
		o.Locator = locator.New(locator.WithLogger(o.Logger))
	}
}

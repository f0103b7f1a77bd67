package core

import "go.uber.org/zap"

type options struct {
	logger      *zap.Logger
	ids         IDGenerator
	syncOnWrite bool
}

type Option func(*options)

func defaultOptions() *options {
	return &options{
		logger: zap.NewNop(),
		ids:    NewMonotonicIDGenerator(),
	}
}

// WithLogger sets the logger used for lifecycle events such as segment
// discovery and rollover. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithIDGenerator replaces the source of new segment ids.
func WithIDGenerator(ids IDGenerator) Option {
	return func(o *options) {
		if ids != nil {
			o.ids = ids
		}
	}
}

// WithSyncOnWrite makes every put and delete fsync the active segment before
// returning.
func WithSyncOnWrite(enabled bool) Option {
	return func(o *options) {
		o.syncOnWrite = enabled
	}
}

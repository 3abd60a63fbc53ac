package kv

import "go.uber.org/zap"

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger attaches a structured logger used for the engine-open event
// (recovered and prealloc leaf counts) and for failed Put/Remove calls. It
// is not passed to the pool, and splits are not logged. The default is
// zap.NewNop(): logging is observability only and never gates control flow.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

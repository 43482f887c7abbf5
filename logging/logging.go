// Package logging provides the module's single structured-logging
// accessor. Grounded on viamrobotics-rdk's use of go.uber.org/zap, the
// pack's only direct structured-logging dependency. smooth/ffbs.Run
// and inference.MetropolisThreaded take an optional *zap.Logger and
// log nothing when it is nil, so callers who don't care about
// diagnostics never pay for them; the filters take no logger.
package logging

import "go.uber.org/zap"

// NoOp returns a logger that discards everything, used as the default
// when a caller does not supply one.
func NoOp() *zap.Logger {
	return zap.NewNop()
}

// Default returns a development logger writing to stderr, used by
// cmd/ssmfit and by tests that want to see diagnostics.
func Default() *zap.Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		return NoOp()
	}
	return l
}

// OrNoOp returns l if non-nil, otherwise a no-op logger, so code
// holding an optional *zap.Logger never has to nil-check it.
func OrNoOp(l *zap.Logger) *zap.Logger {
	if l == nil {
		return NoOp()
	}
	return l
}

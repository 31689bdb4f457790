package journal

import (
	"context"

	"github.com/datatrails/go-datatrails-common/logger"
)

// Option configures a Journal at construction time, following the same
// functional-options shape used throughout the storage stack's ambient
// configuration surface.
type Option func(*Journal)

// WithLogger installs a structured logger for scan/rotation tracing. The
// default is a no-op logger.
func WithLogger(log logger.Logger) Option {
	return func(j *Journal) { j.log = log }
}

// WithYield installs the cooperative-scheduling yield hook called between
// sectors during Scan and AdvanceSector's forward walk (spec §5). The
// default is a no-op; tests that want to exercise interleaving install
// one that calls runtime.Gosched or injects a delay.
func WithYield(fn func(ctx context.Context)) Option {
	return func(j *Journal) { j.yield = fn }
}

package catalog

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

const defaultEnrichInterval = 100 * time.Millisecond

// Gate paces per-item enrichment calls. Wait blocks until the next call may
// be issued or ctx is done.
type Gate interface {
	Wait(ctx context.Context) error
}

// NewIntervalGate returns a Gate that lets one call through immediately and
// then at most one call per interval.
func NewIntervalGate(interval time.Duration) Gate {
	if interval <= 0 {
		return NoGate()
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

type noGate struct{}

func (noGate) Wait(ctx context.Context) error { return ctx.Err() }

// NoGate never delays. Tests use it to keep walks timing-independent.
func NoGate() Gate { return noGate{} }

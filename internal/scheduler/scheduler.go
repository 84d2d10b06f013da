// Package scheduler wires up the cron jobs that keep the result cache warm
// for every active store and purge expired in-memory entries.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"ymmfilter/compat-service/internal/credential"
	"ymmfilter/compat-service/internal/model"
)

const purgeSpec = "@every 1m"

// StoreLister lists the stores to warm. credential.PGRegistry implements it.
type StoreLister interface {
	ListActive(ctx context.Context) ([]model.Store, error)
}

// Refresher rebuilds the cached catalog answers of one store.
type Refresher interface {
	Refresh(ctx context.Context, cred model.StoreCredential) error
}

// Purger drops expired cache entries. cache.MemoryStore implements it.
type Purger interface {
	Purge() int
}

// Scheduler wraps robfig/cron and manages the warm-up and purge loops.
type Scheduler struct {
	cron      *cron.Cron
	stores    StoreLister
	refresher Refresher
	resolver  *credential.Resolver
	purger    Purger
	spec      string // cron spec, e.g. "@every 6h"; empty disables warm-up
	logger    *slog.Logger
}

// New creates a Scheduler. purger may be nil when the cache backend expires
// entries itself.
func New(stores StoreLister, refresher Refresher, resolver *credential.Resolver, purger Purger, spec string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cronLog := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))
	return &Scheduler{
		cron:      cron.New(cron.WithLogger(cronLog)),
		stores:    stores,
		refresher: refresher,
		resolver:  resolver,
		purger:    purger,
		spec:      spec,
		logger:    logger,
	}
}

// Start registers the jobs and starts the scheduler. When warm-up is enabled
// one cycle also runs immediately so the cache is populated without waiting
// for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.spec != "" {
		if _, err := s.cron.AddFunc(s.spec, func() { s.RunWarmup(ctx) }); err != nil {
			return fmt.Errorf("cron.AddFunc %q: %w", s.spec, err)
		}
	}
	if s.purger != nil {
		if _, err := s.cron.AddFunc(purgeSpec, s.runPurge); err != nil {
			return fmt.Errorf("cron.AddFunc %q: %w", purgeSpec, err)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "warmup", s.spec, "purge", s.purger != nil)

	if s.spec != "" {
		go s.RunWarmup(ctx)
	}
	return nil
}

// Stop shuts down the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunWarmup refreshes the cache of every active store. A failing store is
// logged and the cycle moves on. It returns the number of stores refreshed.
func (s *Scheduler) RunWarmup(ctx context.Context) int {
	stores, err := s.stores.ListActive(ctx)
	if err != nil {
		s.logger.Error("warm-up: list stores failed", "err", err)
		return 0
	}
	if len(stores) == 0 {
		s.logger.Info("warm-up: no active stores")
		return 0
	}

	refreshed := 0
	for _, st := range stores {
		if ctx.Err() != nil {
			break
		}
		cred, err := s.resolver.Resolve(ctx, credential.Sources{StoreID: st.Hash, AccessToken: st.AccessToken})
		if err != nil {
			s.logger.Warn("warm-up: store credential unresolved", "store", st.Hash, "err", err)
			continue
		}
		if err := s.refresher.Refresh(ctx, cred); err != nil {
			s.logger.Warn("warm-up: refresh failed", "store", st.Hash, "err", err)
			continue
		}
		refreshed++
	}
	s.logger.Info("warm-up cycle complete", "stores", len(stores), "refreshed", refreshed)
	return refreshed
}

func (s *Scheduler) runPurge() {
	if n := s.purger.Purge(); n > 0 {
		s.logger.Debug("purged expired cache entries", "count", n)
	}
}

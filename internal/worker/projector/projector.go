package projector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/halcyonlabs/relay/internal/dal/interfaces/irecordrepo"
	"github.com/halcyonlabs/relay/internal/service/backoff"
	"github.com/halcyonlabs/relay/internal/service/dispatch"
	"github.com/halcyonlabs/relay/internal/service/models/record"
	"github.com/halcyonlabs/relay/internal/service/models/routing"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock uses the system time in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Config holds the projector knobs. Zero values fall back to defaults.
type Config struct {
	BatchSize             int
	MaxConcurrentWorkers  int
	SleepBusy             time.Duration
	SleepIdle             time.Duration
	SleepIdleMax          time.Duration
	ErrorRetryDelay       time.Duration
	TenantRefreshInterval time.Duration
	// ZeroMatchIsError routes records that resolve to zero destinations
	// through the failure path instead of silently marking them SENT.
	ZeroMatchIsError bool
	// PermanentBypassesRetry dead-letters permanently rejected records
	// immediately instead of consuming the retry budget.
	PermanentBypassesRetry bool
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxConcurrentWorkers <= 0 {
		c.MaxConcurrentWorkers = 4
	}
	if c.SleepBusy <= 0 {
		c.SleepBusy = 50 * time.Millisecond
	}
	if c.SleepIdle <= 0 {
		c.SleepIdle = 500 * time.Millisecond
	}
	if c.SleepIdleMax <= 0 {
		c.SleepIdleMax = 30 * time.Second
	}
	if c.ErrorRetryDelay <= 0 {
		c.ErrorRetryDelay = 5 * time.Second
	}
	if c.TenantRefreshInterval <= 0 {
		c.TenantRefreshInterval = 30 * time.Second
	}

	return c
}

// Projector drives the claim, route, dispatch, persist cycle for each tenant
// until shut down. All coordination with other projector instances happens
// through the record store's locked claims.
type Projector struct {
	repo       irecordrepo.IRecordRepository
	engine     *routing.Engine
	dispatcher *dispatch.Dispatcher
	policy     backoff.Policy
	source     TenantSource
	clock      Clock
	cfg        Config

	sem chan struct{}
}

// NewProjector creates a projector.
func NewProjector(
	repo irecordrepo.IRecordRepository,
	engine *routing.Engine,
	dispatcher *dispatch.Dispatcher,
	policy backoff.Policy,
	source TenantSource,
	clock Clock,
	cfg Config,
) *Projector {
	cfg = cfg.withDefaults()
	if clock == nil {
		clock = SystemClock{}
	}

	return &Projector{
		repo:       repo,
		engine:     engine,
		dispatcher: dispatcher,
		policy:     policy,
		source:     source,
		clock:      clock,
		cfg:        cfg,
		sem:        make(chan struct{}, cfg.MaxConcurrentWorkers),
	}
}

// Run starts one worker loop per serviced tenant and blocks until ctx is
// cancelled. New tenants discovered at refresh time get workers of their own.
// Run never returns early on a transient failure.
func (p *Projector) Run(ctx context.Context) {
	var wg sync.WaitGroup
	known := map[string]struct{}{}

	startWorkers := func() {
		tenants, err := p.source.Tenants(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("Failed to resolve tenant set", "error", err)
			}

			return
		}
		for _, tenant := range tenants {
			if _, ok := known[tenant]; ok {
				continue
			}
			known[tenant] = struct{}{}
			wg.Add(1)
			go func(tenant string) {
				defer wg.Done()
				p.runTenant(ctx, tenant)
			}(tenant)
		}
	}

	slog.Info("Projector started",
		"batch_size", p.cfg.BatchSize,
		"max_concurrent_workers", p.cfg.MaxConcurrentWorkers,
	)

	startWorkers()

	ticker := time.NewTicker(p.cfg.TenantRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			slog.Info("Projector stopped")

			return
		case <-ticker.C:
			startWorkers()
		}
	}
}

// runTenant is the per-tenant loop: claim, process, pace. A non-empty batch
// is followed by the short busy pause so the queue drains promptly; empty
// polls back off adaptively.
func (p *Projector) runTenant(ctx context.Context, tenantID string) {
	state := newPollState(p.cfg.SleepIdle, p.cfg.SleepIdleMax)

	slog.Info("Tenant worker started", "tenant_id", tenantID)

	for {
		if ctx.Err() != nil {
			return
		}

		processed, err := p.processOnce(ctx, tenantID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("Projector cycle failed, retrying after delay",
				"tenant_id", tenantID,
				"error", err,
			)
			if !sleep(ctx, p.cfg.ErrorRetryDelay) {
				return
			}

			continue
		}

		if processed {
			state.Reset()
			if !sleep(ctx, p.cfg.SleepBusy) {
				return
			}

			continue
		}

		if !sleep(ctx, state.NextIdle()) {
			return
		}
	}
}

// processOnce claims and processes a single batch for the tenant. It reports
// whether any records were processed. Once a batch is claimed it is finished
// on a detached context so shutdown never abandons claimed rows mid-cycle.
func (p *Projector) processOnce(ctx context.Context, tenantID string) (bool, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	defer func() { <-p.sem }()

	batch, err := p.repo.ClaimBatch(ctx, tenantID, p.cfg.BatchSize)
	if err != nil {
		return false, fmt.Errorf("failed to claim batch: %w", err)
	}

	records := batch.Records()
	if len(records) == 0 {
		if err := batch.Rollback(ctx); err != nil {
			return false, err
		}

		return false, nil
	}

	// The batch holds row locks; finish it even if shutdown was requested.
	dctx := context.WithoutCancel(ctx)

	for i := range records {
		p.processRecord(dctx, batch, &records[i])
	}

	if err := batch.Commit(dctx); err != nil {
		return false, err
	}

	return true, nil
}

// processRecord routes and dispatches one claimed record and persists the
// resulting status transition on the batch.
func (p *Projector) processRecord(ctx context.Context, batch irecordrepo.IBatch, rec *record.Record) {
	resolutions, err := p.engine.Resolve(rec)
	if err != nil {
		// A routing config that cannot be evaluated will not fix itself.
		p.recordFailure(ctx, batch, rec, fmt.Errorf("routing failed: %w", err), true)

		return
	}

	if len(resolutions) == 0 {
		if p.cfg.ZeroMatchIsError {
			p.recordFailure(ctx, batch, rec, fmt.Errorf("no routing target matched record %s", rec.ID), false)

			return
		}
		slog.Debug("Record matched no routing targets, dropping", "outbox_id", rec.ID)
		p.markSent(ctx, batch, rec, 0)

		return
	}

	result := p.dispatcher.Dispatch(ctx, rec, resolutions, p.clock.Now())

	switch {
	case result.Deferred():
		if err := batch.Defer(ctx, rec.ID, result.DeferUntil); err != nil {
			slog.Error("Failed to defer record", "outbox_id", rec.ID, "error", err)
		}
	case result.Err != nil:
		p.recordFailure(ctx, batch, rec, result.Err, result.Permanent)
	default:
		p.markSent(ctx, batch, rec, result.Delivered)
	}
}

func (p *Projector) markSent(ctx context.Context, batch irecordrepo.IBatch, rec *record.Record, delivered int) {
	if err := batch.MarkSent(ctx, rec.ID, p.clock.Now()); err != nil {
		slog.Error("Failed to mark record sent", "outbox_id", rec.ID, "error", err)

		return
	}
	slog.Info("Record delivered",
		"outbox_id", rec.ID,
		"tenant_id", rec.TenantID,
		"topic", rec.Topic,
		"destinations", delivered,
	)
}

// recordFailure applies the retry policy. Permanent rejections may skip
// retries and go straight to DEAD; anything else is rescheduled with
// exponential backoff until the attempt limit is reached.
func (p *Projector) recordFailure(
	ctx context.Context,
	batch irecordrepo.IBatch,
	rec *record.Record,
	cause error,
	permanent bool,
) {
	now := p.clock.Now()

	if permanent && p.cfg.PermanentBypassesRetry {
		slog.Warn("Record permanently rejected, dead-lettering",
			"outbox_id", rec.ID,
			"error", cause,
		)
		if err := batch.MarkDead(ctx, rec.ID, cause.Error()); err != nil {
			slog.Error("Failed to mark record dead", "outbox_id", rec.ID, "error", err)
		}

		return
	}

	newCount := rec.RetryCount + 1
	if p.policy.Exhausted(newCount) {
		slog.Warn("Record exhausted retry budget, dead-lettering",
			"outbox_id", rec.ID,
			"retry_count", newCount,
			"error", cause,
		)
		if err := batch.MarkDead(ctx, rec.ID, cause.Error()); err != nil {
			slog.Error("Failed to mark record dead", "outbox_id", rec.ID, "error", err)
		}

		return
	}

	retryAfter := p.policy.NextRetryAt(now, rec.RetryCount)
	slog.Warn("Record delivery failed, scheduled for retry",
		"outbox_id", rec.ID,
		"retry_count", newCount,
		"retry_after", retryAfter,
		"error", cause,
	)
	if err := batch.MarkFailed(ctx, rec.ID, newCount, retryAfter, cause.Error()); err != nil {
		slog.Error("Failed to mark record failed", "outbox_id", rec.ID, "error", err)
	}
}

// sleep waits for d or until ctx is cancelled; it reports false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

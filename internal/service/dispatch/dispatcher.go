package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/halcyonlabs/relay/internal/service/models/record"
	"github.com/halcyonlabs/relay/internal/service/models/routing"
	"github.com/halcyonlabs/relay/internal/transport/publisher"
)

// Strategy controls how per-destination failures aggregate into a record outcome.
type Strategy string

const (
	// StrategyAllOrNothing fails the record on the first destination failure.
	StrategyAllOrNothing Strategy = "all_or_nothing"
	// StrategyBestEffort delivers to every destination it can; the record
	// succeeds when at least one delivery succeeds.
	StrategyBestEffort Strategy = "best_effort"
)

// ErrUnknownStrategy is returned for a strategy outside the two above.
var ErrUnknownStrategy = errors.New("unknown dispatch strategy")

// ParseStrategy validates a configured strategy string.
func ParseStrategy(raw string) (Strategy, error) {
	switch Strategy(raw) {
	case StrategyAllOrNothing, StrategyBestEffort:
		return Strategy(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, raw)
	}
}

// Result is the aggregated outcome of dispatching one record.
type Result struct {
	// Delivered counts destinations successfully published to in this attempt.
	Delivered int
	// DeferUntil is non-zero when at least one resolved target is not yet
	// due; the record should become claimable again at that time.
	DeferUntil time.Time
	// Err is the aggregated failure, nil on success.
	Err error
	// Permanent reports that Err will not succeed on retry.
	Permanent bool
}

// Deferred reports whether the record must be re-claimed later for delayed targets.
func (r Result) Deferred() bool {
	return r.Err == nil && !r.DeferUntil.IsZero()
}

// Dispatcher publishes resolved deliveries through the publish port.
type Dispatcher struct {
	publisher publisher.Publisher
	strategy  Strategy
}

// NewDispatcher creates a dispatcher with the given strategy.
func NewDispatcher(pub publisher.Publisher, strategy Strategy) *Dispatcher {
	return &Dispatcher{
		publisher: pub,
		strategy:  strategy,
	}
}

// Dispatch publishes every due resolution for the record and aggregates the
// outcome. The record id is passed to the port as the idempotency key.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	rec *record.Record,
	resolutions []routing.Resolution,
	now time.Time,
) Result {
	var result Result
	var failures []error
	allPermanent := true
	attempted := 0

	for i := range resolutions {
		res := &resolutions[i]

		if !res.DueAt.IsZero() && res.DueAt.After(now) {
			if result.DeferUntil.IsZero() || res.DueAt.Before(result.DeferUntil) {
				result.DeferUntil = res.DueAt
			}

			continue
		}

		attempted++
		err := d.publisher.Publish(ctx, res.Destination, res.Payload, rec.Metadata, rec.ID.String())
		if err == nil {
			result.Delivered++

			continue
		}

		if d.strategy == StrategyAllOrNothing {
			result.Err = fmt.Errorf("publish to %q failed: %w", res.Destination, err)
			result.Permanent = publisher.IsPermanent(err)

			return result
		}

		slog.Warn("Best-effort publish failed for destination",
			"outbox_id", rec.ID,
			"destination", res.Destination,
			"error", err,
		)
		failures = append(failures, fmt.Errorf("publish to %q failed: %w", res.Destination, err))
		if !publisher.IsPermanent(err) {
			allPermanent = false
		}
	}

	// Best effort: the record fails only when every attempted destination failed.
	if attempted > 0 && result.Delivered == 0 && len(failures) > 0 {
		result.Err = errors.Join(failures...)
		result.Permanent = allPermanent
	}

	return result
}

package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/halcyonlabs/relay/internal/service/models/record"
)

// Batch is a claimed set of rows. All updates run on the claim transaction so
// the locks taken by ClaimBatch hold until Commit or Rollback.
type Batch struct {
	tx      pgx.Tx
	records []record.Record
}

// Records returns the claimed records, oldest first.
func (b *Batch) Records() []record.Record {
	return b.records
}

// MarkSent transitions a record to SENT. The status guard makes a repeated
// call a no-op and refuses to regress terminal records.
func (b *Batch) MarkSent(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	return b.update(ctx, sq.Update(table).
		Set("status", record.StatusSent).
		Set("published_at", publishedAt).
		Set("error_message", nil).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"status": []record.Status{record.StatusNew, record.StatusFailed}}),
	)
}

// MarkFailed transitions a record to FAILED with its new retry schedule.
func (b *Batch) MarkFailed(
	ctx context.Context,
	id uuid.UUID,
	retryCount int,
	retryAfter time.Time,
	errorMessage string,
) error {
	return b.update(ctx, sq.Update(table).
		Set("status", record.StatusFailed).
		Set("retry_count", retryCount).
		Set("retry_after", retryAfter).
		Set("error_message", record.TruncateError(errorMessage)).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"status": []record.Status{record.StatusNew, record.StatusFailed}}),
	)
}

// MarkDead transitions a record to its terminal dead-letter state.
func (b *Batch) MarkDead(ctx context.Context, id uuid.UUID, errorMessage string) error {
	return b.update(ctx, sq.Update(table).
		Set("status", record.StatusDead).
		Set("error_message", record.TruncateError(errorMessage)).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"status": []record.Status{record.StatusNew, record.StatusFailed}}),
	)
}

// Defer pushes a record's eligibility to retryAfter without touching status
// or retry_count; used when resolved targets are not yet due.
func (b *Batch) Defer(ctx context.Context, id uuid.UUID, retryAfter time.Time) error {
	return b.update(ctx, sq.Update(table).
		Set("retry_after", retryAfter).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"status": []record.Status{record.StatusNew, record.StatusFailed}}),
	)
}

// Commit applies the batch's status updates and releases the row locks.
func (b *Batch) Commit(ctx context.Context) error {
	if err := b.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit outbox batch: %w", err)
	}

	return nil
}

// Rollback releases the locks without applying changes.
func (b *Batch) Rollback(ctx context.Context) error {
	if err := b.tx.Rollback(ctx); err != nil {
		return fmt.Errorf("failed to roll back outbox batch: %w", err)
	}

	return nil
}

func (b *Batch) update(ctx context.Context, builder sq.UpdateBuilder) error {
	query, args, err := builder.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	if _, err := b.tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update outbox record: %w", err)
	}

	return nil
}

package irecordrepo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/halcyonlabs/relay/internal/service/models/record"
)

// IRecordRepository defines the durable outbox record store. Claim semantics
// are the coordination point between competing projector instances: claimed
// rows stay locked until the batch commits, and other claimants skip them
// rather than block.
type IRecordRepository interface {
	// Insert adds a NEW record. The executor lets producers enqueue inside
	// the same transaction as their business mutation.
	Insert(ctx context.Context, exec Executor, rec *record.Record) error

	// ClaimBatch atomically selects and locks up to limit eligible records
	// for the tenant. Eligible means NEW past any defer boundary, or FAILED
	// with retry_after due. Records are ordered oldest occurred_at first.
	// The returned batch must be committed or rolled back by the caller.
	ClaimBatch(ctx context.Context, tenantID string, limit int) (IBatch, error)

	// ListTenants returns the distinct tenants that currently have eligible records.
	ListTenants(ctx context.Context) ([]string, error)

	// PendingCount returns the number of records awaiting delivery for a tenant.
	PendingCount(ctx context.Context, tenantID string) (int, error)
}

// Executor runs statements, typically a pgx transaction owned by the producer.
// Both pgx.Tx and *pgxpool.Pool satisfy it.
type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// IBatch is a claimed set of records. Status updates run inside the claim
// transaction so locks are held until Commit.
type IBatch interface {
	// Records returns the claimed records, oldest first.
	Records() []record.Record

	// MarkSent transitions a record to SENT. Idempotent: a record already
	// SENT is left untouched.
	MarkSent(ctx context.Context, id uuid.UUID, publishedAt time.Time) error

	// MarkFailed transitions a record to FAILED with updated retry state.
	MarkFailed(ctx context.Context, id uuid.UUID, retryCount int, retryAfter time.Time, errorMessage string) error

	// MarkDead transitions a record to DEAD.
	MarkDead(ctx context.Context, id uuid.UUID, errorMessage string) error

	// Defer reschedules a record whose targets are not yet due without
	// consuming retry budget or leaving NEW.
	Defer(ctx context.Context, id uuid.UUID, retryAfter time.Time) error

	// Commit applies the status updates and releases the row locks.
	Commit(ctx context.Context) error

	// Rollback releases the locks without applying changes, leaving the
	// records claimable again.
	Rollback(ctx context.Context) error
}

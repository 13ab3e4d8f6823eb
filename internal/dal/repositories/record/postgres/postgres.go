package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/halcyonlabs/relay/internal/dal/interfaces/irecordrepo"
	"github.com/halcyonlabs/relay/internal/dal/postgres"
	"github.com/halcyonlabs/relay/internal/service/models/record"
)

const table = "outbox_records"

var columns = []string{
	"id",
	"tenant_id",
	"aggregate_type",
	"aggregate_id",
	"topic",
	"occurred_at",
	"payload",
	"metadata",
	"routing_key",
	"routing_config",
	"routing_version",
	"status",
	"retry_count",
	"retry_after",
	"error_message",
	"published_at",
}

// RecordRepository implements the outbox record store for PostgreSQL.
type RecordRepository struct {
	client *postgres.Client
}

// NewRecordRepository creates a new record repository.
func NewRecordRepository(client *postgres.Client) *RecordRepository {
	return &RecordRepository{
		client: client,
	}
}

// eligible is the claim predicate: never-attempted records past any defer
// boundary, or failed records whose retry_after has elapsed.
func eligible(now time.Time) sq.Sqlizer {
	return sq.Or{
		sq.And{
			sq.Eq{"status": record.StatusNew},
			sq.Or{
				sq.Eq{"retry_after": nil},
				sq.LtOrEq{"retry_after": now},
			},
		},
		sq.And{
			sq.Eq{"status": record.StatusFailed},
			sq.LtOrEq{"retry_after": now},
		},
	}
}

// Insert adds a NEW record via the provided executor so producers can enqueue
// inside their own business transaction.
func (r *RecordRepository) Insert(
	ctx context.Context,
	exec irecordrepo.Executor,
	rec *record.Record,
) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.TenantID == "" {
		rec.TenantID = record.DefaultTenantID
	}
	if rec.Status == "" {
		rec.Status = record.StatusNew
	}

	metadata := []byte("{}")
	if len(rec.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode record metadata: %w", err)
		}
	}

	var routingConfig any
	if len(rec.RoutingConfig) > 0 {
		routingConfig = []byte(rec.RoutingConfig)
	}

	query, args, err := sq.Insert(table).
		Columns(columns...).
		Values(
			rec.ID,
			rec.TenantID,
			rec.AggregateType,
			rec.AggregateID,
			rec.Topic,
			rec.OccurredAt,
			[]byte(rec.Payload),
			metadata,
			rec.RoutingKey,
			routingConfig,
			rec.RoutingVersion,
			rec.Status,
			rec.RetryCount,
			rec.RetryAfter,
			nullableString(rec.ErrorMessage),
			rec.PublishedAt,
		).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := exec.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert outbox record: %w", err)
	}

	return nil
}

// ClaimBatch opens a transaction, selects up to limit eligible records for
// the tenant with FOR UPDATE SKIP LOCKED, and returns them as a batch that
// keeps the row locks until Commit or Rollback.
func (r *RecordRepository) ClaimBatch(
	ctx context.Context,
	tenantID string,
	limit int,
) (irecordrepo.IBatch, error) {
	query, args, err := sq.Select(columns...).
		From(table).
		Where(sq.Eq{"tenant_id": tenantID}).
		Where(eligible(time.Now())).
		OrderBy("occurred_at ASC", "id ASC").
		Limit(uint64(limit)).
		Suffix("FOR UPDATE SKIP LOCKED").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build claim query: %w", err)
	}

	tx, err := r.client.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		_ = tx.Rollback(ctx)

		return nil, fmt.Errorf("failed to claim outbox records: %w", err)
	}
	defer rows.Close()

	var records []record.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			_ = tx.Rollback(ctx)

			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		_ = tx.Rollback(ctx)

		return nil, fmt.Errorf("error iterating claimed records: %w", err)
	}

	return &Batch{
		tx:      tx,
		records: records,
	}, nil
}

// ListTenants returns the distinct tenants with at least one eligible record.
func (r *RecordRepository) ListTenants(ctx context.Context) ([]string, error) {
	query, args, err := sq.Select("DISTINCT tenant_id").
		From(table).
		Where(eligible(time.Now())).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build tenant query: %w", err)
	}

	rows, err := r.client.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var tenant string
		if err := rows.Scan(&tenant); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenants: %w", err)
	}

	return tenants, nil
}

// PendingCount returns how many records still await delivery for a tenant.
func (r *RecordRepository) PendingCount(ctx context.Context, tenantID string) (int, error) {
	query, args, err := sq.Select("COUNT(*)").
		From(table).
		Where(sq.Eq{"tenant_id": tenantID}).
		Where(sq.Eq{"status": []record.Status{record.StatusNew, record.StatusFailed}}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build pending count query: %w", err)
	}

	var count int
	if err := r.client.Pool().QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending records: %w", err)
	}

	return count, nil
}

// scanRecord maps one row onto the domain record.
func scanRecord(rows pgx.Rows) (record.Record, error) {
	var (
		rec           record.Record
		payload       []byte
		metadata      []byte
		routingConfig []byte
		errorMessage  *string
	)

	err := rows.Scan(
		&rec.ID,
		&rec.TenantID,
		&rec.AggregateType,
		&rec.AggregateID,
		&rec.Topic,
		&rec.OccurredAt,
		&payload,
		&metadata,
		&rec.RoutingKey,
		&routingConfig,
		&rec.RoutingVersion,
		&rec.Status,
		&rec.RetryCount,
		&rec.RetryAfter,
		&errorMessage,
		&rec.PublishedAt,
	)
	if err != nil {
		return record.Record{}, fmt.Errorf("failed to scan outbox record: %w", err)
	}

	rec.Payload = payload
	rec.RoutingConfig = routingConfig
	if errorMessage != nil {
		rec.ErrorMessage = *errorMessage
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return record.Record{}, fmt.Errorf("failed to decode record metadata: %w", err)
		}
	}

	return rec, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}

	return s
}

var _ irecordrepo.IRecordRepository = (*RecordRepository)(nil)

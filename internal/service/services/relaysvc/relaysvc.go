package relaysvc

import (
	"context"
	"time"

	"github.com/spf13/viper"

	"github.com/halcyonlabs/relay/internal/dal/interfaces/irecordrepo"
	pgclient "github.com/halcyonlabs/relay/internal/dal/postgres"
	recordrepo "github.com/halcyonlabs/relay/internal/dal/repositories/record/postgres"
	"github.com/halcyonlabs/relay/internal/service/backoff"
	"github.com/halcyonlabs/relay/internal/service/dispatch"
	"github.com/halcyonlabs/relay/internal/service/models/record"
	"github.com/halcyonlabs/relay/internal/service/models/routing"
	"github.com/halcyonlabs/relay/internal/transport/publisher"
	"github.com/halcyonlabs/relay/internal/worker/projector"
)

// RelayService owns the outbox pipeline: the record store, routing engine,
// dispatcher and projector. Producers enqueue through it; the application
// runs its projector loop.
type RelayService struct {
	pgClient  *pgclient.Client
	repo      irecordrepo.IRecordRepository
	publisher publisher.Publisher
	projector *projector.Projector
}

// option is a function that configures the RelayService.
type option func(*RelayService)

// MustNewRelayService creates a new RelayService from viper configuration.
func MustNewRelayService(opts ...option) *RelayService {
	s := &RelayService{}
	for _, opt := range opts {
		opt(s)
	}

	if s.repo == nil {
		s.repo = recordrepo.NewRecordRepository(s.pgClient)
	}

	strategy, err := dispatch.ParseStrategy(stringOrDefault("dispatch.strategy", string(dispatch.StrategyAllOrNothing)))
	if err != nil {
		panic(err)
	}

	engine := routing.NewEngine()
	dispatcher := dispatch.NewDispatcher(s.publisher, strategy)
	policy := policyFromConfig()

	s.projector = projector.NewProjector(
		s.repo,
		engine,
		dispatcher,
		policy,
		s.tenantSource(),
		projector.SystemClock{},
		projectorConfig(),
	)

	return s
}

// WithPostgresClient sets the Postgres client for the RelayService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *pgclient.Client) option {
	return func(s *RelayService) {
		s.pgClient = pgClient
	}
}

// WithPublisher sets the publish port implementation.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPublisher(pub publisher.Publisher) option {
	return func(s *RelayService) {
		s.publisher = pub
	}
}

// WithRepository overrides the record repository, used by tests.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithRepository(repo irecordrepo.IRecordRepository) option {
	return func(s *RelayService) {
		s.repo = repo
	}
}

// Run drives the projector until ctx is cancelled.
func (s *RelayService) Run(ctx context.Context) {
	s.projector.Run(ctx)
}

// Enqueue inserts a NEW outbox record through the given executor. Callers
// pass their open transaction so the record commits atomically with the
// business mutation that produced it.
func (s *RelayService) Enqueue(ctx context.Context, exec irecordrepo.Executor, rec *record.Record) error {
	return s.repo.Insert(ctx, exec, rec)
}

// PendingCount reports how many records await delivery for a tenant.
func (s *RelayService) PendingCount(ctx context.Context, tenantID string) (int, error) {
	return s.repo.PendingCount(ctx, tenantID)
}

// tenantSource picks static tenants when configured, store discovery otherwise.
func (s *RelayService) tenantSource() projector.TenantSource {
	if tenants := viper.GetStringSlice("projector.tenants"); len(tenants) > 0 {
		return projector.StaticTenants(tenants)
	}
	if viper.GetBool("projector.discover_tenants") {
		return projector.NewStoreDiscovery(s.repo)
	}

	return projector.StaticTenants{stringOrDefault("projector.default_tenant_id", record.DefaultTenantID)}
}

func projectorConfig() projector.Config {
	return projector.Config{
		BatchSize:              viper.GetInt("projector.batch_size"),
		MaxConcurrentWorkers:   viper.GetInt("projector.max_concurrent_workers"),
		SleepBusy:              viper.GetDuration("projector.sleep_busy"),
		SleepIdle:              viper.GetDuration("projector.sleep_idle"),
		SleepIdleMax:           viper.GetDuration("projector.sleep_idle_max"),
		ErrorRetryDelay:        viper.GetDuration("projector.error_retry_delay"),
		TenantRefreshInterval:  viper.GetDuration("projector.tenant_refresh_interval"),
		ZeroMatchIsError:       viper.GetBool("routing.zero_match_is_error"),
		PermanentBypassesRetry: boolOrDefault("dispatch.permanent_bypasses_retry", true),
	}
}

func policyFromConfig() backoff.Policy {
	policy := backoff.DefaultPolicy()
	if base := viper.GetInt("retry.backoff_base_seconds"); base > 0 {
		policy.Base = time.Duration(base) * time.Second
	}
	if mult := viper.GetFloat64("retry.backoff_multiplier"); mult > 0 {
		policy.Multiplier = mult
	}
	if exp := viper.GetInt("retry.backoff_max_exponent"); exp > 0 {
		policy.MaxExponent = exp
	}
	if attempts := viper.GetInt("retry.max_retry_attempts"); attempts > 0 {
		policy.MaxAttempts = attempts
	}

	return policy
}

func stringOrDefault(key, fallback string) string {
	if val := viper.GetString(key); val != "" {
		return val
	}

	return fallback
}

func boolOrDefault(key string, fallback bool) bool {
	if !viper.IsSet(key) {
		return fallback
	}

	return viper.GetBool(key)
}

package projector

import (
	"context"

	"github.com/halcyonlabs/relay/internal/dal/interfaces/irecordrepo"
)

// TenantSource yields the set of tenants a projector instance should service.
type TenantSource interface {
	Tenants(ctx context.Context) ([]string, error)
}

// StaticTenants services a fixed, configured tenant set.
type StaticTenants []string

// Tenants returns the configured set.
func (s StaticTenants) Tenants(context.Context) ([]string, error) {
	return s, nil
}

// StoreDiscovery services every tenant that currently has eligible records.
type StoreDiscovery struct {
	repo irecordrepo.IRecordRepository
}

// NewStoreDiscovery creates a discovery source backed by the record store.
func NewStoreDiscovery(repo irecordrepo.IRecordRepository) *StoreDiscovery {
	return &StoreDiscovery{
		repo: repo,
	}
}

// Tenants lists tenants with pending work.
func (d *StoreDiscovery) Tenants(ctx context.Context) ([]string, error) {
	return d.repo.ListTenants(ctx)
}

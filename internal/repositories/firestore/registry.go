package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/partner-scorecard/api/internal/platform/firestore"
	"github.com/partner-scorecard/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind repositories.Registry.
type Registry struct {
	provider    *pfirestore.Provider
	partners    *PartnerRepository
	evaluations *EvaluationRepository
	accounts    *AccountRepository
	criteria    *CriteriaRepository
	counters    *CounterRepository
	health      repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs every repository on the shared provider. The health repository is
// assembled by the caller because its probes span more than Firestore.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	reg := &Registry{provider: provider, health: health}

	var err error
	if reg.partners, err = NewPartnerRepository(provider); err != nil {
		return nil, fmt.Errorf("partners: %w", err)
	}
	if reg.evaluations, err = NewEvaluationRepository(provider); err != nil {
		return nil, fmt.Errorf("evaluations: %w", err)
	}
	if reg.accounts, err = NewAccountRepository(provider); err != nil {
		return nil, fmt.Errorf("accounts: %w", err)
	}
	if reg.criteria, err = NewCriteriaRepository(provider); err != nil {
		return nil, fmt.Errorf("criteria: %w", err)
	}
	if reg.counters, err = NewCounterRepository(provider); err != nil {
		return nil, fmt.Errorf("counters: %w", err)
	}
	return reg, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) Partners() repositories.PartnerRepository       { return r.partners }
func (r *Registry) Evaluations() repositories.EvaluationRepository { return r.evaluations }
func (r *Registry) Accounts() repositories.AccountRepository       { return r.accounts }
func (r *Registry) Criteria() repositories.CriteriaRepository      { return r.criteria }
func (r *Registry) Counters() repositories.CounterRepository       { return r.counters }
func (r *Registry) Health() repositories.HealthRepository          { return r.health }

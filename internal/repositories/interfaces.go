package repositories

import (
	"context"
	"time"

	domain "github.com/partner-scorecard/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Partners() PartnerRepository
	Evaluations() EvaluationRepository
	Accounts() AccountRepository
	Criteria() CriteriaRepository
	Counters() CounterRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// PartnerRepository persists partner master data.
type PartnerRepository interface {
	Insert(ctx context.Context, partner domain.Partner) error
	Update(ctx context.Context, partner domain.Partner) error
	FindByID(ctx context.Context, partnerID string) (domain.Partner, error)
	List(ctx context.Context, filter PartnerListFilter) (domain.CursorPage[domain.Partner], error)
	ListAll(ctx context.Context, archived bool) ([]domain.Partner, error)
}

// EvaluationRepository stores the append-only evaluation history. Insert rejects an existing
// (partnerId, version) pair with a conflict.
type EvaluationRepository interface {
	Insert(ctx context.Context, evaluation domain.Evaluation) error
	FindByID(ctx context.Context, evaluationID string) (domain.Evaluation, error)
	ListByPartner(ctx context.Context, partnerID string) ([]domain.Evaluation, error)
	ListAll(ctx context.Context) ([]domain.Evaluation, error)
}

// AccountMutation edits an account inside a transaction. Returning an error aborts the write.
type AccountMutation func(account *domain.Account) error

// AccountRepository persists user accounts keyed by lower-cased email.
type AccountRepository interface {
	Insert(ctx context.Context, account domain.Account) error
	FindByEmail(ctx context.Context, email string) (domain.Account, error)
	List(ctx context.Context, filter AccountListFilter) ([]domain.Account, error)
	Mutate(ctx context.Context, email string, mutate AccountMutation) (domain.Account, error)
	TouchLogin(ctx context.Context, email string, at time.Time) error
	Delete(ctx context.Context, email string) error
}

// CriteriaRepository persists the admin-maintained copy of the question catalog.
type CriteriaRepository interface {
	List(ctx context.Context) ([]domain.Criterion, error)
	FindByID(ctx context.Context, criterionID string) (domain.Criterion, error)
	Insert(ctx context.Context, criterion domain.Criterion) error
	Update(ctx context.Context, criterion domain.Criterion) error
	Delete(ctx context.Context, criterionID string) error
	// SeedIfEmpty writes all criteria atomically when the collection holds none and reports how many
	// were written.
	SeedIfEmpty(ctx context.Context, criteria []domain.Criterion) (int, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	// Next returns max(current, floor) + 1 and stores it. A missing counter starts from floor.
	Next(ctx context.Context, counterID string, floor int64) (int64, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// PartnerListFilter selects a page of partners ordered newest first.
type PartnerListFilter struct {
	Archived   bool
	Pagination domain.Pagination
}

// AccountListFilter narrows the account listing. An empty Status lists every account.
type AccountListFilter struct {
	Status domain.AccountStatus
}

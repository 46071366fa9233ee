package di

import (
	"context"
	"errors"
	"testing"

	domain "github.com/partner-scorecard/api/internal/domain"
	"github.com/partner-scorecard/api/internal/platform/config"
	"github.com/partner-scorecard/api/internal/repositories"
)

type repoError struct{ notFound bool }

func (e repoError) Error() string       { return "repository error" }
func (e repoError) IsNotFound() bool    { return e.notFound }
func (e repoError) IsConflict() bool    { return false }
func (e repoError) IsUnavailable() bool { return !e.notFound }

type fakeAccounts struct {
	repositories.AccountRepository
	accounts map[string]domain.Account
	err      error
}

func (f fakeAccounts) FindByEmail(_ context.Context, email string) (domain.Account, error) {
	if f.err != nil {
		return domain.Account{}, f.err
	}
	account, ok := f.accounts[email]
	if !ok {
		return domain.Account{}, repoError{notFound: true}
	}
	return account, nil
}

type fakeRegistry struct {
	accounts repositories.AccountRepository
}

func (fakeRegistry) Close(context.Context) error { return nil }

func (fakeRegistry) Partners() repositories.PartnerRepository {
	return struct{ repositories.PartnerRepository }{}
}

func (fakeRegistry) Evaluations() repositories.EvaluationRepository {
	return struct{ repositories.EvaluationRepository }{}
}

func (r fakeRegistry) Accounts() repositories.AccountRepository { return r.accounts }

func (fakeRegistry) Criteria() repositories.CriteriaRepository {
	return struct{ repositories.CriteriaRepository }{}
}

func (fakeRegistry) Counters() repositories.CounterRepository {
	return struct{ repositories.CounterRepository }{}
}

func (fakeRegistry) Health() repositories.HealthRepository { return nil }

func TestNewContainerRequiresRegistry(t *testing.T) {
	if _, err := NewContainer(config.Config{}, nil, Infrastructure{}); err == nil {
		t.Fatalf("expected error without registry")
	}
}

func TestNewContainerBuildsServices(t *testing.T) {
	c, err := NewContainer(config.Config{}, fakeRegistry{accounts: fakeAccounts{}}, Infrastructure{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc := c.Services
	if svc.Partners == nil || svc.Evaluations == nil || svc.Accounts == nil || svc.Criteria == nil || svc.Exports == nil || svc.Counters == nil {
		t.Fatalf("expected core services wired, got %+v", svc)
	}
	if svc.System != nil {
		t.Fatalf("expected system service skipped without a health repository")
	}
}

func TestContainerAccountResolver(t *testing.T) {
	accounts := fakeAccounts{accounts: map[string]domain.Account{
		"a@example.com": {Email: "a@example.com", Status: domain.AccountStatusApproved},
	}}
	c, err := NewContainer(config.Config{}, fakeRegistry{accounts: accounts}, Infrastructure{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resolver := c.AccountResolver()

	account, err := resolver.ResolveAccount(context.Background(), "a@example.com")
	if err != nil || account == nil || account.Status != domain.AccountStatusApproved {
		t.Fatalf("expected approved account, got %+v (%v)", account, err)
	}

	account, err = resolver.ResolveAccount(context.Background(), "new@example.com")
	if err != nil || account != nil {
		t.Fatalf("expected unknown email to resolve to nil, got %+v (%v)", account, err)
	}

	accounts.err = repoError{}
	c, _ = NewContainer(config.Config{}, fakeRegistry{accounts: accounts}, Infrastructure{})
	if _, err := c.AccountResolver().ResolveAccount(context.Background(), "a@example.com"); !errors.As(err, new(repoError)) {
		t.Fatalf("expected repository failure surfaced, got %v", err)
	}
}

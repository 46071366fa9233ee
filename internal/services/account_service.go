package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	domain "github.com/partner-scorecard/api/internal/domain"
	"github.com/partner-scorecard/api/internal/platform/requestctx"
	"github.com/partner-scorecard/api/internal/platform/textutil"
	"github.com/partner-scorecard/api/internal/repositories"
)

const (
	maxDisplayNameLength = 100
	maxRejectionLength   = 500
	bootstrapActor       = "bootstrap"
)

var (
	// ErrAccountNotFound indicates no account exists for the email.
	ErrAccountNotFound = errors.New("account: not found")
	// ErrAccountInvalid indicates the request failed validation.
	ErrAccountInvalid = errors.New("account: invalid input")
	// ErrAccountExists indicates sign-up was attempted for an account that is no longer pending.
	ErrAccountExists = errors.New("account: already registered")
	// ErrAccountTransition indicates the requested status change is not allowed.
	ErrAccountTransition = errors.New("account: invalid transition")
	// ErrAccountSelfModification indicates an administrator tried to delete or demote themselves.
	ErrAccountSelfModification = errors.New("account: self modification")
	// ErrAccountForbidden indicates the caller may not manage accounts.
	ErrAccountForbidden = errors.New("account: forbidden")
)

var accountRuleErrors = []error{
	ErrAccountInvalid,
	ErrAccountTransition,
	ErrAccountSelfModification,
	ErrAccountForbidden,
}

// SessionRevoker invalidates the sign-in sessions of an account.
type SessionRevoker interface {
	RevokeSessions(ctx context.Context, email string) error
}

// AccountServiceDeps bundles collaborators required to construct an account service.
type AccountServiceDeps struct {
	Accounts        repositories.AccountRepository
	Sessions        SessionRevoker
	BootstrapAdmins []string
	Clock           func() time.Time
}

type accountService struct {
	accounts  repositories.AccountRepository
	sessions  SessionRevoker
	bootstrap map[string]struct{}
	clock     func() time.Time
}

var _ AccountService = (*accountService)(nil)

// NewAccountService wires the account repository and session revocation.
func NewAccountService(deps AccountServiceDeps) (AccountService, error) {
	if deps.Accounts == nil {
		return nil, errors.New("account service: account repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	bootstrap := make(map[string]struct{}, len(deps.BootstrapAdmins))
	for _, email := range deps.BootstrapAdmins {
		if normalized := normalizeAccountEmail(email); normalized != "" {
			bootstrap[normalized] = struct{}{}
		}
	}
	return &accountService{
		accounts:  deps.Accounts,
		sessions:  deps.Sessions,
		bootstrap: bootstrap,
		clock:     func() time.Time { return clock().UTC() },
	}, nil
}

// SignUp creates a pending account for the caller. Repeating the call for a pending account
// returns it unchanged. Bootstrap administrators are approved immediately.
func (s *accountService) SignUp(ctx context.Context, cmd SignUpCommand) (Account, error) {
	email := normalizeAccountEmail(cmd.Email)
	if email == "" {
		return Account{}, fmt.Errorf("%w: email is required", ErrAccountInvalid)
	}
	displayName := textutil.SingleLine(cmd.DisplayName)
	if utf8.RuneCountInString(displayName) > maxDisplayNameLength {
		return Account{}, fmt.Errorf("%w: display name exceeds %d characters", ErrAccountInvalid, maxDisplayNameLength)
	}

	existing, err := s.accounts.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return s.resolveExistingSignUp(existing)
	case !isRepositoryNotFound(err):
		return Account{}, mapRepositoryError(err, nil, nil)
	}

	now := s.clock()
	account := Account{
		Email:       email,
		DisplayName: displayName,
		Role:        domain.RoleUser,
		Status:      domain.AccountStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, ok := s.bootstrap[email]; ok {
		account.Role = domain.RoleAdmin
		account.Status = domain.AccountStatusApproved
		account.ApprovedBy = bootstrapActor
		account.ApprovedAt = &now
	}

	if err := s.accounts.Insert(ctx, account); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			existing, findErr := s.accounts.FindByEmail(ctx, email)
			if findErr != nil {
				return Account{}, mapRepositoryError(findErr, ErrAccountNotFound, nil)
			}
			return s.resolveExistingSignUp(existing)
		}
		return Account{}, mapRepositoryError(err, nil, nil)
	}
	return account, nil
}

func (s *accountService) resolveExistingSignUp(existing Account) (Account, error) {
	if existing.Status == domain.AccountStatusPending {
		return existing, nil
	}
	if _, ok := s.bootstrap[existing.Email]; ok && existing.Status == domain.AccountStatusApproved {
		return existing, nil
	}
	return Account{}, fmt.Errorf("%w: account is %s", ErrAccountExists, existing.Status)
}

// Me returns the caller's account and records the sign-in time. A failed login stamp is logged only.
func (s *accountService) Me(ctx context.Context, email string) (Account, error) {
	email = normalizeAccountEmail(email)
	if email == "" {
		return Account{}, ErrAccountNotFound
	}
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return Account{}, mapRepositoryError(err, ErrAccountNotFound, nil)
	}
	now := s.clock()
	if err := s.accounts.TouchLogin(ctx, email, now); err != nil {
		requestctx.Logger(ctx).Warn("record last login failed", zap.Error(err))
	} else {
		account.LastLoginAt = &now
	}
	return account, nil
}

func (s *accountService) ListAccounts(ctx context.Context, status domain.AccountStatus) ([]Account, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrAccountInvalid, status)
	}
	accounts, err := s.accounts.List(ctx, repositories.AccountListFilter{Status: status})
	if err != nil {
		return nil, mapRepositoryError(err, nil, nil)
	}
	return accounts, nil
}

func (s *accountService) Approve(ctx context.Context, cmd ApproveAccountCommand) (Account, error) {
	if err := requireAccountManager(cmd.Actor); err != nil {
		return Account{}, err
	}
	role := domain.RoleUser
	if strings.TrimSpace(cmd.Role) != "" {
		parsed, ok := domain.ParseRole(cmd.Role)
		if !ok {
			return Account{}, fmt.Errorf("%w: unknown role %q", ErrAccountInvalid, cmd.Role)
		}
		role = parsed
	}

	return s.mutate(ctx, cmd.Email, func(account *domain.Account) error {
		if err := checkTransition(account.Status, domain.AccountStatusApproved); err != nil {
			return err
		}
		now := s.clock()
		account.Status = domain.AccountStatusApproved
		account.Role = role
		account.ApprovedBy = cmd.Actor.Email
		account.ApprovedAt = &now
		account.RejectedBy = ""
		account.RejectedAt = nil
		account.RejectionReason = ""
		account.UpdatedAt = now
		return nil
	})
}

func (s *accountService) Reject(ctx context.Context, cmd RejectAccountCommand) (Account, error) {
	if err := requireAccountManager(cmd.Actor); err != nil {
		return Account{}, err
	}
	if isSelf(cmd.Actor, cmd.Email) {
		return Account{}, ErrAccountSelfModification
	}
	reason := textutil.PlainText(cmd.Reason)
	if utf8.RuneCountInString(reason) > maxRejectionLength {
		return Account{}, fmt.Errorf("%w: reason exceeds %d characters", ErrAccountInvalid, maxRejectionLength)
	}

	account, err := s.mutate(ctx, cmd.Email, func(account *domain.Account) error {
		if err := checkTransition(account.Status, domain.AccountStatusRejected); err != nil {
			return err
		}
		now := s.clock()
		account.Status = domain.AccountStatusRejected
		account.RejectedBy = cmd.Actor.Email
		account.RejectedAt = &now
		account.RejectionReason = reason
		account.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.revoke(ctx, account.Email)
	return account, nil
}

func (s *accountService) ChangeRole(ctx context.Context, cmd ChangeRoleCommand) (Account, error) {
	if err := requireAccountManager(cmd.Actor); err != nil {
		return Account{}, err
	}
	role, ok := domain.ParseRole(cmd.Role)
	if !ok {
		return Account{}, fmt.Errorf("%w: unknown role %q", ErrAccountInvalid, cmd.Role)
	}
	if isSelf(cmd.Actor, cmd.Email) && role != domain.RoleAdmin {
		return Account{}, ErrAccountSelfModification
	}

	return s.mutate(ctx, cmd.Email, func(account *domain.Account) error {
		account.Role = role
		account.UpdatedAt = s.clock()
		return nil
	})
}

func (s *accountService) SoftDelete(ctx context.Context, cmd DeleteAccountCommand) (Account, error) {
	if err := requireAccountManager(cmd.Actor); err != nil {
		return Account{}, err
	}
	if isSelf(cmd.Actor, cmd.Email) {
		return Account{}, ErrAccountSelfModification
	}

	account, err := s.mutate(ctx, cmd.Email, func(account *domain.Account) error {
		if err := checkTransition(account.Status, domain.AccountStatusDeleted); err != nil {
			return err
		}
		now := s.clock()
		account.Status = domain.AccountStatusDeleted
		account.DeletedBy = cmd.Actor.Email
		account.DeletedAt = &now
		account.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.revoke(ctx, account.Email)
	return account, nil
}

func (s *accountService) PermanentDelete(ctx context.Context, cmd DeleteAccountCommand) error {
	if err := requireAccountManager(cmd.Actor); err != nil {
		return err
	}
	if isSelf(cmd.Actor, cmd.Email) {
		return ErrAccountSelfModification
	}
	email := normalizeAccountEmail(cmd.Email)
	if email == "" {
		return ErrAccountNotFound
	}
	if _, err := s.accounts.FindByEmail(ctx, email); err != nil {
		return mapRepositoryError(err, ErrAccountNotFound, nil)
	}
	if err := s.accounts.Delete(ctx, email); err != nil {
		return mapRepositoryError(err, ErrAccountNotFound, nil)
	}
	s.revoke(ctx, email)
	return nil
}

func (s *accountService) mutate(ctx context.Context, email string, fn repositories.AccountMutation) (Account, error) {
	email = normalizeAccountEmail(email)
	if email == "" {
		return Account{}, ErrAccountNotFound
	}
	account, err := s.accounts.Mutate(ctx, email, fn)
	if err != nil {
		for _, rule := range accountRuleErrors {
			if errors.Is(err, rule) {
				return Account{}, err
			}
		}
		return Account{}, mapRepositoryError(err, ErrAccountNotFound, nil)
	}
	return account, nil
}

func (s *accountService) revoke(ctx context.Context, email string) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.RevokeSessions(ctx, email); err != nil {
		requestctx.Logger(ctx).Warn("revoke sessions failed", zap.Error(err))
	}
}

// accountTransitions lists the allowed status changes. Re-approval of a rejected account is allowed.
var accountTransitions = map[domain.AccountStatus][]domain.AccountStatus{
	domain.AccountStatusPending:  {domain.AccountStatusApproved, domain.AccountStatusRejected, domain.AccountStatusDeleted},
	domain.AccountStatusRejected: {domain.AccountStatusApproved, domain.AccountStatusDeleted},
	domain.AccountStatusApproved: {domain.AccountStatusDeleted},
}

func checkTransition(from, to domain.AccountStatus) error {
	for _, allowed := range accountTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrAccountTransition, from, to)
}

func requireAccountManager(actor Caller) error {
	if !actor.Permissions().CanManageUsers {
		return ErrAccountForbidden
	}
	return nil
}

func isSelf(actor Caller, email string) bool {
	return normalizeAccountEmail(actor.Email) == normalizeAccountEmail(email)
}

func normalizeAccountEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

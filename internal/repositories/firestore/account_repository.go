package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/partner-scorecard/api/internal/domain"
	pfirestore "github.com/partner-scorecard/api/internal/platform/firestore"
	"github.com/partner-scorecard/api/internal/repositories"
)

const accountCollection = "users"

// AccountRepository persists accounts keyed by lower-cased email.
type AccountRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.Collection[accountDocument]
}

var _ repositories.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository constructs a Firestore-backed account repository.
func NewAccountRepository(provider *pfirestore.Provider) (*AccountRepository, error) {
	if provider == nil {
		return nil, errors.New("account repository requires firestore provider")
	}
	return &AccountRepository{
		provider: provider,
		base:     pfirestore.NewCollection[accountDocument](provider, accountCollection, nil, nil),
	}, nil
}

// Insert creates the account. An account with the same email is a conflict.
func (r *AccountRepository) Insert(ctx context.Context, account domain.Account) error {
	key := accountKey(account.Email)
	if key == "" {
		return errors.New("account repository: email is required")
	}
	account.Email = key
	return r.base.Create(ctx, key, fromDomainAccount(account))
}

// FindByEmail loads an account.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (domain.Account, error) {
	doc, err := r.base.Get(ctx, accountKey(email))
	if err != nil {
		return domain.Account{}, err
	}
	return toDomainAccount(doc.ID, doc.Data), nil
}

// List returns accounts newest first, optionally restricted to one status.
func (r *AccountRepository) List(ctx context.Context, filter repositories.AccountListFilter) ([]domain.Account, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Status != "" {
			q = q.Where("status", "==", string(filter.Status))
		}
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Account, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDomainAccount(doc.ID, doc.Data))
	}
	return out, nil
}

// Mutate reads the account and writes back the result of mutate inside one transaction, so
// concurrent status changes cannot overwrite each other.
func (r *AccountRepository) Mutate(ctx context.Context, email string, mutate repositories.AccountMutation) (domain.Account, error) {
	key := accountKey(email)
	if key == "" {
		return domain.Account{}, errors.New("account repository: email is required")
	}
	if mutate == nil {
		return domain.Account{}, errors.New("account repository: mutation is required")
	}
	ref, err := r.base.Doc(ctx, key)
	if err != nil {
		return domain.Account{}, err
	}

	var result domain.Account
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		doc, err := r.base.Decode(snap)
		if err != nil {
			return err
		}
		account := toDomainAccount(doc.ID, doc.Data)
		if err := mutate(&account); err != nil {
			return err
		}
		account.Email = key
		result = account
		return tx.Set(ref, fromDomainAccount(account))
	})
	if err != nil {
		return domain.Account{}, err
	}
	return result, nil
}

// TouchLogin records the time of the caller's latest sign-in.
func (r *AccountRepository) TouchLogin(ctx context.Context, email string, at time.Time) error {
	return r.base.Update(ctx, accountKey(email), []firestore.Update{
		{Path: "lastLoginAt", Value: at.UTC()},
	}, firestore.Exists)
}

// Delete removes the account document permanently.
func (r *AccountRepository) Delete(ctx context.Context, email string) error {
	key := accountKey(email)
	if key == "" {
		return errors.New("account repository: email is required")
	}
	return r.base.Delete(ctx, key)
}

func accountKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type accountDocument struct {
	Email           string     `firestore:"email"`
	DisplayName     string     `firestore:"displayName,omitempty"`
	Role            string     `firestore:"role"`
	Status          string     `firestore:"status"`
	ApprovedBy      string     `firestore:"approvedBy,omitempty"`
	ApprovedAt      *time.Time `firestore:"approvedAt,omitempty"`
	RejectedBy      string     `firestore:"rejectedBy,omitempty"`
	RejectedAt      *time.Time `firestore:"rejectedAt,omitempty"`
	RejectionReason string     `firestore:"rejectionReason,omitempty"`
	DeletedBy       string     `firestore:"deletedBy,omitempty"`
	DeletedAt       *time.Time `firestore:"deletedAt,omitempty"`
	LastLoginAt     *time.Time `firestore:"lastLoginAt,omitempty"`
	CreatedAt       time.Time  `firestore:"createdAt"`
	UpdatedAt       time.Time  `firestore:"updatedAt"`
}

func fromDomainAccount(a domain.Account) accountDocument {
	return accountDocument{
		Email:           a.Email,
		DisplayName:     a.DisplayName,
		Role:            string(a.Role),
		Status:          string(a.Status),
		ApprovedBy:      a.ApprovedBy,
		ApprovedAt:      utcPtr(a.ApprovedAt),
		RejectedBy:      a.RejectedBy,
		RejectedAt:      utcPtr(a.RejectedAt),
		RejectionReason: a.RejectionReason,
		DeletedBy:       a.DeletedBy,
		DeletedAt:       utcPtr(a.DeletedAt),
		LastLoginAt:     utcPtr(a.LastLoginAt),
		CreatedAt:       a.CreatedAt.UTC(),
		UpdatedAt:       a.UpdatedAt.UTC(),
	}
}

func toDomainAccount(id string, doc accountDocument) domain.Account {
	email := doc.Email
	if email == "" {
		email = id
	}
	return domain.Account{
		Email:           email,
		DisplayName:     doc.DisplayName,
		Role:            domain.Role(doc.Role),
		Status:          domain.AccountStatus(doc.Status),
		ApprovedBy:      doc.ApprovedBy,
		ApprovedAt:      doc.ApprovedAt,
		RejectedBy:      doc.RejectedBy,
		RejectedAt:      doc.RejectedAt,
		RejectionReason: doc.RejectionReason,
		DeletedBy:       doc.DeletedBy,
		DeletedAt:       doc.DeletedAt,
		LastLoginAt:     doc.LastLoginAt,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}

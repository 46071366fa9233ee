package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/partner-scorecard/api/internal/domain"
	pfirestore "github.com/partner-scorecard/api/internal/platform/firestore"
	"github.com/partner-scorecard/api/internal/platform/pagination"
	"github.com/partner-scorecard/api/internal/repositories"
)

const partnerCollection = "partners"

// PartnerRepository persists partners in Firestore.
type PartnerRepository struct {
	base *pfirestore.Collection[partnerDocument]
}

var _ repositories.PartnerRepository = (*PartnerRepository)(nil)

// NewPartnerRepository constructs a Firestore-backed partner repository.
func NewPartnerRepository(provider *pfirestore.Provider) (*PartnerRepository, error) {
	if provider == nil {
		return nil, errors.New("partner repository requires firestore provider")
	}
	return &PartnerRepository{
		base: pfirestore.NewCollection[partnerDocument](provider, partnerCollection, nil, nil),
	}, nil
}

// Insert creates the partner document. An existing id is a conflict.
func (r *PartnerRepository) Insert(ctx context.Context, partner domain.Partner) error {
	if strings.TrimSpace(partner.ID) == "" {
		return errors.New("partner repository: id is required")
	}
	return r.base.Create(ctx, partner.ID, fromDomainPartner(partner))
}

// Update overwrites the mutable fields of an existing partner.
func (r *PartnerRepository) Update(ctx context.Context, partner domain.Partner) error {
	if strings.TrimSpace(partner.ID) == "" {
		return errors.New("partner repository: id is required")
	}
	doc := fromDomainPartner(partner)
	updates := []firestore.Update{
		{Path: "scope", Value: doc.Scope},
		{Path: "country", Value: doc.Country},
		{Path: "name", Value: doc.Name},
		{Path: "org", Value: doc.Org},
		{Path: "email", Value: optionalValue(doc.Email)},
		{Path: "phone", Value: optionalValue(doc.Phone)},
		{Path: "archived", Value: doc.Archived},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}
	return r.base.Update(ctx, partner.ID, updates, firestore.Exists)
}

// FindByID loads a partner.
func (r *PartnerRepository) FindByID(ctx context.Context, partnerID string) (domain.Partner, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(partnerID))
	if err != nil {
		return domain.Partner{}, err
	}
	return toDomainPartner(doc.ID, doc.Data), nil
}

// List returns one page of partners with the requested archive flag, newest first.
func (r *PartnerRepository) List(ctx context.Context, filter repositories.PartnerListFilter) (domain.CursorPage[domain.Partner], error) {
	limit := filter.Pagination.PageSize
	if limit <= 0 {
		limit = pagination.DefaultPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Partner]{}, fmt.Errorf("partner repository: %w", err)
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("archived", "==", filter.Archived).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(limit + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Partner]{}, err
	}

	nextToken := ""
	if len(docs) > limit {
		docs = docs[:limit]
		last := docs[len(docs)-1]
		nextToken, err = pagination.EncodeToken(pagination.Cursor{CreatedAt: last.Data.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Partner]{}, err
		}
	}

	items := make([]domain.Partner, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toDomainPartner(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.Partner]{Items: items, NextPageToken: nextToken}, nil
}

// ListAll returns every partner with the archive flag, newest first. Used by search and exports.
func (r *PartnerRepository) ListAll(ctx context.Context, archived bool) ([]domain.Partner, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("archived", "==", archived).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	items := make([]domain.Partner, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toDomainPartner(doc.ID, doc.Data))
	}
	return items, nil
}

type partnerDocument struct {
	Scope     string    `firestore:"scope"`
	Country   string    `firestore:"country"`
	Name      string    `firestore:"name"`
	Org       string    `firestore:"org"`
	Email     string    `firestore:"email,omitempty"`
	Phone     string    `firestore:"phone,omitempty"`
	Archived  bool      `firestore:"archived"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func fromDomainPartner(p domain.Partner) partnerDocument {
	return partnerDocument{
		Scope:     string(p.Scope),
		Country:   p.Country,
		Name:      p.Name,
		Org:       p.Org,
		Email:     strings.TrimSpace(p.Email),
		Phone:     strings.TrimSpace(p.Phone),
		Archived:  p.Archived,
		CreatedAt: p.CreatedAt.UTC(),
		UpdatedAt: p.UpdatedAt.UTC(),
	}
}

func toDomainPartner(id string, doc partnerDocument) domain.Partner {
	return domain.Partner{
		ID:        id,
		Scope:     domain.PartnerScope(doc.Scope),
		Country:   doc.Country,
		Name:      doc.Name,
		Org:       doc.Org,
		Email:     doc.Email,
		Phone:     doc.Phone,
		Archived:  doc.Archived,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

// optionalValue maps empty strings to a field delete so optional fields stay absent in storage.
func optionalValue(value string) any {
	if value == "" {
		return firestore.Delete
	}
	return value
}

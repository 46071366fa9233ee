package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/partner-scorecard/api/internal/domain"
	pfirestore "github.com/partner-scorecard/api/internal/platform/firestore"
	"github.com/partner-scorecard/api/internal/repositories"
)

const criteriaCollection = "evaluationCriteria"

// CriteriaRepository persists the editable criteria catalog.
type CriteriaRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.Collection[criterionDocument]
}

var _ repositories.CriteriaRepository = (*CriteriaRepository)(nil)

// NewCriteriaRepository constructs a Firestore-backed criteria repository.
func NewCriteriaRepository(provider *pfirestore.Provider) (*CriteriaRepository, error) {
	if provider == nil {
		return nil, errors.New("criteria repository requires firestore provider")
	}
	return &CriteriaRepository{
		provider: provider,
		base:     pfirestore.NewCollection[criterionDocument](provider, criteriaCollection, nil, nil),
	}, nil
}

// List returns every criterion ordered by scope then display order.
func (r *CriteriaRepository) List(ctx context.Context) ([]domain.Criterion, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("scope", firestore.Asc).OrderBy("order", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Criterion, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDomainCriterion(doc.ID, doc.Data))
	}
	return out, nil
}

// FindByID loads one criterion.
func (r *CriteriaRepository) FindByID(ctx context.Context, criterionID string) (domain.Criterion, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(criterionID))
	if err != nil {
		return domain.Criterion{}, err
	}
	return toDomainCriterion(doc.ID, doc.Data), nil
}

// Insert creates a criterion.
func (r *CriteriaRepository) Insert(ctx context.Context, criterion domain.Criterion) error {
	if strings.TrimSpace(criterion.ID) == "" {
		return errors.New("criteria repository: id is required")
	}
	return r.base.Create(ctx, criterion.ID, fromDomainCriterion(criterion))
}

// Update overwrites an existing criterion.
func (r *CriteriaRepository) Update(ctx context.Context, criterion domain.Criterion) error {
	doc := fromDomainCriterion(criterion)
	return r.base.Update(ctx, criterion.ID, []firestore.Update{
		{Path: "scope", Value: doc.Scope},
		{Path: "category", Value: doc.Category},
		{Path: "questionId", Value: doc.QuestionID},
		{Path: "text", Value: doc.Text},
		{Path: "order", Value: doc.Order},
		{Path: "updatedAt", Value: doc.UpdatedAt},
		{Path: "updatedBy", Value: doc.UpdatedBy},
	}, firestore.Exists)
}

// Delete removes a criterion. A missing document is reported as not found.
func (r *CriteriaRepository) Delete(ctx context.Context, criterionID string) error {
	ref, err := r.base.Doc(ctx, strings.TrimSpace(criterionID))
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("evaluationCriteria.delete", err)
	}
	return nil
}

// SeedIfEmpty writes the criteria in one transaction when the collection is empty.
func (r *CriteriaRepository) SeedIfEmpty(ctx context.Context, criteria []domain.Criterion) (int, error) {
	if len(criteria) == 0 {
		return 0, nil
	}
	coll, err := r.base.Ref(ctx)
	if err != nil {
		return 0, err
	}

	written := 0
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		written = 0
		iter := tx.Documents(coll.Limit(1))
		_, err := iter.Next()
		iter.Stop()
		if err == nil {
			return nil
		}
		if !errors.Is(err, iterator.Done) {
			return err
		}
		for _, criterion := range criteria {
			if strings.TrimSpace(criterion.ID) == "" {
				return errors.New("criteria repository: id is required")
			}
			if err := tx.Create(coll.Doc(criterion.ID), fromDomainCriterion(criterion)); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

type criterionDocument struct {
	Scope      string    `firestore:"scope"`
	Category   string    `firestore:"category"`
	QuestionID string    `firestore:"questionId"`
	Text       string    `firestore:"text"`
	Order      int       `firestore:"order"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
	UpdatedBy  string    `firestore:"updatedBy,omitempty"`
}

func fromDomainCriterion(c domain.Criterion) criterionDocument {
	return criterionDocument{
		Scope:      string(c.Scope),
		Category:   c.Category,
		QuestionID: c.QuestionID,
		Text:       c.Text,
		Order:      c.Order,
		UpdatedAt:  c.UpdatedAt.UTC(),
		UpdatedBy:  c.UpdatedBy,
	}
}

func toDomainCriterion(id string, doc criterionDocument) domain.Criterion {
	return domain.Criterion{
		ID:         id,
		Scope:      domain.CriterionScope(doc.Scope),
		Category:   doc.Category,
		QuestionID: doc.QuestionID,
		Text:       doc.Text,
		Order:      doc.Order,
		UpdatedAt:  doc.UpdatedAt,
		UpdatedBy:  doc.UpdatedBy,
	}
}

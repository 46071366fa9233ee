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

const evaluationCollection = "evaluations"

// EvaluationRepository persists the evaluation history. Documents are immutable once written.
type EvaluationRepository struct {
	base *pfirestore.Collection[evaluationDocument]
}

var _ repositories.EvaluationRepository = (*EvaluationRepository)(nil)

// NewEvaluationRepository constructs a Firestore-backed evaluation repository.
func NewEvaluationRepository(provider *pfirestore.Provider) (*EvaluationRepository, error) {
	if provider == nil {
		return nil, errors.New("evaluation repository requires firestore provider")
	}
	return &EvaluationRepository{
		base: pfirestore.NewCollection[evaluationDocument](provider, evaluationCollection, nil, nil),
	}, nil
}

// Insert creates the evaluation under its deterministic id, so a second write for the same
// partner and version fails with a conflict.
func (r *EvaluationRepository) Insert(ctx context.Context, evaluation domain.Evaluation) error {
	if strings.TrimSpace(evaluation.PartnerID) == "" || evaluation.Version <= 0 {
		return errors.New("evaluation repository: partner id and version are required")
	}
	id := domain.EvaluationID(evaluation.PartnerID, evaluation.Version)
	if evaluation.ID != "" && evaluation.ID != id {
		return errors.New("evaluation repository: id does not match partner and version")
	}
	return r.base.Create(ctx, id, fromDomainEvaluation(evaluation))
}

// FindByID loads one evaluation.
func (r *EvaluationRepository) FindByID(ctx context.Context, evaluationID string) (domain.Evaluation, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(evaluationID))
	if err != nil {
		return domain.Evaluation{}, err
	}
	return toDomainEvaluation(doc.ID, doc.Data), nil
}

// ListByPartner returns the partner's evaluations, highest version first.
func (r *EvaluationRepository) ListByPartner(ctx context.Context, partnerID string) ([]domain.Evaluation, error) {
	partnerID = strings.TrimSpace(partnerID)
	if partnerID == "" {
		return nil, errors.New("evaluation repository: partner id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("partnerId", "==", partnerID).OrderBy("version", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	return toDomainEvaluations(docs), nil
}

// ListAll returns every stored evaluation ordered by partner then version.
func (r *EvaluationRepository) ListAll(ctx context.Context) ([]domain.Evaluation, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("partnerId", firestore.Asc).OrderBy("version", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	return toDomainEvaluations(docs), nil
}

type evaluationDocument struct {
	PartnerID       string    `firestore:"partnerId"`
	Scope           string    `firestore:"scope"`
	Version         int       `firestore:"version"`
	AnswersCommon   []int     `firestore:"answersCommon"`
	AnswersOverseas []int     `firestore:"answersOverseas,omitempty"`
	TotalScore      float64   `firestore:"totalScore"`
	Rating          string    `firestore:"rating"`
	Note            string    `firestore:"note,omitempty"`
	CreatedAt       time.Time `firestore:"createdAt"`
	CreatedBy       string    `firestore:"createdBy"`
}

func fromDomainEvaluation(e domain.Evaluation) evaluationDocument {
	doc := evaluationDocument{
		PartnerID:     e.PartnerID,
		Scope:         string(e.Scope),
		Version:       e.Version,
		AnswersCommon: append([]int(nil), e.AnswersCommon...),
		TotalScore:    e.TotalScore,
		Rating:        string(e.Rating),
		Note:          e.Note,
		CreatedAt:     e.CreatedAt.UTC(),
		CreatedBy:     e.CreatedBy,
	}
	if e.Scope == domain.ScopeOverseas && len(e.AnswersOverseas) > 0 {
		doc.AnswersOverseas = append([]int(nil), e.AnswersOverseas...)
	}
	return doc
}

func toDomainEvaluation(id string, doc evaluationDocument) domain.Evaluation {
	return domain.Evaluation{
		ID:              id,
		PartnerID:       doc.PartnerID,
		Scope:           domain.PartnerScope(doc.Scope),
		Version:         doc.Version,
		AnswersCommon:   doc.AnswersCommon,
		AnswersOverseas: doc.AnswersOverseas,
		TotalScore:      doc.TotalScore,
		Rating:          domain.Rating(doc.Rating),
		Note:            doc.Note,
		CreatedAt:       doc.CreatedAt,
		CreatedBy:       doc.CreatedBy,
	}
}

func toDomainEvaluations(docs []pfirestore.Document[evaluationDocument]) []domain.Evaluation {
	out := make([]domain.Evaluation, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDomainEvaluation(doc.ID, doc.Data))
	}
	return out
}

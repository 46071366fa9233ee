package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	domain "github.com/partner-scorecard/api/internal/domain"
	"github.com/partner-scorecard/api/internal/platform/textutil"
	"github.com/partner-scorecard/api/internal/repositories"
)

const maxCriterionTextLength = 500

var (
	// ErrCriterionNotFound indicates the criterion does not exist.
	ErrCriterionNotFound = errors.New("criterion: not found")
	// ErrCriterionInvalid indicates the criterion failed validation.
	ErrCriterionInvalid = errors.New("criterion: invalid input")
	// ErrCriterionForbidden indicates the caller may not administer criteria.
	ErrCriterionForbidden = errors.New("criterion: forbidden")
)

// CriteriaServiceDeps bundles collaborators required to construct a criteria service.
type CriteriaServiceDeps struct {
	Criteria repositories.CriteriaRepository
	Clock    func() time.Time
	IDGen    func() string
}

type criteriaService struct {
	criteria repositories.CriteriaRepository
	clock    func() time.Time
	newID    func() string
}

var _ CriteriaService = (*criteriaService)(nil)

// NewCriteriaService wires the criteria repository.
func NewCriteriaService(deps CriteriaServiceDeps) (CriteriaService, error) {
	if deps.Criteria == nil {
		return nil, errors.New("criteria service: criteria repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &criteriaService{
		criteria: deps.Criteria,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
	}, nil
}

func (s *criteriaService) List(ctx context.Context) ([]Criterion, error) {
	criteria, err := s.criteria.List(ctx)
	if err != nil {
		return nil, mapRepositoryError(err, nil, nil)
	}
	return criteria, nil
}

func (s *criteriaService) Create(ctx context.Context, cmd UpsertCriterionCommand) (Criterion, error) {
	if !cmd.Actor.Permissions().CanViewAdmin {
		return Criterion{}, ErrCriterionForbidden
	}
	criterion, err := buildCriterion(cmd)
	if err != nil {
		return Criterion{}, err
	}
	criterion.ID = s.newID()
	criterion.UpdatedAt = s.clock()
	criterion.UpdatedBy = cmd.Actor.Email
	if err := s.criteria.Insert(ctx, criterion); err != nil {
		return Criterion{}, mapRepositoryError(err, nil, ErrCriterionInvalid)
	}
	return criterion, nil
}

func (s *criteriaService) Update(ctx context.Context, cmd UpsertCriterionCommand) (Criterion, error) {
	if !cmd.Actor.Permissions().CanViewAdmin {
		return Criterion{}, ErrCriterionForbidden
	}
	id := strings.TrimSpace(cmd.ID)
	if id == "" {
		return Criterion{}, ErrCriterionNotFound
	}
	if _, err := s.criteria.FindByID(ctx, id); err != nil {
		return Criterion{}, mapRepositoryError(err, ErrCriterionNotFound, nil)
	}
	criterion, err := buildCriterion(cmd)
	if err != nil {
		return Criterion{}, err
	}
	criterion.ID = id
	criterion.UpdatedAt = s.clock()
	criterion.UpdatedBy = cmd.Actor.Email
	if err := s.criteria.Update(ctx, criterion); err != nil {
		return Criterion{}, mapRepositoryError(err, ErrCriterionNotFound, nil)
	}
	return criterion, nil
}

func (s *criteriaService) Delete(ctx context.Context, criterionID string) error {
	criterionID = strings.TrimSpace(criterionID)
	if criterionID == "" {
		return ErrCriterionNotFound
	}
	if err := s.criteria.Delete(ctx, criterionID); err != nil {
		return mapRepositoryError(err, ErrCriterionNotFound, nil)
	}
	return nil
}

// Seed copies the built-in catalog into an empty collection and reports how many were written.
func (s *criteriaService) Seed(ctx context.Context, actor Caller) (int, error) {
	if !actor.Permissions().CanViewAdmin {
		return 0, ErrCriterionForbidden
	}
	now := s.clock()
	defaults := domain.DefaultCriteria()
	for i := range defaults {
		defaults[i].ID = s.newID()
		defaults[i].UpdatedAt = now
		defaults[i].UpdatedBy = actor.Email
	}
	written, err := s.criteria.SeedIfEmpty(ctx, defaults)
	if err != nil {
		return 0, mapRepositoryError(err, nil, nil)
	}
	return written, nil
}

func buildCriterion(cmd UpsertCriterionCommand) (Criterion, error) {
	scope := domain.CriterionScope(strings.ToLower(strings.TrimSpace(cmd.Scope)))
	if !scope.Valid() {
		return Criterion{}, fmt.Errorf("%w: scope must be common or overseas", ErrCriterionInvalid)
	}
	text := textutil.SingleLine(cmd.Text)
	if text == "" {
		return Criterion{}, fmt.Errorf("%w: text is required", ErrCriterionInvalid)
	}
	if utf8.RuneCountInString(text) > maxCriterionTextLength {
		return Criterion{}, fmt.Errorf("%w: text exceeds %d characters", ErrCriterionInvalid, maxCriterionTextLength)
	}
	if cmd.Order < 0 {
		return Criterion{}, fmt.Errorf("%w: order must not be negative", ErrCriterionInvalid)
	}
	return Criterion{
		Scope:      scope,
		Category:   textutil.SingleLine(cmd.Category),
		QuestionID: textutil.SingleLine(cmd.QuestionID),
		Text:       text,
		Order:      cmd.Order,
	}, nil
}

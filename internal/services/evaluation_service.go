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
	maxNoteLength       = 2000
	maxVersionAttempts  = 3
	eventPublishTimeout = 5 * time.Second
)

var (
	// ErrEvaluationNotFound indicates the evaluation does not exist for the partner.
	ErrEvaluationNotFound = errors.New("evaluation: not found")
	// ErrEvaluationInvalid indicates the answer set failed validation. The wrapped error is a
	// *domain.AnswerValidationError when per-question details are available.
	ErrEvaluationInvalid = errors.New("evaluation: invalid input")
	// ErrEvaluationForbidden indicates the caller may not evaluate partners.
	ErrEvaluationForbidden = errors.New("evaluation: forbidden")
	// ErrEvaluationPartnerArchived indicates the partner is in the trash.
	ErrEvaluationPartnerArchived = errors.New("evaluation: partner is archived")
	// ErrEvaluationVersionConflict indicates a version could not be allocated after retries.
	ErrEvaluationVersionConflict = errors.New("evaluation: version conflict")
)

// EvaluationRecorder receives metrics for persisted evaluations and backups.
type EvaluationRecorder interface {
	RecordSaved(ctx context.Context, scope, rating string, score float64)
	RecordBackup(ctx context.Context, trigger string)
}

// EvaluationServiceDeps bundles collaborators required to construct an evaluation service.
type EvaluationServiceDeps struct {
	Partners    repositories.PartnerRepository
	Evaluations repositories.EvaluationRepository
	Counters    CounterService
	Events      EventPublisher
	Metrics     EvaluationRecorder
	Clock       func() time.Time
}

type evaluationService struct {
	partners    repositories.PartnerRepository
	evaluations repositories.EvaluationRepository
	counters    CounterService
	events      EventPublisher
	metrics     EvaluationRecorder
	clock       func() time.Time
}

var _ EvaluationService = (*evaluationService)(nil)

// NewEvaluationService wires repositories, the version counter and event delivery.
func NewEvaluationService(deps EvaluationServiceDeps) (EvaluationService, error) {
	if deps.Partners == nil {
		return nil, errors.New("evaluation service: partner repository is required")
	}
	if deps.Evaluations == nil {
		return nil, errors.New("evaluation service: evaluation repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("evaluation service: counter service is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &evaluationService{
		partners:    deps.Partners,
		evaluations: deps.Evaluations,
		counters:    deps.Counters,
		events:      deps.Events,
		metrics:     deps.Metrics,
		clock:       func() time.Time { return clock().UTC() },
	}, nil
}

// Preview scores a partial answer set without persisting anything.
func (s *evaluationService) Preview(_ context.Context, cmd PreviewCommand) (ScorePreview, error) {
	scope, ok := domain.ParsePartnerScope(cmd.Scope)
	if !ok {
		return ScorePreview{}, fmt.Errorf("%w: scope must be domestic or overseas", ErrEvaluationInvalid)
	}
	if err := domain.CheckPreviewRange(cmd.AnswersCommon, cmd.AnswersOverseas); err != nil {
		return ScorePreview{}, fmt.Errorf("%w: %w", ErrEvaluationInvalid, err)
	}
	score := domain.PreviewScore(scope, cmd.AnswersCommon, cmd.AnswersOverseas)
	return ScorePreview{
		Scope:      scope,
		TotalScore: score,
		Rating:     domain.Classify(score),
		ItemCount:  len(domain.QuestionsFor(scope)),
	}, nil
}

func (s *evaluationService) SaveEvaluation(ctx context.Context, cmd SaveEvaluationCommand) (Evaluation, error) {
	if !cmd.Actor.Permissions().CanEvaluate {
		return Evaluation{}, ErrEvaluationForbidden
	}
	partner, err := s.loadPartner(ctx, cmd.PartnerID)
	if err != nil {
		return Evaluation{}, err
	}
	if partner.Archived {
		return Evaluation{}, ErrEvaluationPartnerArchived
	}

	scope := partner.Scope
	score, err := domain.ScoreForSave(scope, cmd.AnswersCommon, cmd.AnswersOverseas)
	if err != nil {
		return Evaluation{}, fmt.Errorf("%w: %w", ErrEvaluationInvalid, err)
	}
	common, overseas := domain.NormalizeAnswers(scope, cmd.AnswersCommon, cmd.AnswersOverseas)

	note := textutil.PlainText(cmd.Note)
	if utf8.RuneCountInString(note) > maxNoteLength {
		return Evaluation{}, fmt.Errorf("%w: note exceeds %d characters", ErrEvaluationInvalid, maxNoteLength)
	}

	evaluation := Evaluation{
		PartnerID:       partner.ID,
		Scope:           scope,
		AnswersCommon:   common,
		AnswersOverseas: overseas,
		TotalScore:      score,
		Rating:          domain.Classify(score),
		Note:            note,
		CreatedBy:       cmd.Actor.Email,
	}

	saved, err := s.insertWithNextVersion(ctx, evaluation)
	if err != nil {
		return Evaluation{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordSaved(ctx, string(saved.Scope), string(saved.Rating), saved.TotalScore)
	}
	s.publishSaved(ctx, saved)
	return saved, nil
}

// insertWithNextVersion allocates a version from the counter, floored at the highest stored
// version, and retries when another writer already holds that version.
func (s *evaluationService) insertWithNextVersion(ctx context.Context, evaluation Evaluation) (Evaluation, error) {
	var lastErr error
	for attempt := 0; attempt < maxVersionAttempts; attempt++ {
		existing, err := s.evaluations.ListByPartner(ctx, evaluation.PartnerID)
		if err != nil {
			return Evaluation{}, mapRepositoryError(err, nil, nil)
		}
		floor := domain.NextVersion(domain.Versions(existing)) - 1

		version, err := s.counters.NextEvaluationVersion(ctx, evaluation.PartnerID, floor)
		if err != nil {
			return Evaluation{}, err
		}

		evaluation.Version = version
		evaluation.ID = domain.EvaluationID(evaluation.PartnerID, version)
		evaluation.CreatedAt = s.clock()

		err = s.evaluations.Insert(ctx, evaluation)
		if err == nil {
			return evaluation, nil
		}
		mapped := mapRepositoryError(err, nil, ErrEvaluationVersionConflict)
		if !errors.Is(mapped, ErrEvaluationVersionConflict) {
			return Evaluation{}, mapped
		}
		lastErr = mapped
		requestctx.Logger(ctx).Warn("evaluation version taken, retrying",
			zap.String("partnerId", evaluation.PartnerID),
			zap.Int("version", version),
			zap.Int("attempt", attempt+1),
		)
	}
	return Evaluation{}, lastErr
}

func (s *evaluationService) publishSaved(ctx context.Context, evaluation Evaluation) {
	if s.events == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()
	_, err := s.events.PublishEvaluationSaved(pubCtx, EvaluationSavedEvent{
		EvaluationID: evaluation.ID,
		PartnerID:    evaluation.PartnerID,
		Scope:        evaluation.Scope,
		Version:      evaluation.Version,
		TotalScore:   evaluation.TotalScore,
		Rating:       evaluation.Rating,
		CreatedBy:    evaluation.CreatedBy,
		CreatedAt:    evaluation.CreatedAt,
	})
	if err != nil {
		requestctx.Logger(ctx).Warn("publish evaluation.saved failed",
			zap.String("evaluationId", evaluation.ID),
			zap.Error(err),
		)
	}
}

func (s *evaluationService) ListHistory(ctx context.Context, partnerID string) ([]Evaluation, error) {
	partner, err := s.loadPartner(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	history, err := s.evaluations.ListByPartner(ctx, partner.ID)
	if err != nil {
		return nil, mapRepositoryError(err, nil, nil)
	}
	return history, nil
}

func (s *evaluationService) LatestEvaluation(ctx context.Context, partnerID string) (Evaluation, error) {
	history, err := s.ListHistory(ctx, partnerID)
	if err != nil {
		return Evaluation{}, err
	}
	latest := domain.Latest(history)
	if latest == nil {
		return Evaluation{}, ErrEvaluationNotFound
	}
	return *latest, nil
}

func (s *evaluationService) GetEvaluation(ctx context.Context, evaluationID string) (Evaluation, error) {
	evaluationID = strings.TrimSpace(evaluationID)
	if evaluationID == "" {
		return Evaluation{}, ErrEvaluationNotFound
	}
	evaluation, err := s.evaluations.FindByID(ctx, evaluationID)
	if err != nil {
		return Evaluation{}, mapRepositoryError(err, ErrEvaluationNotFound, nil)
	}
	return evaluation, nil
}

// Prefill returns the answers of an earlier evaluation of the same partner. An empty
// fromEvaluationID selects the latest one.
func (s *evaluationService) Prefill(ctx context.Context, partnerID, fromEvaluationID string) (EvaluationPrefill, error) {
	partner, err := s.loadPartner(ctx, partnerID)
	if err != nil {
		return EvaluationPrefill{}, err
	}

	var source Evaluation
	if strings.TrimSpace(fromEvaluationID) == "" {
		source, err = s.LatestEvaluation(ctx, partner.ID)
	} else {
		source, err = s.GetEvaluation(ctx, fromEvaluationID)
	}
	if err != nil {
		return EvaluationPrefill{}, err
	}
	if source.PartnerID != partner.ID {
		return EvaluationPrefill{}, ErrEvaluationNotFound
	}

	prefill := EvaluationPrefill{
		PartnerID:     partner.ID,
		FromID:        source.ID,
		FromVersion:   source.Version,
		Scope:         partner.Scope,
		AnswersCommon: append([]int(nil), source.AnswersCommon...),
		Note:          source.Note,
	}
	if partner.Scope == domain.ScopeOverseas {
		prefill.AnswersOverseas = append([]int(nil), source.AnswersOverseas...)
	}
	return prefill, nil
}

func (s *evaluationService) loadPartner(ctx context.Context, partnerID string) (Partner, error) {
	partnerID = strings.TrimSpace(partnerID)
	if partnerID == "" {
		return Partner{}, ErrPartnerNotFound
	}
	partner, err := s.partners.FindByID(ctx, partnerID)
	if err != nil {
		return Partner{}, mapRepositoryError(err, ErrPartnerNotFound, nil)
	}
	return partner, nil
}

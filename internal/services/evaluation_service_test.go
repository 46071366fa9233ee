package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	domain "github.com/partner-scorecard/api/internal/domain"
)

type evaluationFixture struct {
	svc         EvaluationService
	partners    *memoryPartnerRepo
	evaluations *memoryEvaluationRepo
	counters    *memoryCounterRepo
	events      *stubEventPublisher
	metrics     *stubRecorder
	now         time.Time
}

func newEvaluationFixture(t *testing.T, partners ...domain.Partner) *evaluationFixture {
	t.Helper()
	f := &evaluationFixture{
		partners:    newMemoryPartnerRepo(partners...),
		evaluations: newMemoryEvaluationRepo(),
		counters:    newMemoryCounterRepo(),
		events:      &stubEventPublisher{},
		metrics:     &stubRecorder{},
		now:         time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC),
	}
	counters, err := NewCounterService(CounterServiceDeps{Repository: f.counters})
	if err != nil {
		t.Fatalf("NewCounterService: %v", err)
	}
	svc, err := NewEvaluationService(EvaluationServiceDeps{
		Partners:    f.partners,
		Evaluations: f.evaluations,
		Counters:    counters,
		Events:      f.events,
		Metrics:     f.metrics,
		Clock:       fixedClock(f.now),
	})
	if err != nil {
		t.Fatalf("NewEvaluationService: %v", err)
	}
	f.svc = svc
	return f
}

var (
	domesticPartner = domain.Partner{ID: "dom", Scope: domain.ScopeDomestic, Country: "JP", Name: "Dom", Org: "D"}
	overseasPartner = domain.Partner{ID: "ovs", Scope: domain.ScopeOverseas, Country: "VN", Name: "Ovs", Org: "O"}
)

func TestEvaluationServicePreviewIsLenient(t *testing.T) {
	f := newEvaluationFixture(t)

	common := make([]float64, domain.CommonQuestionCount())
	for i := range common {
		common[i] = 5
	}
	common[0] = math.NaN()
	common[1] = math.NaN()
	common[2] = math.NaN()

	preview, err := f.svc.Preview(context.Background(), PreviewCommand{Scope: "domestic", AnswersCommon: common})
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if preview.TotalScore != 80 {
		t.Fatalf("expected 80, got %v", preview.TotalScore)
	}
	if preview.Rating != domain.RatingGood {
		t.Fatalf("expected GOOD at the boundary, got %s", preview.Rating)
	}
	if preview.ItemCount != domain.CommonQuestionCount() {
		t.Fatalf("expected %d items, got %d", domain.CommonQuestionCount(), preview.ItemCount)
	}

	if _, err := f.svc.Preview(context.Background(), PreviewCommand{Scope: "mars"}); !errors.Is(err, ErrEvaluationInvalid) {
		t.Fatalf("expected ErrEvaluationInvalid for unknown scope, got %v", err)
	}

	_, err = f.svc.Preview(context.Background(), PreviewCommand{Scope: "domestic", AnswersCommon: []float64{9, 5, math.Inf(1)}})
	var validation *domain.AnswerValidationError
	if !errors.Is(err, ErrEvaluationInvalid) || !errors.As(err, &validation) || len(validation.Issues) != 2 {
		t.Fatalf("expected out-of-range preview answers rejected, got %v", err)
	}
}

func TestEvaluationServiceSaveAssignsSequentialVersions(t *testing.T) {
	f := newEvaluationFixture(t, domesticPartner)
	ctx := context.Background()

	first, err := f.svc.SaveEvaluation(ctx, SaveEvaluationCommand{
		Actor:         manager,
		PartnerID:     "dom",
		AnswersCommon: repeatAnswer(5, domain.CommonQuestionCount()),
		// overseas answers are ignored for domestic partners
		AnswersOverseas: []int{9, 9},
		Note:            "<b>solid</b> partner",
	})
	if err != nil {
		t.Fatalf("SaveEvaluation: %v", err)
	}
	if first.Version != 1 || first.ID != "dom_v1" {
		t.Fatalf("expected dom_v1, got %s (v%d)", first.ID, first.Version)
	}
	if first.TotalScore != 100 || first.Rating != domain.RatingGood {
		t.Fatalf("unexpected score %v %s", first.TotalScore, first.Rating)
	}
	if first.AnswersOverseas != nil {
		t.Fatalf("expected overseas answers dropped, got %v", first.AnswersOverseas)
	}
	if first.Note != "solid partner" {
		t.Fatalf("expected sanitized note, got %q", first.Note)
	}
	if first.CreatedBy != manager.Email || !first.CreatedAt.Equal(f.now) {
		t.Fatalf("unexpected audit fields %s %s", first.CreatedBy, first.CreatedAt)
	}

	second, err := f.svc.SaveEvaluation(ctx, SaveEvaluationCommand{
		Actor:         manager,
		PartnerID:     "dom",
		AnswersCommon: repeatAnswer(3, domain.CommonQuestionCount()),
	})
	if err != nil {
		t.Fatalf("SaveEvaluation: %v", err)
	}
	if second.Version != 2 || second.Rating != domain.RatingOK {
		t.Fatalf("expected v2 OK, got v%d %s", second.Version, second.Rating)
	}

	if len(f.events.saved) != 2 || f.events.saved[1].EvaluationID != "dom_v2" {
		t.Fatalf("expected two evaluation.saved events, got %+v", f.events.saved)
	}
	if len(f.metrics.saved) != 2 || f.metrics.saved[0] != "domestic/GOOD" {
		t.Fatalf("unexpected metrics %v", f.metrics.saved)
	}
}

func TestEvaluationServiceSaveFloorsCounterAtStoredHistory(t *testing.T) {
	f := newEvaluationFixture(t, domesticPartner)
	for v := 1; v <= 3; v++ {
		f.evaluations.store[domain.EvaluationID("dom", v)] = domain.Evaluation{ID: domain.EvaluationID("dom", v), PartnerID: "dom", Version: v}
	}

	saved, err := f.svc.SaveEvaluation(context.Background(), SaveEvaluationCommand{
		Actor:         admin,
		PartnerID:     "dom",
		AnswersCommon: repeatAnswer(4, domain.CommonQuestionCount()),
	})
	if err != nil {
		t.Fatalf("SaveEvaluation: %v", err)
	}
	if saved.Version != 4 {
		t.Fatalf("expected version 4 after imported history, got %d", saved.Version)
	}
	if f.counters.calls[0].Floor != 3 {
		t.Fatalf("expected floor 3, got %d", f.counters.calls[0].Floor)
	}
}

func TestEvaluationServiceSaveRetriesOnVersionConflict(t *testing.T) {
	f := newEvaluationFixture(t, domesticPartner)
	conflicts := 1
	f.evaluations.insertHook = func(domain.Evaluation) error {
		if conflicts > 0 {
			conflicts--
			return conflictErr()
		}
		return nil
	}

	saved, err := f.svc.SaveEvaluation(context.Background(), SaveEvaluationCommand{
		Actor:         manager,
		PartnerID:     "dom",
		AnswersCommon: repeatAnswer(2, domain.CommonQuestionCount()),
	})
	if err != nil {
		t.Fatalf("SaveEvaluation: %v", err)
	}
	if saved.Version != 2 {
		t.Fatalf("expected version 2 after one conflict, got %d", saved.Version)
	}
	if len(f.counters.calls) != 2 {
		t.Fatalf("expected two counter allocations, got %d", len(f.counters.calls))
	}
}

func TestEvaluationServiceSaveGivesUpAfterRepeatedConflicts(t *testing.T) {
	f := newEvaluationFixture(t, domesticPartner)
	f.evaluations.insertHook = func(domain.Evaluation) error { return conflictErr() }

	_, err := f.svc.SaveEvaluation(context.Background(), SaveEvaluationCommand{
		Actor:         manager,
		PartnerID:     "dom",
		AnswersCommon: repeatAnswer(2, domain.CommonQuestionCount()),
	})
	if !errors.Is(err, ErrEvaluationVersionConflict) {
		t.Fatalf("expected ErrEvaluationVersionConflict, got %v", err)
	}
	if len(f.events.saved) != 0 {
		t.Fatalf("expected no events on failure")
	}
}

func TestEvaluationServiceSaveValidation(t *testing.T) {
	archived := domesticPartner
	archived.ID = "gone"
	archived.Archived = true
	f := newEvaluationFixture(t, domesticPartner, overseasPartner, archived)
	ctx := context.Background()

	_, err := f.svc.SaveEvaluation(ctx, SaveEvaluationCommand{Actor: viewer, PartnerID: "dom"})
	if !errors.Is(err, ErrEvaluationForbidden) {
		t.Fatalf("expected ErrEvaluationForbidden, got %v", err)
	}

	_, err = f.svc.SaveEvaluation(ctx, SaveEvaluationCommand{Actor: manager, PartnerID: "missing"})
	if !errors.Is(err, ErrPartnerNotFound) {
		t.Fatalf("expected ErrPartnerNotFound, got %v", err)
	}

	_, err = f.svc.SaveEvaluation(ctx, SaveEvaluationCommand{
		Actor: manager, PartnerID: "gone", AnswersCommon: repeatAnswer(5, domain.CommonQuestionCount()),
	})
	if !errors.Is(err, ErrEvaluationPartnerArchived) {
		t.Fatalf("expected ErrEvaluationPartnerArchived, got %v", err)
	}

	answers := repeatAnswer(5, domain.CommonQuestionCount())
	answers[2] = 6
	_, err = f.svc.SaveEvaluation(ctx, SaveEvaluationCommand{Actor: manager, PartnerID: "dom", AnswersCommon: answers})
	if !errors.Is(err, ErrEvaluationInvalid) {
		t.Fatalf("expected ErrEvaluationInvalid, got %v", err)
	}
	var validation *domain.AnswerValidationError
	if !errors.As(err, &validation) || len(validation.Issues) != 1 {
		t.Fatalf("expected one answer issue, got %v", err)
	}

	blank := repeatAnswer(4, domain.CommonQuestionCount())
	blank[7] = domain.Unanswered
	_, err = f.svc.SaveEvaluation(ctx, SaveEvaluationCommand{Actor: manager, PartnerID: "dom", AnswersCommon: blank})
	if !errors.As(err, &validation) || validation.Fields()["answersCommon.c3b"] != "answer required" {
		t.Fatalf("expected blank answer rejected, got %v", err)
	}

	// overseas partners must answer the overseas set too
	_, err = f.svc.SaveEvaluation(ctx, SaveEvaluationCommand{
		Actor: manager, PartnerID: "ovs", AnswersCommon: repeatAnswer(5, domain.CommonQuestionCount()),
	})
	if !errors.As(err, &validation) || len(validation.Issues) != domain.OverseasQuestionCount() {
		t.Fatalf("expected %d overseas issues, got %v", domain.OverseasQuestionCount(), err)
	}

	_, err = f.svc.SaveEvaluation(ctx, SaveEvaluationCommand{
		Actor: manager, PartnerID: "dom", AnswersCommon: repeatAnswer(5, domain.CommonQuestionCount()),
		Note: strings.Repeat("n", 2001),
	})
	if !errors.Is(err, ErrEvaluationInvalid) {
		t.Fatalf("expected long note rejected, got %v", err)
	}
	if len(f.evaluations.store) != 0 {
		t.Fatalf("expected nothing stored, got %d", len(f.evaluations.store))
	}
}

func TestEvaluationServiceSaveSurvivesPublishFailure(t *testing.T) {
	f := newEvaluationFixture(t, domesticPartner)
	f.events.err = errors.New("pubsub down")

	if _, err := f.svc.SaveEvaluation(context.Background(), SaveEvaluationCommand{
		Actor: manager, PartnerID: "dom", AnswersCommon: repeatAnswer(1, domain.CommonQuestionCount()),
	}); err != nil {
		t.Fatalf("expected save to succeed despite publish failure, got %v", err)
	}
}

func TestEvaluationServiceHistoryAndLatest(t *testing.T) {
	f := newEvaluationFixture(t, domesticPartner)
	ctx := context.Background()

	if _, err := f.svc.LatestEvaluation(ctx, "dom"); !errors.Is(err, ErrEvaluationNotFound) {
		t.Fatalf("expected ErrEvaluationNotFound without history, got %v", err)
	}
	if _, err := f.svc.ListHistory(ctx, "missing"); !errors.Is(err, ErrPartnerNotFound) {
		t.Fatalf("expected ErrPartnerNotFound, got %v", err)
	}

	for _, v := range []int{1, 3, 2} {
		f.evaluations.store[domain.EvaluationID("dom", v)] = domain.Evaluation{ID: domain.EvaluationID("dom", v), PartnerID: "dom", Version: v}
	}
	history, err := f.svc.ListHistory(ctx, "dom")
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(history) != 3 || history[0].Version != 3 {
		t.Fatalf("expected newest first, got %+v", history)
	}

	latest, err := f.svc.LatestEvaluation(ctx, "dom")
	if err != nil {
		t.Fatalf("LatestEvaluation: %v", err)
	}
	if latest.Version != 3 {
		t.Fatalf("expected latest v3, got v%d", latest.Version)
	}

	if _, err := f.svc.GetEvaluation(ctx, "dom_v9"); !errors.Is(err, ErrEvaluationNotFound) {
		t.Fatalf("expected ErrEvaluationNotFound, got %v", err)
	}
}

func TestEvaluationServicePrefill(t *testing.T) {
	f := newEvaluationFixture(t, domesticPartner, overseasPartner)
	ctx := context.Background()
	f.evaluations.store["ovs_v1"] = domain.Evaluation{
		ID: "ovs_v1", PartnerID: "ovs", Version: 1, Scope: domain.ScopeOverseas,
		AnswersCommon: []int{1, 2}, AnswersOverseas: []int{3, 4}, Note: "first",
	}
	f.evaluations.store["ovs_v2"] = domain.Evaluation{
		ID: "ovs_v2", PartnerID: "ovs", Version: 2, Scope: domain.ScopeOverseas,
		AnswersCommon: []int{5}, AnswersOverseas: []int{5}, Note: "second",
	}

	latest, err := f.svc.Prefill(ctx, "ovs", "")
	if err != nil {
		t.Fatalf("Prefill: %v", err)
	}
	if latest.FromID != "ovs_v2" || latest.FromVersion != 2 || latest.Note != "second" {
		t.Fatalf("expected prefill from latest, got %+v", latest)
	}

	older, err := f.svc.Prefill(ctx, "ovs", "ovs_v1")
	if err != nil {
		t.Fatalf("Prefill: %v", err)
	}
	if len(older.AnswersOverseas) != 2 || older.AnswersOverseas[1] != 4 {
		t.Fatalf("expected overseas answers copied, got %+v", older)
	}

	if _, err := f.svc.Prefill(ctx, "dom", "ovs_v1"); !errors.Is(err, ErrEvaluationNotFound) {
		t.Fatalf("expected evaluations of other partners hidden, got %v", err)
	}
}

package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/partner-scorecard/api/internal/domain"
	"github.com/partner-scorecard/api/internal/platform/auth"
	"github.com/partner-scorecard/api/internal/platform/httpx"
	"github.com/partner-scorecard/api/internal/services"
)

// EvaluationHandlers exposes evaluation history under /partners/{partnerId}/evaluations.
type EvaluationHandlers struct {
	evaluations services.EvaluationService
}

// NewEvaluationHandlers constructs EvaluationHandlers.
func NewEvaluationHandlers(evaluations services.EvaluationService) *EvaluationHandlers {
	return &EvaluationHandlers{evaluations: evaluations}
}

// Routes registers evaluation endpoints on the /partners group.
func (h *EvaluationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	approved := r.With(auth.RequireApproved())
	viewer := approved.With(auth.RequirePermission("canViewEvaluations", func(p domain.Permission) bool { return p.CanViewEvaluations }))

	approved.With(
		auth.RequirePermission("canEvaluate", func(p domain.Permission) bool { return p.CanEvaluate }),
	).Post("/{partnerId}/evaluations", h.saveEvaluation)
	viewer.Get("/{partnerId}/evaluations", h.listHistory)
	viewer.Get("/{partnerId}/evaluations:latest", h.latest)
	viewer.Get("/{partnerId}/evaluations:prefill", h.prefill)
	viewer.Get("/{partnerId}/evaluations/{evaluationId}", h.getEvaluation)
}

// A null answer is kept as blank so the save gate reports it as missing.
type saveEvaluationRequest struct {
	AnswersCommon   []*int `json:"answersCommon" validate:"required,max=64"`
	AnswersOverseas []*int `json:"answersOverseas" validate:"max=64"`
	Note            string `json:"note" validate:"max=4000"`
}

type evaluationPayload struct {
	ID              string  `json:"id"`
	PartnerID       string  `json:"partnerId"`
	Scope           string  `json:"scope"`
	Version         int     `json:"version"`
	AnswersCommon   []int   `json:"answersCommon"`
	AnswersOverseas []int   `json:"answersOverseas,omitempty"`
	TotalScore      float64 `json:"totalScore"`
	Rating          string  `json:"rating"`
	RatingLabel     string  `json:"ratingLabel"`
	Note            string  `json:"note,omitempty"`
	CreatedAt       string  `json:"createdAt"`
	CreatedBy       string  `json:"createdBy"`
}

type evaluationResponse struct {
	Evaluation evaluationPayload `json:"evaluation"`
}

type evaluationListResponse struct {
	Items []evaluationPayload `json:"items"`
}

type prefillResponse struct {
	PartnerID       string `json:"partnerId"`
	FromID          string `json:"fromId"`
	FromVersion     int    `json:"fromVersion"`
	Scope           string `json:"scope"`
	AnswersCommon   []int  `json:"answersCommon"`
	AnswersOverseas []int  `json:"answersOverseas,omitempty"`
	Note            string `json:"note,omitempty"`
}

func (h *EvaluationHandlers) saveEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.evaluations == nil {
		writeServiceUnavailable(ctx, w, "evaluation")
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req saveEvaluationRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	evaluation, err := h.evaluations.SaveEvaluation(ctx, services.SaveEvaluationCommand{
		Actor:           caller,
		PartnerID:       chi.URLParam(r, "partnerId"),
		AnswersCommon:   domain.AnswersFromNullable(req.AnswersCommon),
		AnswersOverseas: domain.AnswersFromNullable(req.AnswersOverseas),
		Note:            req.Note,
	})
	if err != nil {
		writeEvaluationError(ctx, w, err)
		return
	}
	labels := domain.LabelsFor(r.Header.Get("Accept-Language"))
	w.Header().Set("Location", "/api/v1/partners/"+evaluation.PartnerID+"/evaluations/"+evaluation.ID)
	writeJSONResponse(w, http.StatusCreated, evaluationResponse{Evaluation: buildEvaluationPayload(evaluation, labels)})
}

func (h *EvaluationHandlers) listHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.evaluations == nil {
		writeServiceUnavailable(ctx, w, "evaluation")
		return
	}
	history, err := h.evaluations.ListHistory(ctx, chi.URLParam(r, "partnerId"))
	if err != nil {
		writeEvaluationError(ctx, w, err)
		return
	}
	labels := domain.LabelsFor(r.Header.Get("Accept-Language"))
	items := make([]evaluationPayload, 0, len(history))
	for _, e := range history {
		items = append(items, buildEvaluationPayload(e, labels))
	}
	writeJSONResponse(w, http.StatusOK, evaluationListResponse{Items: items})
}

func (h *EvaluationHandlers) latest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.evaluations == nil {
		writeServiceUnavailable(ctx, w, "evaluation")
		return
	}
	evaluation, err := h.evaluations.LatestEvaluation(ctx, chi.URLParam(r, "partnerId"))
	if err != nil {
		writeEvaluationError(ctx, w, err)
		return
	}
	labels := domain.LabelsFor(r.Header.Get("Accept-Language"))
	writeJSONResponse(w, http.StatusOK, evaluationResponse{Evaluation: buildEvaluationPayload(evaluation, labels)})
}

func (h *EvaluationHandlers) getEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.evaluations == nil {
		writeServiceUnavailable(ctx, w, "evaluation")
		return
	}
	evaluation, err := h.evaluations.GetEvaluation(ctx, chi.URLParam(r, "evaluationId"))
	if err != nil {
		writeEvaluationError(ctx, w, err)
		return
	}
	if evaluation.PartnerID != strings.TrimSpace(chi.URLParam(r, "partnerId")) {
		httpx.WriteError(ctx, w, httpx.NewError("evaluation_not_found", "evaluation not found", http.StatusNotFound))
		return
	}
	labels := domain.LabelsFor(r.Header.Get("Accept-Language"))
	writeJSONResponse(w, http.StatusOK, evaluationResponse{Evaluation: buildEvaluationPayload(evaluation, labels)})
}

func (h *EvaluationHandlers) prefill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.evaluations == nil {
		writeServiceUnavailable(ctx, w, "evaluation")
		return
	}
	prefill, err := h.evaluations.Prefill(ctx, chi.URLParam(r, "partnerId"), r.URL.Query().Get("from"))
	if err != nil {
		writeEvaluationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, prefillResponse{
		PartnerID:       prefill.PartnerID,
		FromID:          prefill.FromID,
		FromVersion:     prefill.FromVersion,
		Scope:           string(prefill.Scope),
		AnswersCommon:   prefill.AnswersCommon,
		AnswersOverseas: prefill.AnswersOverseas,
		Note:            prefill.Note,
	})
}

func buildEvaluationPayload(e services.Evaluation, labels domain.RatingLabels) evaluationPayload {
	return evaluationPayload{
		ID:              e.ID,
		PartnerID:       e.PartnerID,
		Scope:           string(e.Scope),
		Version:         e.Version,
		AnswersCommon:   e.AnswersCommon,
		AnswersOverseas: e.AnswersOverseas,
		TotalScore:      e.TotalScore,
		Rating:          string(e.Rating),
		RatingLabel:     labels.Long(e.Rating),
		Note:            e.Note,
		CreatedAt:       formatTime(e.CreatedAt),
		CreatedBy:       e.CreatedBy,
	}
}

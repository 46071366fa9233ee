package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/partner-scorecard/api/internal/domain"
	"github.com/partner-scorecard/api/internal/platform/auth"
	"github.com/partner-scorecard/api/internal/platform/httpx"
	"github.com/partner-scorecard/api/internal/services"
)

// ScoringHandlers exposes the live score preview and the question catalog.
type ScoringHandlers struct {
	evaluations services.EvaluationService
}

// NewScoringHandlers constructs ScoringHandlers.
func NewScoringHandlers(evaluations services.EvaluationService) *ScoringHandlers {
	return &ScoringHandlers{evaluations: evaluations}
}

// Routes registers /scoring:preview and /questions.
func (h *ScoringHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	approved := r.With(auth.RequireApproved())
	approved.Post("/scoring:preview", h.preview)
	approved.Get("/questions", h.questions)
}

// A null answer marks an unanswered question.
type previewRequest struct {
	Scope           string     `json:"scope" validate:"required"`
	AnswersCommon   []*float64 `json:"answersCommon" validate:"max=64,dive,omitempty,min=0,max=5"`
	AnswersOverseas []*float64 `json:"answersOverseas" validate:"max=64,dive,omitempty,min=0,max=5"`
}

type previewResponse struct {
	Scope       string  `json:"scope"`
	TotalScore  float64 `json:"totalScore"`
	Rating      string  `json:"rating"`
	RatingLabel string  `json:"ratingLabel"`
	RatingShort string  `json:"ratingShort"`
	ItemCount   int     `json:"itemCount"`
}

func (h *ScoringHandlers) preview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.evaluations == nil {
		writeServiceUnavailable(ctx, w, "scoring")
		return
	}

	var req previewRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	result, err := h.evaluations.Preview(ctx, services.PreviewCommand{
		Scope:           req.Scope,
		AnswersCommon:   nullableAnswers(req.AnswersCommon),
		AnswersOverseas: nullableAnswers(req.AnswersOverseas),
	})
	if err != nil {
		writeEvaluationError(ctx, w, err)
		return
	}

	labels := domain.LabelsFor(r.Header.Get("Accept-Language"))
	writeJSONResponse(w, http.StatusOK, previewResponse{
		Scope:       string(result.Scope),
		TotalScore:  result.TotalScore,
		Rating:      string(result.Rating),
		RatingLabel: labels.Long(result.Rating),
		RatingShort: labels.Short(result.Rating),
		ItemCount:   len(domain.QuestionsFor(result.Scope)),
	})
}

func nullableAnswers(values []*float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *v
	}
	return out
}

type questionPayload struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Text     string `json:"text"`
}

type categoryPayload struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type ratingBandPayload struct {
	Rating string `json:"rating"`
	Label  string `json:"label"`
	Short  string `json:"short"`
}

type questionsResponse struct {
	MaxPerItem int                 `json:"maxPerItem"`
	Categories []categoryPayload   `json:"categories"`
	Common     []questionPayload   `json:"common"`
	Overseas   []questionPayload   `json:"overseas"`
	Ratings    []ratingBandPayload `json:"ratings"`
	Language   string              `json:"language"`
}

func (h *ScoringHandlers) questions(w http.ResponseWriter, r *http.Request) {
	labels := domain.LabelsFor(r.Header.Get("Accept-Language"))

	resp := questionsResponse{
		MaxPerItem: domain.MaxPerItem,
		Common:     buildQuestionPayloads(domain.CommonQuestions()),
		Overseas:   buildQuestionPayloads(domain.OverseasQuestions()),
		Language:   labels.Tag.String(),
	}
	for _, c := range domain.QuestionCategories() {
		resp.Categories = append(resp.Categories, categoryPayload{ID: c.ID, Title: c.Title})
	}
	for _, rating := range []domain.Rating{domain.RatingGood, domain.RatingOK, domain.RatingCaution, domain.RatingUntrustworthy} {
		resp.Ratings = append(resp.Ratings, ratingBandPayload{
			Rating: string(rating),
			Label:  labels.Long(rating),
			Short:  labels.Short(rating),
		})
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func buildQuestionPayloads(questions []domain.Question) []questionPayload {
	out := make([]questionPayload, 0, len(questions))
	for _, q := range questions {
		out = append(out, questionPayload{ID: q.ID, Category: q.Category, Text: q.Text})
	}
	return out
}

func writeEvaluationError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var answerErr *domain.AnswerValidationError
	if errors.As(err, &answerErr) {
		details := make(map[string]any, len(answerErr.Issues))
		for field, message := range answerErr.Fields() {
			details[field] = message
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_answers", "answers failed validation", http.StatusUnprocessableEntity).WithDetails(details))
		return
	}
	switch {
	case errors.Is(err, services.ErrEvaluationInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrEvaluationForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "insufficient permissions to evaluate partners", http.StatusForbidden))
	case errors.Is(err, services.ErrPartnerNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("partner_not_found", "partner not found", http.StatusNotFound))
	case errors.Is(err, services.ErrEvaluationNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("evaluation_not_found", "evaluation not found", http.StatusNotFound))
	case errors.Is(err, services.ErrEvaluationPartnerArchived):
		httpx.WriteError(ctx, w, httpx.NewError("partner_archived", "archived partners cannot be evaluated", http.StatusConflict))
	case errors.Is(err, services.ErrEvaluationVersionConflict):
		httpx.WriteError(ctx, w, httpx.NewError("version_conflict", "could not allocate an evaluation version; retry", http.StatusConflict))
	default:
		writeUnexpectedError(ctx, w, "evaluation", err)
	}
}

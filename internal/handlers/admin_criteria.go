package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/partner-scorecard/api/internal/domain"
	"github.com/partner-scorecard/api/internal/platform/auth"
	"github.com/partner-scorecard/api/internal/platform/httpx"
	"github.com/partner-scorecard/api/internal/services"
)

// AdminCriteriaHandlers maintains the editable criteria copy under /admin/criteria.
type AdminCriteriaHandlers struct {
	criteria services.CriteriaService
}

// NewAdminCriteriaHandlers constructs AdminCriteriaHandlers.
func NewAdminCriteriaHandlers(criteria services.CriteriaService) *AdminCriteriaHandlers {
	return &AdminCriteriaHandlers{criteria: criteria}
}

// Routes registers criteria endpoints on the /admin group.
func (h *AdminCriteriaHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	admin := r.With(
		auth.RequireApproved(),
		auth.RequirePermission("canViewAdmin", func(p domain.Permission) bool { return p.CanViewAdmin }),
	)
	admin.Get("/criteria", h.list)
	admin.Post("/criteria", h.create)
	admin.Post("/criteria:seed", h.seed)
	admin.Put("/criteria/{criterionId}", h.update)
	admin.Delete("/criteria/{criterionId}", h.remove)
}

type criterionRequest struct {
	Scope      string `json:"scope" validate:"required,oneof=common overseas"`
	Category   string `json:"category" validate:"max=20"`
	QuestionID string `json:"questionId" validate:"max=20"`
	Text       string `json:"text" validate:"required,max=500"`
	Order      int    `json:"order" validate:"gte=0"`
}

type criterionPayload struct {
	ID         string `json:"id"`
	Scope      string `json:"scope"`
	Category   string `json:"category,omitempty"`
	QuestionID string `json:"questionId,omitempty"`
	Text       string `json:"text"`
	Order      int    `json:"order"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
	UpdatedBy  string `json:"updatedBy,omitempty"`
}

type criterionResponse struct {
	Criterion criterionPayload `json:"criterion"`
}

type criteriaListResponse struct {
	Items []criterionPayload `json:"items"`
}

type seedResponse struct {
	Written int `json:"written"`
}

func (h *AdminCriteriaHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.criteria == nil {
		writeServiceUnavailable(ctx, w, "criteria")
		return
	}
	criteria, err := h.criteria.List(ctx)
	if err != nil {
		writeCriteriaError(ctx, w, err)
		return
	}
	items := make([]criterionPayload, 0, len(criteria))
	for _, c := range criteria {
		items = append(items, buildCriterionPayload(c))
	}
	writeJSONResponse(w, http.StatusOK, criteriaListResponse{Items: items})
}

func (h *AdminCriteriaHandlers) create(w http.ResponseWriter, r *http.Request) {
	h.upsert(w, r, http.StatusCreated, "")
}

func (h *AdminCriteriaHandlers) update(w http.ResponseWriter, r *http.Request) {
	h.upsert(w, r, http.StatusOK, chi.URLParam(r, "criterionId"))
}

func (h *AdminCriteriaHandlers) upsert(w http.ResponseWriter, r *http.Request, status int, id string) {
	ctx := r.Context()
	if h.criteria == nil {
		writeServiceUnavailable(ctx, w, "criteria")
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req criterionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	cmd := services.UpsertCriterionCommand{
		Actor:      caller,
		ID:         id,
		Scope:      req.Scope,
		Category:   req.Category,
		QuestionID: req.QuestionID,
		Text:       req.Text,
		Order:      req.Order,
	}

	var (
		criterion services.Criterion
		err       error
	)
	if id == "" {
		criterion, err = h.criteria.Create(ctx, cmd)
	} else {
		criterion, err = h.criteria.Update(ctx, cmd)
	}
	if err != nil {
		writeCriteriaError(ctx, w, err)
		return
	}
	writeJSONResponse(w, status, criterionResponse{Criterion: buildCriterionPayload(criterion)})
}

func (h *AdminCriteriaHandlers) remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.criteria == nil {
		writeServiceUnavailable(ctx, w, "criteria")
		return
	}
	if err := h.criteria.Delete(ctx, chi.URLParam(r, "criterionId")); err != nil {
		writeCriteriaError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminCriteriaHandlers) seed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.criteria == nil {
		writeServiceUnavailable(ctx, w, "criteria")
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	written, err := h.criteria.Seed(ctx, caller)
	if err != nil {
		writeCriteriaError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, seedResponse{Written: written})
}

func buildCriterionPayload(c services.Criterion) criterionPayload {
	return criterionPayload{
		ID:         c.ID,
		Scope:      string(c.Scope),
		Category:   c.Category,
		QuestionID: c.QuestionID,
		Text:       c.Text,
		Order:      c.Order,
		UpdatedAt:  formatTime(c.UpdatedAt),
		UpdatedBy:  c.UpdatedBy,
	}
}

func writeCriteriaError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCriterionInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCriterionForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "insufficient permissions for criteria", http.StatusForbidden))
	case errors.Is(err, services.ErrCriterionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("criterion_not_found", "criterion not found", http.StatusNotFound))
	default:
		writeUnexpectedError(ctx, w, "criteria", err)
	}
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/partner-scorecard/api/internal/domain"
	"github.com/partner-scorecard/api/internal/platform/auth"
	"github.com/partner-scorecard/api/internal/platform/httpx"
	"github.com/partner-scorecard/api/internal/platform/pagination"
	"github.com/partner-scorecard/api/internal/services"
)

// PartnerHandlers exposes partner master data under /partners.
type PartnerHandlers struct {
	partners services.PartnerService
	paging   pagination.Options
}

// NewPartnerHandlers constructs PartnerHandlers.
func NewPartnerHandlers(partners services.PartnerService) *PartnerHandlers {
	return &PartnerHandlers{
		partners: partners,
		paging: pagination.Options{
			DefaultPageSize: pagination.DefaultPageSize,
			MaxPageSize:     pagination.DefaultMaxPageSize,
		},
	}
}

// Routes registers the /partners endpoints. The group is already authenticated.
func (h *PartnerHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	approved := r.With(auth.RequireApproved())

	approved.With(
		auth.RequirePermission("canViewPartners", func(p domain.Permission) bool { return p.CanViewPartners }),
		pagination.Middleware(h.paging),
	).Get("/", h.listPartners)
	approved.With(
		auth.RequirePermission("canCreatePartners", func(p domain.Permission) bool { return p.CanCreatePartners }),
	).Post("/", h.createPartner)
	approved.With(
		auth.RequirePermission("canViewPartners", func(p domain.Permission) bool { return p.CanViewPartners }),
	).Get("/{partnerId}", h.getPartner)
	approved.With(
		auth.RequirePermission("canEditPartners", func(p domain.Permission) bool { return p.CanEditPartners }),
	).Patch("/{partnerId}", h.updatePartner)
	approved.Post("/{partnerId}:archive", h.archivePartner)
	approved.Post("/{partnerId}:restore", h.restorePartner)
}

type createPartnerRequest struct {
	Scope   string `json:"scope" validate:"required,max=20"`
	Country string `json:"country" validate:"required,max=100"`
	Name    string `json:"name" validate:"required,max=200"`
	Org     string `json:"org" validate:"required,max=200"`
	Email   string `json:"email" validate:"omitempty,email,max=254"`
	Phone   string `json:"phone" validate:"omitempty,max=50"`
}

type updatePartnerRequest struct {
	Scope   *string `json:"scope" validate:"omitempty,max=20"`
	Country *string `json:"country" validate:"omitempty,max=100"`
	Name    *string `json:"name" validate:"omitempty,max=200"`
	Org     *string `json:"org" validate:"omitempty,max=200"`
	Email   *string `json:"email" validate:"omitempty,max=254"`
	Phone   *string `json:"phone" validate:"omitempty,max=50"`
}

type partnerPayload struct {
	ID        string `json:"id"`
	Scope     string `json:"scope"`
	Country   string `json:"country"`
	Name      string `json:"name"`
	Org       string `json:"org"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Archived  bool   `json:"archived"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type partnerListResponse struct {
	Items         []partnerPayload `json:"items"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

type partnerResponse struct {
	Partner partnerPayload `json:"partner"`
}

// listPartners serves the active list, a search when q is set, or the trash when archived=true.
func (h *PartnerHandlers) listPartners(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.partners == nil {
		writeServiceUnavailable(ctx, w, "partner")
		return
	}
	query := r.URL.Query()

	if archivedRaw := strings.TrimSpace(query.Get("archived")); archivedRaw != "" {
		archived, err := strconv.ParseBool(archivedRaw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "archived must be a boolean", http.StatusBadRequest))
			return
		}
		if archived {
			h.listArchived(w, r)
			return
		}
	}

	if q := strings.TrimSpace(query.Get("q")); q != "" {
		items, err := h.partners.SearchPartners(ctx, q)
		if err != nil {
			writePartnerError(ctx, w, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, partnerListResponse{Items: buildPartnerPayloads(items)})
		return
	}

	params := pagination.FromContextOrDefault(ctx)
	page, err := h.partners.ListPartners(ctx, services.PartnerListFilter{
		Pagination: services.Pagination{PageSize: params.PageSize, PageToken: params.PageToken},
	})
	if err != nil {
		writePartnerError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, partnerListResponse{
		Items:         buildPartnerPayloads(page.Items),
		NextPageToken: page.NextPageToken,
	})
}

func (h *PartnerHandlers) listArchived(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.IdentityFromContext(ctx)
	if identity == nil || !identity.Permissions().CanDeletePartners {
		httpx.WriteError(ctx, w, httpx.NewError("permission_denied", "missing permission canDeletePartners", http.StatusForbidden))
		return
	}
	items, err := h.partners.ListArchived(ctx)
	if err != nil {
		writePartnerError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, partnerListResponse{Items: buildPartnerPayloads(items)})
}

func (h *PartnerHandlers) createPartner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.partners == nil {
		writeServiceUnavailable(ctx, w, "partner")
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req createPartnerRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	partner, err := h.partners.CreatePartner(ctx, services.CreatePartnerCommand{
		Actor:   caller,
		Scope:   req.Scope,
		Country: req.Country,
		Name:    req.Name,
		Org:     req.Org,
		Email:   req.Email,
		Phone:   req.Phone,
	})
	if err != nil {
		writePartnerError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, partnerResponse{Partner: buildPartnerPayload(partner)})
}

func (h *PartnerHandlers) getPartner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.partners == nil {
		writeServiceUnavailable(ctx, w, "partner")
		return
	}
	partner, err := h.partners.GetPartner(ctx, chi.URLParam(r, "partnerId"))
	if err != nil {
		writePartnerError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, partnerResponse{Partner: buildPartnerPayload(partner)})
}

func (h *PartnerHandlers) updatePartner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.partners == nil {
		writeServiceUnavailable(ctx, w, "partner")
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req updatePartnerRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	partner, err := h.partners.UpdatePartner(ctx, services.UpdatePartnerCommand{
		Actor:     caller,
		PartnerID: chi.URLParam(r, "partnerId"),
		Scope:     req.Scope,
		Country:   req.Country,
		Name:      req.Name,
		Org:       req.Org,
		Email:     req.Email,
		Phone:     req.Phone,
	})
	if err != nil {
		writePartnerError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, partnerResponse{Partner: buildPartnerPayload(partner)})
}

func (h *PartnerHandlers) archivePartner(w http.ResponseWriter, r *http.Request) {
	if h.partners == nil {
		writeServiceUnavailable(r.Context(), w, "partner")
		return
	}
	h.changeArchive(w, r, h.partners.ArchivePartner)
}

func (h *PartnerHandlers) restorePartner(w http.ResponseWriter, r *http.Request) {
	if h.partners == nil {
		writeServiceUnavailable(r.Context(), w, "partner")
		return
	}
	h.changeArchive(w, r, h.partners.RestorePartner)
}

func (h *PartnerHandlers) changeArchive(w http.ResponseWriter, r *http.Request, apply func(context.Context, services.PartnerArchiveCommand) (services.Partner, error)) {
	ctx := r.Context()
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	partner, err := apply(ctx, services.PartnerArchiveCommand{
		Actor:     caller,
		PartnerID: chi.URLParam(r, "partnerId"),
	})
	if err != nil {
		writePartnerError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, partnerResponse{Partner: buildPartnerPayload(partner)})
}

func buildPartnerPayloads(partners []services.Partner) []partnerPayload {
	out := make([]partnerPayload, 0, len(partners))
	for _, p := range partners {
		out = append(out, buildPartnerPayload(p))
	}
	return out
}

func buildPartnerPayload(p services.Partner) partnerPayload {
	return partnerPayload{
		ID:        p.ID,
		Scope:     string(p.Scope),
		Country:   p.Country,
		Name:      p.Name,
		Org:       p.Org,
		Email:     p.Email,
		Phone:     p.Phone,
		Archived:  p.Archived,
		CreatedAt: formatTime(p.CreatedAt),
		UpdatedAt: formatTime(p.UpdatedAt),
	}
}

func writePartnerError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPartnerInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPartnerForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "insufficient permissions for partner", http.StatusForbidden))
	case errors.Is(err, services.ErrPartnerNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("partner_not_found", "partner not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPartnerConflict):
		httpx.WriteError(ctx, w, httpx.NewError("partner_conflict", "partner already exists", http.StatusConflict))
	default:
		writeUnexpectedError(ctx, w, "partner", err)
	}
}

package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/partner-scorecard/api/internal/domain"
	"github.com/partner-scorecard/api/internal/platform/auth"
	"github.com/partner-scorecard/api/internal/platform/httpx"
	"github.com/partner-scorecard/api/internal/services"
)

// AdminAccountHandlers exposes the approval workflow under /admin/accounts.
type AdminAccountHandlers struct {
	accounts services.AccountService
}

// NewAdminAccountHandlers constructs AdminAccountHandlers.
func NewAdminAccountHandlers(accounts services.AccountService) *AdminAccountHandlers {
	return &AdminAccountHandlers{accounts: accounts}
}

// Routes registers account administration endpoints on the /admin group.
func (h *AdminAccountHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	admin := r.With(
		auth.RequireApproved(),
		auth.RequirePermission("canManageUsers", func(p domain.Permission) bool { return p.CanManageUsers }),
	)
	admin.Get("/accounts", h.listAccounts)
	admin.Get("/accounts:pending", h.listPending)
	admin.Post("/accounts/{email}:approve", h.approve)
	admin.Post("/accounts/{email}:reject", h.reject)
	admin.Put("/accounts/{email}/role", h.changeRole)
	admin.Delete("/accounts/{email}", h.softDelete)
	admin.Post("/accounts/{email}:purge", h.purge)
}

type approveAccountRequest struct {
	Role string `json:"role" validate:"omitempty,oneof=user manager admin"`
}

type rejectAccountRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user manager admin"`
}

type accountResponse struct {
	Account accountPayload `json:"account"`
}

type accountListResponse struct {
	Items []accountPayload `json:"items"`
}

func (h *AdminAccountHandlers) listAccounts(w http.ResponseWriter, r *http.Request) {
	h.writeList(w, r, domain.AccountStatus(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))))
}

func (h *AdminAccountHandlers) listPending(w http.ResponseWriter, r *http.Request) {
	h.writeList(w, r, domain.AccountStatusPending)
}

func (h *AdminAccountHandlers) writeList(w http.ResponseWriter, r *http.Request, status domain.AccountStatus) {
	ctx := r.Context()
	if h.accounts == nil {
		writeServiceUnavailable(ctx, w, "account")
		return
	}
	accounts, err := h.accounts.ListAccounts(ctx, status)
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	items := make([]accountPayload, 0, len(accounts))
	for _, a := range accounts {
		items = append(items, buildAccountPayload(a))
	}
	writeJSONResponse(w, http.StatusOK, accountListResponse{Items: items})
}

func (h *AdminAccountHandlers) approve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, email, ok := h.prepare(w, r)
	if !ok {
		return
	}
	var req approveAccountRequest
	if !decodeOptionalRequest(w, r, &req) {
		return
	}
	account, err := h.accounts.Approve(ctx, services.ApproveAccountCommand{Actor: caller, Email: email, Role: req.Role})
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, accountResponse{Account: buildAccountPayload(account)})
}

func (h *AdminAccountHandlers) reject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, email, ok := h.prepare(w, r)
	if !ok {
		return
	}
	var req rejectAccountRequest
	if !decodeOptionalRequest(w, r, &req) {
		return
	}
	account, err := h.accounts.Reject(ctx, services.RejectAccountCommand{Actor: caller, Email: email, Reason: req.Reason})
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, accountResponse{Account: buildAccountPayload(account)})
}

func (h *AdminAccountHandlers) changeRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, email, ok := h.prepare(w, r)
	if !ok {
		return
	}
	var req changeRoleRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	account, err := h.accounts.ChangeRole(ctx, services.ChangeRoleCommand{Actor: caller, Email: email, Role: req.Role})
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, accountResponse{Account: buildAccountPayload(account)})
}

func (h *AdminAccountHandlers) softDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, email, ok := h.prepare(w, r)
	if !ok {
		return
	}
	account, err := h.accounts.SoftDelete(ctx, services.DeleteAccountCommand{Actor: caller, Email: email})
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, accountResponse{Account: buildAccountPayload(account)})
}

func (h *AdminAccountHandlers) purge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, email, ok := h.prepare(w, r)
	if !ok {
		return
	}
	if err := h.accounts.PermanentDelete(ctx, services.DeleteAccountCommand{Actor: caller, Email: email}); err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// prepare resolves the service, the caller and the target email shared by every mutation.
func (h *AdminAccountHandlers) prepare(w http.ResponseWriter, r *http.Request) (domain.Caller, string, bool) {
	ctx := r.Context()
	if h.accounts == nil {
		writeServiceUnavailable(ctx, w, "account")
		return domain.Caller{}, "", false
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return domain.Caller{}, "", false
	}
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil || strings.TrimSpace(email) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "account email is required", http.StatusBadRequest))
		return domain.Caller{}, "", false
	}
	return caller, auth.NormalizeEmail(email), true
}

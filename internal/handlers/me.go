package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/partner-scorecard/api/internal/domain"
	"github.com/partner-scorecard/api/internal/platform/auth"
	"github.com/partner-scorecard/api/internal/platform/httpx"
	"github.com/partner-scorecard/api/internal/services"
)

const (
	defaultSignUpLimit  = 5
	defaultSignUpWindow = time.Minute
)

// MeHandlers serves the caller's own account and the sign-up entry point.
type MeHandlers struct {
	accounts      services.AccountService
	signUpLimiter rateLimiter
}

// MeOption customises MeHandlers.
type MeOption func(*MeHandlers)

// WithSignUpRateLimit caps sign-up attempts per email within window. A zero limit disables it.
func WithSignUpRateLimit(limit int, window time.Duration, clock func() time.Time) MeOption {
	return func(h *MeHandlers) {
		h.signUpLimiter = newSimpleRateLimiter(limit, window, clock)
	}
}

// NewMeHandlers constructs MeHandlers. Authentication is applied by the router group.
func NewMeHandlers(accounts services.AccountService, opts ...MeOption) *MeHandlers {
	h := &MeHandlers{
		accounts:      accounts,
		signUpLimiter: newSimpleRateLimiter(defaultSignUpLimit, defaultSignUpWindow, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers /me and /me:signup.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/me", h.getMe)
	r.Post("/me:signup", h.signUp)
}

type signUpRequest struct {
	DisplayName string `json:"displayName" validate:"omitempty,max=100"`
}

type accountPayload struct {
	Email           string `json:"email"`
	DisplayName     string `json:"displayName,omitempty"`
	Role            string `json:"role"`
	Status          string `json:"status"`
	ApprovedBy      string `json:"approvedBy,omitempty"`
	ApprovedAt      string `json:"approvedAt,omitempty"`
	RejectedBy      string `json:"rejectedBy,omitempty"`
	RejectedAt      string `json:"rejectedAt,omitempty"`
	RejectionReason string `json:"rejectionReason,omitempty"`
	DeletedBy       string `json:"deletedBy,omitempty"`
	DeletedAt       string `json:"deletedAt,omitempty"`
	LastLoginAt     string `json:"lastLoginAt,omitempty"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
}

type meResponse struct {
	Account     accountPayload    `json:"account"`
	Permissions domain.Permission `json:"permissions"`
}

func (h *MeHandlers) getMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		writeServiceUnavailable(ctx, w, "account")
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	account, err := h.accounts.Me(ctx, caller.Email)
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			httpx.WriteError(ctx, w, httpx.NewError("account_not_registered", "sign up before using the application", http.StatusNotFound))
			return
		}
		writeAccountError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, meResponse{
		Account:     buildAccountPayload(account),
		Permissions: accountPermissions(account),
	})
}

func (h *MeHandlers) signUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		writeServiceUnavailable(ctx, w, "account")
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity.Email == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	if !identity.EmailVerified {
		httpx.WriteError(ctx, w, httpx.NewError("email_not_verified", "verify your email address before signing up", http.StatusForbidden))
		return
	}
	if h.signUpLimiter != nil {
		if allowed, retryAfter := h.signUpLimiter.Allow(auth.NormalizeEmail(identity.Email)); !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many sign-up attempts", http.StatusTooManyRequests))
			return
		}
	}

	var req signUpRequest
	if !decodeOptionalRequest(w, r, &req) {
		return
	}
	displayName := req.DisplayName
	if displayName == "" {
		displayName = identity.Name
	}

	account, err := h.accounts.SignUp(ctx, services.SignUpCommand{
		Email:       identity.Email,
		DisplayName: displayName,
	})
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if !identity.Registered() {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, meResponse{
		Account:     buildAccountPayload(account),
		Permissions: accountPermissions(account),
	})
}

// accountPermissions grants capabilities only to approved accounts.
func accountPermissions(account services.Account) domain.Permission {
	if account.Status != domain.AccountStatusApproved {
		return domain.Permission{}
	}
	return domain.PermissionsFor(account.Role)
}

func buildAccountPayload(account services.Account) accountPayload {
	return accountPayload{
		Email:           account.Email,
		DisplayName:     account.DisplayName,
		Role:            string(account.Role),
		Status:          string(account.Status),
		ApprovedBy:      account.ApprovedBy,
		ApprovedAt:      formatTimePointer(account.ApprovedAt),
		RejectedBy:      account.RejectedBy,
		RejectedAt:      formatTimePointer(account.RejectedAt),
		RejectionReason: account.RejectionReason,
		DeletedBy:       account.DeletedBy,
		DeletedAt:       formatTimePointer(account.DeletedAt),
		LastLoginAt:     formatTimePointer(account.LastLoginAt),
		CreatedAt:       formatTime(account.CreatedAt),
		UpdatedAt:       formatTime(account.UpdatedAt),
	}
}

func writeAccountError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrAccountInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAccountForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "insufficient permissions to manage accounts", http.StatusForbidden))
	case errors.Is(err, services.ErrAccountNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("account_not_found", "account not found", http.StatusNotFound))
	case errors.Is(err, services.ErrAccountExists):
		httpx.WriteError(ctx, w, httpx.NewError("account_exists", "account already registered", http.StatusConflict))
	case errors.Is(err, services.ErrAccountTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrAccountSelfModification):
		httpx.WriteError(ctx, w, httpx.NewError("self_modification", "administrators cannot delete or demote themselves", http.StatusConflict))
	default:
		writeUnexpectedError(ctx, w, "account", err)
	}
}

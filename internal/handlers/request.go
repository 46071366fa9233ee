package handlers

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	domain "github.com/partner-scorecard/api/internal/domain"
	"github.com/partner-scorecard/api/internal/platform/auth"
	"github.com/partner-scorecard/api/internal/platform/httpx"
	"github.com/partner-scorecard/api/internal/repositories"
	"github.com/partner-scorecard/api/internal/services"
)

var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New()
	// report json field names in validation details
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeRequest reads the JSON body into dst and validates it. On failure the error response has
// already been written and false is returned.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.BodyError(err))
		return false
	}
	return validateRequest(ctx, w, dst)
}

// decodeOptionalRequest behaves like decodeRequest but accepts an empty body.
func decodeOptionalRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	if err := httpx.DecodeJSON(r, dst); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
		httpx.WriteError(ctx, w, httpx.BodyError(err))
		return false
	}
	return validateRequest(ctx, w, dst)
}

func validateRequest(ctx context.Context, w http.ResponseWriter, dst any) bool {
	if err := requestValidator.Struct(dst); err != nil {
		httpx.WriteError(ctx, w, validationError(err))
		return false
	}
	return true
}

func validationError(err error) httpx.Error {
	apiErr := httpx.NewError("invalid_request", "request validation failed", http.StatusBadRequest)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apiErr
	}
	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fe.Tag()
	}
	return apiErr.WithDetails(details)
}

// requireCaller resolves the authenticated caller or writes a 401.
func requireCaller(w http.ResponseWriter, r *http.Request) (domain.Caller, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.Email) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return domain.Caller{}, false
	}
	return identity.Caller(), true
}

func writeServiceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_service_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}

// writeUnexpectedError maps unavailable repositories to 503 and everything else to 500.
func writeUnexpectedError(ctx context.Context, w http.ResponseWriter, name string, err error) {
	var repoErr repositories.RepositoryError
	if errors.Is(err, services.ErrRepositoryUnavailable) || (errors.As(err, &repoErr) && repoErr.IsUnavailable()) {
		httpx.WriteError(ctx, w, httpx.NewError(name+"_service_unavailable", name+" repository unavailable", http.StatusServiceUnavailable))
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		httpx.WriteError(ctx, w, httpx.NewError("deadline_exceeded", "request timed out", http.StatusGatewayTimeout))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError(name+"_error", "failed to process "+name+" request", http.StatusInternalServerError))
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePointer(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

package pagination

import (
	"context"
	"net/http"

	"github.com/partner-scorecard/api/internal/platform/httpx"
)

type contextKey string

const paramsContextKey contextKey = "github.com/partner-scorecard/api/internal/platform/pagination/params"

// WithParams stores the parsed pagination parameters on the context.
func WithParams(ctx context.Context, params Params) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, paramsContextKey, params)
}

// FromContext retrieves pagination parameters when they were previously attached via WithParams.
func FromContext(ctx context.Context) (Params, bool) {
	if ctx == nil {
		return Params{}, false
	}
	params, ok := ctx.Value(paramsContextKey).(Params)
	return params, ok
}

// FromContextOrDefault fetches pagination parameters or returns defaults when absent.
func FromContextOrDefault(ctx context.Context) Params {
	params, _ := FromContext(ctx)
	return Must(params)
}

// Middleware parses paging query parameters for list routes and rejects malformed ones with 400.
func Middleware(opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			params, err := FromRequest(r, opts)
			if err != nil {
				httpx.WriteError(r.Context(), w, httpx.NewError("invalid_pagination", err.Error(), http.StatusBadRequest))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithParams(r.Context(), params)))
		})
	}
}

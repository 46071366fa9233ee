package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"go.uber.org/zap"

	"github.com/partner-scorecard/api/internal/domain"
	"github.com/partner-scorecard/api/internal/platform/httpx"
	"github.com/partner-scorecard/api/internal/platform/requestctx"
)

const (
	defaultEmailClaim         = "email"
	defaultEmailVerifiedClaim = "email_verified"
	defaultNameClaim          = "name"
	defaultLocaleClaim        = "locale"
	defaultVerifyTimeout      = 5 * time.Second
)

var (
	// ErrTokenExpired signals that the provided Firebase ID token has expired.
	ErrTokenExpired = errors.New("auth: firebase id token expired")
	// ErrTokenInvalid signals that the provided Firebase ID token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: firebase id token invalid")
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// AccountResolver loads the account record for an email. A nil account with a nil error means the
// caller has not signed up.
type AccountResolver interface {
	ResolveAccount(ctx context.Context, email string) (*domain.Account, error)
}

// AccountResolverFunc adapts a function to AccountResolver.
type AccountResolverFunc func(ctx context.Context, email string) (*domain.Account, error)

// ResolveAccount implements AccountResolver.
func (f AccountResolverFunc) ResolveAccount(ctx context.Context, email string) (*domain.Account, error) {
	return f(ctx, email)
}

// Authenticator wires Firebase token verification and account resolution into HTTP middleware.
type Authenticator struct {
	verifier TokenVerifier
	accounts AccountResolver
	timeout  time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithAccountResolver attaches the users collection lookup performed after token verification.
func WithAccountResolver(resolver AccountResolver) Option {
	return func(a *Authenticator) {
		a.accounts = resolver
	}
}

// WithVerificationTimeout sets the timeout used when verifying tokens and loading accounts.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator constructs a Firebase Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier: verifier,
		timeout:  defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireFirebaseAuth verifies the Authorization bearer token, requires an email claim and attaches
// the caller's account record when one exists. It does not check the approval status.
func (a *Authenticator) RequireFirebaseAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if a == nil || a.verifier == nil {
				respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			verifyCtx, cancel := a.contextWithTimeout(ctx)
			token, err := a.verifier.VerifyIDToken(verifyCtx, tokenStr)
			cancel()
			if err != nil {
				respondVerificationError(ctx, w, err)
				return
			}

			identity := &Identity{
				UID:           token.UID,
				Email:         NormalizeEmail(claimAsString(token.Claims, defaultEmailClaim)),
				EmailVerified: claimAsBool(token.Claims, defaultEmailVerifiedClaim),
				Name:          claimAsString(token.Claims, defaultNameClaim),
				Locale:        claimAsString(token.Claims, defaultLocaleClaim),
				token:         token,
			}
			if identity.Email == "" {
				respondAuthError(ctx, w, http.StatusUnauthorized, "missing_email", "identity has no email address")
				return
			}

			if a.accounts != nil {
				lookupCtx, cancel := a.contextWithTimeout(ctx)
				account, err := a.accounts.ResolveAccount(lookupCtx, identity.Email)
				cancel()
				if err != nil {
					requestctx.Logger(ctx).Warn("account lookup failed", zap.Error(err))
					respondAuthError(ctx, w, http.StatusServiceUnavailable, "account_lookup_failed", "unable to load account")
					return
				}
				identity.Account = account
			}

			caller := identity.Caller()
			requestctx.SetActor(ctx, caller.Email, string(caller.Role))
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

// RequireApproved rejects callers whose account is missing or not approved.
func RequireApproved() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			identity, ok := IdentityFromContext(ctx)
			if !ok {
				respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "authentication required")
				return
			}
			switch identity.Status() {
			case domain.AccountStatusApproved:
				next.ServeHTTP(w, r)
			case "":
				respondAuthError(ctx, w, http.StatusForbidden, "account_not_registered", "sign up before using the application")
			case domain.AccountStatusPending:
				respondAuthError(ctx, w, http.StatusForbidden, "account_pending", "account is awaiting approval")
			case domain.AccountStatusRejected:
				respondAuthError(ctx, w, http.StatusForbidden, "account_rejected", "account access was rejected")
			default:
				respondAuthError(ctx, w, http.StatusForbidden, "account_disabled", "account is no longer active")
			}
		})
	}
}

// RequirePermission allows the request only when check returns true for the caller's permissions.
func RequirePermission(name string, check func(domain.Permission) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			identity, ok := IdentityFromContext(ctx)
			if !ok {
				respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "authentication required")
				return
			}
			if check == nil || !check(identity.Permissions()) {
				respondAuthError(ctx, w, http.StatusForbidden, "permission_denied", "missing permission "+name)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Authenticator) contextWithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a == nil || a.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}

func claimAsString(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func claimAsBool(claims map[string]interface{}, key string) bool {
	v, _ := claims[key].(bool)
	return v
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondAuthError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}

func respondVerificationError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTokenExpired), firebaseauth.IsIDTokenExpired(err):
		respondAuthError(ctx, w, http.StatusUnauthorized, "token_expired", "firebase id token expired")
	case firebaseauth.IsIDTokenRevoked(err):
		respondAuthError(ctx, w, http.StatusUnauthorized, "token_revoked", "firebase session revoked")
	case errors.Is(err, ErrTokenInvalid), firebaseauth.IsIDTokenInvalid(err):
		respondAuthError(ctx, w, http.StatusUnauthorized, "invalid_token", "firebase id token invalid")
	default:
		respondAuthError(ctx, w, http.StatusUnauthorized, "invalid_token", "firebase id token verification failed")
	}
}

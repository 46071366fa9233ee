package auth

import (
	"context"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/partner-scorecard/api/internal/domain"
)

// Identity captures the authenticated principal. Email, UID and Locale come from the Firebase ID
// token; Account is filled in from the users collection when the account resolver finds a record.
type Identity struct {
	UID           string
	Email         string
	EmailVerified bool
	Name          string
	Locale        string

	Account *domain.Account

	token *firebaseauth.Token
}

// Token exposes the decoded Firebase ID token associated with this identity.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

// Registered reports whether an account record exists for the identity.
func (i *Identity) Registered() bool {
	return i != nil && i.Account != nil
}

// Status returns the account status, or empty when the caller has not signed up.
func (i *Identity) Status() domain.AccountStatus {
	if !i.Registered() {
		return ""
	}
	return i.Account.Status
}

// Approved reports whether the caller may use the application.
func (i *Identity) Approved() bool {
	return i.Status() == domain.AccountStatusApproved
}

// Caller converts the identity into the explicit caller value passed to services. Callers without
// an account get the user role.
func (i *Identity) Caller() domain.Caller {
	if i == nil {
		return domain.Caller{}
	}
	role := domain.RoleUser
	if i.Account != nil && i.Account.Role.Valid() {
		role = i.Account.Role
	}
	return domain.Caller{Email: i.Email, Role: role}
}

// Permissions returns the capability set of the caller.
func (i *Identity) Permissions() domain.Permission {
	return i.Caller().Permissions()
}

type contextKey string

const identityContextKey contextKey = "github.com/partner-scorecard/api/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// NormalizeEmail lower-cases and trims an address so it can be used as an account key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

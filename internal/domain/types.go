package domain

import (
	"strings"
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// PartnerScope distinguishes domestic partners from overseas ones. Overseas partners answer the
// additional overseas question set.
type PartnerScope string

const (
	// ScopeDomestic marks a partner operating in the home market.
	ScopeDomestic PartnerScope = "domestic"
	// ScopeOverseas marks a partner abroad.
	ScopeOverseas PartnerScope = "overseas"
)

// Valid reports whether the scope is one of the known values.
func (s PartnerScope) Valid() bool {
	return s == ScopeDomestic || s == ScopeOverseas
}

// ParsePartnerScope normalises raw input into a scope. ok is false for unknown values.
func ParsePartnerScope(raw string) (PartnerScope, bool) {
	scope := PartnerScope(strings.ToLower(strings.TrimSpace(raw)))
	return scope, scope.Valid()
}

// Partner is a registered business partner.
type Partner struct {
	ID        string
	Scope     PartnerScope
	Country   string
	Name      string
	Org       string
	Email     string
	Phone     string
	Archived  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Evaluation is one immutable scoring of a partner. Scope is frozen at evaluation time.
type Evaluation struct {
	ID              string
	PartnerID       string
	Scope           PartnerScope
	Version         int
	AnswersCommon   []int
	AnswersOverseas []int
	TotalScore      float64
	Rating          Rating
	Note            string
	CreatedAt       time.Time
	CreatedBy       string
}

// Caller is the resolved identity of whoever is invoking an operation.
type Caller struct {
	Email string
	Role  Role
}

// Permissions resolves the caller's capability set.
func (c Caller) Permissions() Permission {
	return PermissionsFor(c.Role)
}

// AccountStatus tracks where an account sits in the approval workflow.
type AccountStatus string

const (
	AccountStatusPending  AccountStatus = "pending"
	AccountStatusApproved AccountStatus = "approved"
	AccountStatusRejected AccountStatus = "rejected"
	AccountStatusDeleted  AccountStatus = "deleted"
)

// Valid reports whether the status is known.
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusPending, AccountStatusApproved, AccountStatusRejected, AccountStatusDeleted:
		return true
	}
	return false
}

// Account is a user record keyed by email.
type Account struct {
	Email           string
	DisplayName     string
	Role            Role
	Status          AccountStatus
	ApprovedBy      string
	ApprovedAt      *time.Time
	RejectedBy      string
	RejectedAt      *time.Time
	RejectionReason string
	DeletedBy       string
	DeletedAt       *time.Time
	LastLoginAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CriterionScope identifies which question set a criterion belongs to.
type CriterionScope string

const (
	CriterionScopeCommon   CriterionScope = "common"
	CriterionScopeOverseas CriterionScope = "overseas"
)

// Valid reports whether the criterion scope is known.
func (s CriterionScope) Valid() bool {
	return s == CriterionScopeCommon || s == CriterionScopeOverseas
}

// Criterion is an admin-maintained copy of a catalog question.
type Criterion struct {
	ID         string
	Scope      CriterionScope
	Category   string
	QuestionID string
	Text       string
	Order      int
	UpdatedAt  time.Time
	UpdatedBy  string
}

// DefaultCriteria expands the built-in question catalog into criteria records ordered as asked.
func DefaultCriteria() []Criterion {
	out := make([]Criterion, 0, len(commonQuestions)+len(overseasQuestions))
	for i, q := range commonQuestions {
		out = append(out, Criterion{Scope: CriterionScopeCommon, Category: q.Category, QuestionID: q.ID, Text: q.Text, Order: i + 1})
	}
	for i, q := range overseasQuestions {
		out = append(out, Criterion{Scope: CriterionScopeOverseas, Category: q.Category, QuestionID: q.ID, Text: q.Text, Order: i + 1})
	}
	return out
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

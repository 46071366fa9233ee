package services

import (
	"context"
	"time"

	domain "github.com/partner-scorecard/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Partner            = domain.Partner
	Evaluation         = domain.Evaluation
	Account            = domain.Account
	Criterion          = domain.Criterion
	Caller             = domain.Caller
	Backup             = domain.Backup
	SystemHealthReport = domain.SystemHealthReport
)

// PartnerService manages partner master data and the archive (trash) lifecycle.
type PartnerService interface {
	CreatePartner(ctx context.Context, cmd CreatePartnerCommand) (Partner, error)
	GetPartner(ctx context.Context, partnerID string) (Partner, error)
	UpdatePartner(ctx context.Context, cmd UpdatePartnerCommand) (Partner, error)
	ListPartners(ctx context.Context, filter PartnerListFilter) (domain.CursorPage[Partner], error)
	SearchPartners(ctx context.Context, query string) ([]Partner, error)
	ArchivePartner(ctx context.Context, cmd PartnerArchiveCommand) (Partner, error)
	RestorePartner(ctx context.Context, cmd PartnerArchiveCommand) (Partner, error)
	ListArchived(ctx context.Context) ([]Partner, error)
}

// CreatePartnerCommand carries the attributes of a new partner.
type CreatePartnerCommand struct {
	Actor   Caller
	Scope   string
	Country string
	Name    string
	Org     string
	Email   string
	Phone   string
}

// UpdatePartnerCommand applies a partial update. Nil fields are left untouched; an empty optional
// field clears it.
type UpdatePartnerCommand struct {
	Actor     Caller
	PartnerID string
	Scope     *string
	Country   *string
	Name      *string
	Org       *string
	Email     *string
	Phone     *string
}

// PartnerArchiveCommand identifies a partner to archive or restore.
type PartnerArchiveCommand struct {
	Actor     Caller
	PartnerID string
}

// PartnerListFilter selects active or archived partners, one page at a time.
type PartnerListFilter struct {
	Archived   bool
	Pagination Pagination
}

// EvaluationService scores partners and maintains their evaluation history.
type EvaluationService interface {
	Preview(ctx context.Context, cmd PreviewCommand) (ScorePreview, error)
	SaveEvaluation(ctx context.Context, cmd SaveEvaluationCommand) (Evaluation, error)
	ListHistory(ctx context.Context, partnerID string) ([]Evaluation, error)
	LatestEvaluation(ctx context.Context, partnerID string) (Evaluation, error)
	GetEvaluation(ctx context.Context, evaluationID string) (Evaluation, error)
	Prefill(ctx context.Context, partnerID, fromEvaluationID string) (EvaluationPrefill, error)
}

// PreviewCommand holds a possibly incomplete answer set. Unanswered questions are NaN.
type PreviewCommand struct {
	Scope           string
	AnswersCommon   []float64
	AnswersOverseas []float64
}

// ScorePreview is the lenient live score for an answer set.
type ScorePreview struct {
	Scope      domain.PartnerScope
	TotalScore float64
	Rating     domain.Rating
	ItemCount  int
}

// SaveEvaluationCommand persists a fully answered evaluation.
type SaveEvaluationCommand struct {
	Actor           Caller
	PartnerID       string
	AnswersCommon   []int
	AnswersOverseas []int
	Note            string
}

// EvaluationPrefill seeds a re-evaluation form from an earlier evaluation.
type EvaluationPrefill struct {
	PartnerID       string
	FromID          string
	FromVersion     int
	Scope           domain.PartnerScope
	AnswersCommon   []int
	AnswersOverseas []int
	Note            string
}

// AccountService implements the sign-up and approval workflow.
type AccountService interface {
	SignUp(ctx context.Context, cmd SignUpCommand) (Account, error)
	Me(ctx context.Context, email string) (Account, error)
	ListAccounts(ctx context.Context, status domain.AccountStatus) ([]Account, error)
	Approve(ctx context.Context, cmd ApproveAccountCommand) (Account, error)
	Reject(ctx context.Context, cmd RejectAccountCommand) (Account, error)
	ChangeRole(ctx context.Context, cmd ChangeRoleCommand) (Account, error)
	SoftDelete(ctx context.Context, cmd DeleteAccountCommand) (Account, error)
	PermanentDelete(ctx context.Context, cmd DeleteAccountCommand) error
}

// SignUpCommand registers the verified caller.
type SignUpCommand struct {
	Email       string
	DisplayName string
}

// ApproveAccountCommand approves an account and assigns its role.
type ApproveAccountCommand struct {
	Actor Caller
	Email string
	Role  string
}

// RejectAccountCommand rejects an account with an optional reason.
type RejectAccountCommand struct {
	Actor  Caller
	Email  string
	Reason string
}

// ChangeRoleCommand sets the role of an account in any status.
type ChangeRoleCommand struct {
	Actor Caller
	Email string
	Role  string
}

// DeleteAccountCommand identifies the account to delete.
type DeleteAccountCommand struct {
	Actor Caller
	Email string
}

// CriteriaService maintains the editable copy of the question catalog.
type CriteriaService interface {
	List(ctx context.Context) ([]Criterion, error)
	Create(ctx context.Context, cmd UpsertCriterionCommand) (Criterion, error)
	Update(ctx context.Context, cmd UpsertCriterionCommand) (Criterion, error)
	Delete(ctx context.Context, criterionID string) error
	Seed(ctx context.Context, actor Caller) (int, error)
}

// UpsertCriterionCommand carries criterion fields. ID is ignored on create.
type UpsertCriterionCommand struct {
	Actor      Caller
	ID         string
	Scope      string
	Category   string
	QuestionID string
	Text       string
	Order      int
}

// ExportService produces CSV exports and backups.
type ExportService interface {
	PartnersCSV(ctx context.Context, cmd PartnersCSVCommand) (ExportFile, error)
	BuildBackup(ctx context.Context, actor string) (Backup, error)
	BackupFile(ctx context.Context, cmd BackupFileCommand) (ExportFile, error)
	RunScheduledBackup(ctx context.Context, cmd RunBackupCommand) (BackupRun, error)
}

// PartnersCSVCommand requests the partner export in the caller's label language.
type PartnersCSVCommand struct {
	Actor          Caller
	AcceptLanguage string
}

// BackupFileCommand requests a backup rendered for download.
type BackupFileCommand struct {
	Actor  Caller
	Format string
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// RunBackupCommand triggers a stored backup.
type RunBackupCommand struct {
	Trigger string
	Actor   string
}

// BackupRun reports a stored backup.
type BackupRun struct {
	RunID       string
	Bucket      string
	Object      string
	Partners    int
	Evaluations int
	DownloadURL string
	URLExpires  time.Time
	ExportedAt  time.Time
}

// CounterService hands out sequence numbers.
type CounterService interface {
	NextEvaluationVersion(ctx context.Context, partnerID string, floor int) (int, error)
}

// SystemService exposes operational information.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

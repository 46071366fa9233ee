package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domain "github.com/partner-scorecard/api/internal/domain"
	"github.com/partner-scorecard/api/internal/platform/auth"
	"github.com/partner-scorecard/api/internal/services"
)

var testNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func approvedIdentity(email string, role domain.Role) *auth.Identity {
	return &auth.Identity{
		UID:           "uid-" + email,
		Email:         email,
		EmailVerified: true,
		Account: &domain.Account{
			Email:  email,
			Role:   role,
			Status: domain.AccountStatusApproved,
		},
	}
}

func withIdentity(identity *auth.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identity != nil {
				r = r.WithContext(auth.WithIdentity(r.Context(), identity))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func serve(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

type stubPartnerService struct {
	created  []services.CreatePartnerCommand
	updated  []services.UpdatePartnerCommand
	archived []services.PartnerArchiveCommand
	filters  []services.PartnerListFilter
	queries  []string

	partner services.Partner
	page    domain.CursorPage[services.Partner]
	trash   []services.Partner
	err     error
}

func (s *stubPartnerService) CreatePartner(_ context.Context, cmd services.CreatePartnerCommand) (services.Partner, error) {
	s.created = append(s.created, cmd)
	return s.partner, s.err
}

func (s *stubPartnerService) GetPartner(_ context.Context, id string) (services.Partner, error) {
	if s.err != nil {
		return services.Partner{}, s.err
	}
	if id != s.partner.ID {
		return services.Partner{}, services.ErrPartnerNotFound
	}
	return s.partner, nil
}

func (s *stubPartnerService) UpdatePartner(_ context.Context, cmd services.UpdatePartnerCommand) (services.Partner, error) {
	s.updated = append(s.updated, cmd)
	return s.partner, s.err
}

func (s *stubPartnerService) ListPartners(_ context.Context, filter services.PartnerListFilter) (domain.CursorPage[services.Partner], error) {
	s.filters = append(s.filters, filter)
	return s.page, s.err
}

func (s *stubPartnerService) SearchPartners(_ context.Context, query string) ([]services.Partner, error) {
	s.queries = append(s.queries, query)
	return s.page.Items, s.err
}

func (s *stubPartnerService) ArchivePartner(_ context.Context, cmd services.PartnerArchiveCommand) (services.Partner, error) {
	s.archived = append(s.archived, cmd)
	p := s.partner
	p.Archived = true
	return p, s.err
}

func (s *stubPartnerService) RestorePartner(_ context.Context, cmd services.PartnerArchiveCommand) (services.Partner, error) {
	s.archived = append(s.archived, cmd)
	return s.partner, s.err
}

func (s *stubPartnerService) ListArchived(context.Context) ([]services.Partner, error) {
	return s.trash, s.err
}

type stubEvaluationService struct {
	previews []services.PreviewCommand
	saves    []services.SaveEvaluationCommand

	preview    services.ScorePreview
	evaluation services.Evaluation
	history    []services.Evaluation
	prefill    services.EvaluationPrefill
	err        error
	// scope, when set, runs the strict answer gate for that scope before returning.
	scope domain.PartnerScope
}

func (s *stubEvaluationService) Preview(_ context.Context, cmd services.PreviewCommand) (services.ScorePreview, error) {
	s.previews = append(s.previews, cmd)
	return s.preview, s.err
}

func (s *stubEvaluationService) SaveEvaluation(_ context.Context, cmd services.SaveEvaluationCommand) (services.Evaluation, error) {
	s.saves = append(s.saves, cmd)
	if s.scope != "" {
		if err := domain.ValidateAnswers(s.scope, cmd.AnswersCommon, cmd.AnswersOverseas); err != nil {
			return services.Evaluation{}, fmt.Errorf("%w: %w", services.ErrEvaluationInvalid, err)
		}
	}
	return s.evaluation, s.err
}

func (s *stubEvaluationService) ListHistory(context.Context, string) ([]services.Evaluation, error) {
	return s.history, s.err
}

func (s *stubEvaluationService) LatestEvaluation(context.Context, string) (services.Evaluation, error) {
	return s.evaluation, s.err
}

func (s *stubEvaluationService) GetEvaluation(context.Context, string) (services.Evaluation, error) {
	return s.evaluation, s.err
}

func (s *stubEvaluationService) Prefill(_ context.Context, partnerID, from string) (services.EvaluationPrefill, error) {
	p := s.prefill
	p.PartnerID = partnerID
	if from != "" {
		p.FromID = from
	}
	return p, s.err
}

type stubAccountService struct {
	approvals []services.ApproveAccountCommand
	rejects   []services.RejectAccountCommand
	roles     []services.ChangeRoleCommand
	deletes   []services.DeleteAccountCommand
	purges    []services.DeleteAccountCommand
	signUps   []services.SignUpCommand
	statuses  []domain.AccountStatus

	account  services.Account
	accounts []services.Account
	err      error
}

func (s *stubAccountService) SignUp(_ context.Context, cmd services.SignUpCommand) (services.Account, error) {
	s.signUps = append(s.signUps, cmd)
	return s.account, s.err
}

func (s *stubAccountService) Me(context.Context, string) (services.Account, error) {
	return s.account, s.err
}

func (s *stubAccountService) ListAccounts(_ context.Context, status domain.AccountStatus) ([]services.Account, error) {
	s.statuses = append(s.statuses, status)
	return s.accounts, s.err
}

func (s *stubAccountService) Approve(_ context.Context, cmd services.ApproveAccountCommand) (services.Account, error) {
	s.approvals = append(s.approvals, cmd)
	return s.account, s.err
}

func (s *stubAccountService) Reject(_ context.Context, cmd services.RejectAccountCommand) (services.Account, error) {
	s.rejects = append(s.rejects, cmd)
	return s.account, s.err
}

func (s *stubAccountService) ChangeRole(_ context.Context, cmd services.ChangeRoleCommand) (services.Account, error) {
	s.roles = append(s.roles, cmd)
	return s.account, s.err
}

func (s *stubAccountService) SoftDelete(_ context.Context, cmd services.DeleteAccountCommand) (services.Account, error) {
	s.deletes = append(s.deletes, cmd)
	return s.account, s.err
}

func (s *stubAccountService) PermanentDelete(_ context.Context, cmd services.DeleteAccountCommand) error {
	s.purges = append(s.purges, cmd)
	return s.err
}

type stubCriteriaService struct {
	upserts []services.UpsertCriterionCommand
	deleted []string

	criteria []services.Criterion
	written  int
	err      error
}

func (s *stubCriteriaService) List(context.Context) ([]services.Criterion, error) {
	return s.criteria, s.err
}

func (s *stubCriteriaService) Create(_ context.Context, cmd services.UpsertCriterionCommand) (services.Criterion, error) {
	s.upserts = append(s.upserts, cmd)
	return services.Criterion{ID: "crit-1", Scope: domain.CriterionScope(cmd.Scope), Text: cmd.Text, Order: cmd.Order}, s.err
}

func (s *stubCriteriaService) Update(_ context.Context, cmd services.UpsertCriterionCommand) (services.Criterion, error) {
	s.upserts = append(s.upserts, cmd)
	return services.Criterion{ID: cmd.ID, Scope: domain.CriterionScope(cmd.Scope), Text: cmd.Text, Order: cmd.Order}, s.err
}

func (s *stubCriteriaService) Delete(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return s.err
}

func (s *stubCriteriaService) Seed(context.Context, services.Caller) (int, error) {
	return s.written, s.err
}

type stubExportService struct {
	csvCommands    []services.PartnersCSVCommand
	backupCommands []services.BackupFileCommand
	runs           []services.RunBackupCommand

	file services.ExportFile
	run  services.BackupRun
	err  error
}

func (s *stubExportService) PartnersCSV(_ context.Context, cmd services.PartnersCSVCommand) (services.ExportFile, error) {
	s.csvCommands = append(s.csvCommands, cmd)
	return s.file, s.err
}

func (s *stubExportService) BuildBackup(context.Context, string) (services.Backup, error) {
	return services.Backup{}, s.err
}

func (s *stubExportService) BackupFile(_ context.Context, cmd services.BackupFileCommand) (services.ExportFile, error) {
	s.backupCommands = append(s.backupCommands, cmd)
	return s.file, s.err
}

func (s *stubExportService) RunScheduledBackup(_ context.Context, cmd services.RunBackupCommand) (services.BackupRun, error) {
	s.runs = append(s.runs, cmd)
	return s.run, s.err
}

var (
	_ services.PartnerService    = (*stubPartnerService)(nil)
	_ services.EvaluationService = (*stubEvaluationService)(nil)
	_ services.AccountService    = (*stubAccountService)(nil)
	_ services.CriteriaService   = (*stubCriteriaService)(nil)
	_ services.ExportService     = (*stubExportService)(nil)
	_ services.SystemService     = (*stubSystemService)(nil)
)

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	domain "github.com/partner-scorecard/api/internal/domain"
	"github.com/partner-scorecard/api/internal/platform/requestctx"
	pstorage "github.com/partner-scorecard/api/internal/platform/storage"
	"github.com/partner-scorecard/api/internal/repositories"
)

const (
	backupFormatJSON     = "json"
	backupFormatCSV      = "csv"
	csvContentType       = "text/csv; charset=utf-8"
	jsonContentType      = "application/json; charset=utf-8"
	scheduledActor       = "scheduler"
	defaultBackupTrigger = "manual"
)

var (
	// ErrExportForbidden indicates the caller lacks the export or backup capability.
	ErrExportForbidden = errors.New("export: forbidden")
	// ErrExportInvalid indicates an unsupported export request.
	ErrExportInvalid = errors.New("export: invalid input")
	// ErrBackupInvalid indicates a generated backup did not match the backup schema.
	ErrBackupInvalid = errors.New("export: backup failed schema validation")
	// ErrBackupNotConfigured indicates object storage is not configured for stored backups.
	ErrBackupNotConfigured = errors.New("export: backup storage not configured")
)

// BackupUploader writes a backup object.
type BackupUploader interface {
	Upload(ctx context.Context, in pstorage.UploadInput) error
}

// DownloadURLSigner issues time-limited download links.
type DownloadURLSigner interface {
	DownloadURL(ctx context.Context, bucket, object string, opts pstorage.DownloadOptions) (pstorage.SignedURL, error)
}

// ExportServiceDeps bundles collaborators required to construct an export service.
type ExportServiceDeps struct {
	Partners     repositories.PartnerRepository
	Evaluations  repositories.EvaluationRepository
	Uploader     BackupUploader
	URLSigner    DownloadURLSigner
	Validate     func(document []byte) error
	Events       EventPublisher
	Metrics      EvaluationRecorder
	Bucket       string
	BackupPrefix string
	URLTTL       time.Duration
	Clock        func() time.Time
	IDGen        func() string
}

type exportService struct {
	partners    repositories.PartnerRepository
	evaluations repositories.EvaluationRepository
	uploader    BackupUploader
	signer      DownloadURLSigner
	validate    func([]byte) error
	events      EventPublisher
	metrics     EvaluationRecorder
	bucket      string
	prefix      string
	urlTTL      time.Duration
	clock       func() time.Time
	newID       func() string
}

var _ ExportService = (*exportService)(nil)

// NewExportService wires repositories and, optionally, object storage for stored backups.
func NewExportService(deps ExportServiceDeps) (ExportService, error) {
	if deps.Partners == nil {
		return nil, errors.New("export service: partner repository is required")
	}
	if deps.Evaluations == nil {
		return nil, errors.New("export service: evaluation repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &exportService{
		partners:    deps.Partners,
		evaluations: deps.Evaluations,
		uploader:    deps.Uploader,
		signer:      deps.URLSigner,
		validate:    deps.Validate,
		events:      deps.Events,
		metrics:     deps.Metrics,
		bucket:      strings.TrimSpace(deps.Bucket),
		prefix:      deps.BackupPrefix,
		urlTTL:      deps.URLTTL,
		clock:       func() time.Time { return clock().UTC() },
		newID:       idGen,
	}, nil
}

// PartnersCSV renders active partners with their latest evaluation.
func (s *exportService) PartnersCSV(ctx context.Context, cmd PartnersCSVCommand) (ExportFile, error) {
	if !cmd.Actor.Permissions().CanExportData {
		return ExportFile{}, ErrExportForbidden
	}
	partners, evaluations, err := s.load(ctx)
	if err != nil {
		return ExportFile{}, err
	}
	labels := domain.LabelsFor(cmd.AcceptLanguage)
	body := domain.PartnersCSV(partners, domain.LatestByPartner(evaluations), labels)
	return ExportFile{
		Filename:    fmt.Sprintf("partners-%s.csv", s.clock().Format("2006-01-02")),
		ContentType: csvContentType,
		Body:        []byte(body),
	}, nil
}

// BuildBackup assembles the backup document of active partners and every evaluation.
func (s *exportService) BuildBackup(ctx context.Context, actor string) (Backup, error) {
	partners, evaluations, err := s.load(ctx)
	if err != nil {
		return Backup{}, err
	}
	return domain.NewBackup(partners, evaluations, s.clock(), actor), nil
}

func (s *exportService) BackupFile(ctx context.Context, cmd BackupFileCommand) (ExportFile, error) {
	if !cmd.Actor.Permissions().CanBackupData {
		return ExportFile{}, ErrExportForbidden
	}
	format := strings.ToLower(strings.TrimSpace(cmd.Format))
	if format == "" {
		format = backupFormatJSON
	}
	if format != backupFormatJSON && format != backupFormatCSV {
		return ExportFile{}, fmt.Errorf("%w: format must be json or csv", ErrExportInvalid)
	}

	backup, err := s.BuildBackup(ctx, cmd.Actor.Email)
	if err != nil {
		return ExportFile{}, err
	}
	date := s.clock().Format("2006-01-02")
	if format == backupFormatCSV {
		return ExportFile{
			Filename:    fmt.Sprintf("partner-backup-%s.csv", date),
			ContentType: csvContentType,
			Body:        []byte(domain.BackupCSV(backup)),
		}, nil
	}
	body, err := json.MarshalIndent(backup, "", "  ")
	if err != nil {
		return ExportFile{}, fmt.Errorf("export: encode backup: %w", err)
	}
	return ExportFile{
		Filename:    fmt.Sprintf("partner-backup-%s.json", date),
		ContentType: jsonContentType,
		Body:        body,
	}, nil
}

// RunScheduledBackup builds, validates and uploads a backup, then returns a signed download link.
func (s *exportService) RunScheduledBackup(ctx context.Context, cmd RunBackupCommand) (BackupRun, error) {
	if s.uploader == nil || s.bucket == "" {
		return BackupRun{}, ErrBackupNotConfigured
	}
	trigger := strings.TrimSpace(cmd.Trigger)
	if trigger == "" {
		trigger = defaultBackupTrigger
	}
	actor := strings.TrimSpace(cmd.Actor)
	if actor == "" {
		actor = scheduledActor
	}

	backup, err := s.BuildBackup(ctx, actor)
	if err != nil {
		return BackupRun{}, err
	}
	body, err := json.Marshal(backup)
	if err != nil {
		return BackupRun{}, fmt.Errorf("export: encode backup: %w", err)
	}
	if s.validate != nil {
		if err := s.validate(body); err != nil {
			return BackupRun{}, fmt.Errorf("%w: %w", ErrBackupInvalid, err)
		}
	}

	now := s.clock()
	runID := s.newID()
	object, err := pstorage.BackupObjectPath(s.prefix, runID, backupFormatJSON, now)
	if err != nil {
		return BackupRun{}, err
	}
	if err := s.uploader.Upload(ctx, pstorage.UploadInput{
		Bucket:      s.bucket,
		Object:      object,
		ContentType: jsonContentType,
		Data:        body,
		Metadata:    map[string]string{"runId": runID, "trigger": trigger, "exportedBy": actor},
	}); err != nil {
		return BackupRun{}, err
	}

	run := BackupRun{
		RunID:       runID,
		Bucket:      s.bucket,
		Object:      object,
		Partners:    len(backup.Partners),
		Evaluations: len(backup.Evaluations),
		ExportedAt:  now,
	}
	if s.signer != nil {
		signed, err := s.signer.DownloadURL(ctx, s.bucket, object, pstorage.DownloadOptions{
			ExpiresIn:   s.urlTTL,
			Filename:    fmt.Sprintf("partner-backup-%s.json", now.Format("2006-01-02")),
			ContentType: jsonContentType,
		})
		if err != nil {
			requestctx.Logger(ctx).Warn("sign backup download url failed", zap.String("object", object), zap.Error(err))
		} else {
			run.DownloadURL = signed.URL
			run.URLExpires = signed.ExpiresAt
		}
	}

	if s.metrics != nil {
		s.metrics.RecordBackup(ctx, trigger)
	}
	s.publishCompleted(ctx, run, trigger, actor)
	return run, nil
}

func (s *exportService) publishCompleted(ctx context.Context, run BackupRun, trigger, actor string) {
	if s.events == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()
	_, err := s.events.PublishBackupCompleted(pubCtx, BackupCompletedEvent{
		RunID:       run.RunID,
		Trigger:     trigger,
		Bucket:      run.Bucket,
		Object:      run.Object,
		Partners:    run.Partners,
		Evaluations: run.Evaluations,
		ExportedBy:  actor,
		ExportedAt:  run.ExportedAt,
	})
	if err != nil {
		requestctx.Logger(ctx).Warn("publish backup.completed failed", zap.String("runId", run.RunID), zap.Error(err))
	}
}

// load reads active partners and all evaluations concurrently.
func (s *exportService) load(ctx context.Context) ([]Partner, []Evaluation, error) {
	var (
		partners    []Partner
		evaluations []Evaluation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		partners, err = s.partners.ListAll(gctx, false)
		return err
	})
	g.Go(func() error {
		var err error
		evaluations, err = s.evaluations.ListAll(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, mapRepositoryError(err, nil, nil)
	}
	return partners, evaluations, nil
}

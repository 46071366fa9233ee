package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/partner-scorecard/api/internal/domain"
	"github.com/partner-scorecard/api/internal/repositories"
)

// BuildInfo describes the running binary for health responses.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps configures the health reporter. Critical names the checks whose failure takes
// the whole API down; it defaults to firestore since every partner and evaluation read needs it.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Critical         []string
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	probes   repositories.HealthRepository
	critical map[string]bool
	now      func() time.Time
	build    BuildInfo
}

var _ SystemService = (*systemService)(nil)

func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	critical := deps.Critical
	if len(critical) == 0 {
		critical = []string{"firestore"}
	}
	svc := &systemService{
		probes:   deps.HealthRepository,
		critical: make(map[string]bool, len(critical)),
		now:      func() time.Time { return now().UTC() },
		build:    deps.Build,
	}
	for _, name := range critical {
		svc.critical[strings.TrimSpace(name)] = true
	}
	if svc.build.StartedAt.IsZero() {
		svc.build.StartedAt = svc.now()
	}
	return svc, nil
}

// HealthReport runs the dependency probes and grades the result. A failing critical check yields
// error; any other failing check only degrades the report.
func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	report, err := s.probes.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	now := s.now()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	if report.Version == "" {
		report.Version = s.build.Version
	}
	if report.CommitSHA == "" {
		report.CommitSHA = s.build.CommitSHA
	}
	if report.Environment == "" {
		report.Environment = s.build.Environment
	}
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	report.Status = s.grade(report.Checks)
	return report, nil
}

func (s *systemService) grade(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for name, check := range checks {
		if check.Status == "" || check.Status == domain.HealthStatusOK {
			continue
		}
		if check.Status == domain.HealthStatusError && s.critical[name] {
			return domain.HealthStatusError
		}
		status = domain.HealthStatusDegraded
	}
	return status
}

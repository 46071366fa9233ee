package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/partner-scorecard/api/internal/domain"
	"github.com/partner-scorecard/api/internal/platform/auth"
	"github.com/partner-scorecard/api/internal/platform/config"
	"github.com/partner-scorecard/api/internal/platform/schemas"
	"github.com/partner-scorecard/api/internal/repositories"
	"github.com/partner-scorecard/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Partners    services.PartnerService
	Evaluations services.EvaluationService
	Accounts    services.AccountService
	Criteria    services.CriteriaService
	Exports     services.ExportService
	Counters    services.CounterService
	System      services.SystemService
}

// Infrastructure carries optional collaborators backed by cloud clients. Nil members disable the
// features that depend on them.
type Infrastructure struct {
	Sessions  services.SessionRevoker
	Uploader  services.BackupUploader
	URLSigner services.DownloadURLSigner
	Events    services.EventPublisher
	Metrics   services.EvaluationRecorder
	Build     services.BuildInfo
	Clock     func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring passes the Firestore
// registry, while tests can supply in-memory registries.
func NewContainer(cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(reg, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

// AccountResolver loads account records for the authentication middleware. Unknown emails
// resolve to a nil account so sign-up remains reachable.
func (c *Container) AccountResolver() auth.AccountResolver {
	if c == nil || c.Repositories == nil || c.Repositories.Accounts() == nil {
		return nil
	}
	accounts := c.Repositories.Accounts()
	return auth.AccountResolverFunc(func(ctx context.Context, email string) (*domain.Account, error) {
		account, err := accounts.FindByEmail(ctx, email)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return nil, nil
			}
			return nil, err
		}
		return &account, nil
	})
}

func buildServices(reg repositories.Registry, cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services
	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}

	counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
		Repository: reg.Counters(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build counter service: %w", err)
	}
	svc.Counters = counterSvc

	partnerSvc, err := services.NewPartnerService(services.PartnerServiceDeps{
		Partners: reg.Partners(),
		Clock:    clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build partner service: %w", err)
	}
	svc.Partners = partnerSvc

	evaluationSvc, err := services.NewEvaluationService(services.EvaluationServiceDeps{
		Partners:    reg.Partners(),
		Evaluations: reg.Evaluations(),
		Counters:    counterSvc,
		Events:      infra.Events,
		Metrics:     infra.Metrics,
		Clock:       clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build evaluation service: %w", err)
	}
	svc.Evaluations = evaluationSvc

	accountSvc, err := services.NewAccountService(services.AccountServiceDeps{
		Accounts:        reg.Accounts(),
		Sessions:        infra.Sessions,
		BootstrapAdmins: cfg.Access.BootstrapAdmins,
		Clock:           clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build account service: %w", err)
	}
	svc.Accounts = accountSvc

	criteriaSvc, err := services.NewCriteriaService(services.CriteriaServiceDeps{
		Criteria: reg.Criteria(),
		Clock:    clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build criteria service: %w", err)
	}
	svc.Criteria = criteriaSvc

	exportSvc, err := services.NewExportService(services.ExportServiceDeps{
		Partners:     reg.Partners(),
		Evaluations:  reg.Evaluations(),
		Uploader:     infra.Uploader,
		URLSigner:    infra.URLSigner,
		Validate:     schemas.ValidateBackup,
		Events:       infra.Events,
		Metrics:      infra.Metrics,
		Bucket:       cfg.Storage.ExportsBucket,
		BackupPrefix: cfg.Storage.BackupPrefix,
		URLTTL:       cfg.Storage.SignedURLTTL,
		Clock:        clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build export service: %w", err)
	}
	svc.Exports = exportSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		build := infra.Build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/partner-scorecard/api/internal/di"
	"github.com/partner-scorecard/api/internal/handlers"
	"github.com/partner-scorecard/api/internal/platform/auth"
	"github.com/partner-scorecard/api/internal/platform/config"
	pfirestore "github.com/partner-scorecard/api/internal/platform/firestore"
	"github.com/partner-scorecard/api/internal/platform/idempotency"
	"github.com/partner-scorecard/api/internal/platform/jobs"
	"github.com/partner-scorecard/api/internal/platform/observability"
	"github.com/partner-scorecard/api/internal/platform/secrets"
	platformstorage "github.com/partner-scorecard/api/internal/platform/storage"
	"github.com/partner-scorecard/api/internal/repositories"
	firestoreRepo "github.com/partner-scorecard/api/internal/repositories/firestore"
	"github.com/partner-scorecard/api/internal/services"
)

const serviceName = "partner-scorecard-api"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(observability.WithService(serviceName, envValue(envValues, "API_BUILD_VERSION")))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore, pfirestore.WithClientOptions(clientOptions(cfg)...))
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	storageClient, err := cloudstorage.NewClient(ctx, clientOptions(cfg)...)
	if err != nil {
		logger.Fatal("failed to initialise storage client", zap.Error(err))
	}
	defer func() {
		if err := storageClient.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()
	uploader, err := platformstorage.NewUploader(storageClient)
	if err != nil {
		logger.Fatal("failed to initialise backup uploader", zap.Error(err))
	}

	infra := di.Infrastructure{
		Uploader: uploader,
		Build:    buildInfo,
	}

	if urlSigner := newURLSigner(logger.Named("storage"), cfg.Storage); urlSigner != nil {
		infra.URLSigner = urlSigner
	}

	pubsubClient, publisher := newEventPublisher(ctx, logger.Named("events"), cfg)
	if pubsubClient != nil {
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
	}
	if publisher != nil {
		infra.Events = publisher
	}

	metrics, err := observability.NewEvaluationMetrics(otel.GetMeterProvider(), cfg.Telemetry.MeterName)
	if err != nil {
		logger.Warn("metrics: instrument registration failed", zap.Error(err))
	} else {
		infra.Metrics = metrics
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	infra.Sessions = firebaseVerifier

	healthRepo, err := newHealthRepository(firestoreProvider, fetcher, uploader, cfg.Storage.ExportsBucket)
	if err != nil {
		logger.Warn("health: dependency checks unavailable", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, healthRepo)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}
	container, err := di.NewContainer(cfg, registry, infra)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithAccountResolver(container.AccountResolver()))

	idempotencyStore := idempotency.NewFirestoreStore(firestoreProvider)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg)

	svc := container.Services
	meHandlers := handlers.NewMeHandlers(svc.Accounts)
	scoringHandlers := handlers.NewScoringHandlers(svc.Evaluations)
	partnerHandlers := handlers.NewPartnerHandlers(svc.Partners)
	evaluationHandlers := handlers.NewEvaluationHandlers(svc.Evaluations)
	adminAccountHandlers := handlers.NewAdminAccountHandlers(svc.Accounts)
	adminCriteriaHandlers := handlers.NewAdminCriteriaHandlers(svc.Criteria)
	exportHandlers := handlers.NewExportHandlers(svc.Exports)
	internalBackupHandlers := handlers.NewInternalBackupHandlers(svc.Exports)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithAuthMiddlewares(authenticator.RequireFirebaseAuth()),
		handlers.WithMutationMiddlewares(idempotencyMiddleware),
		handlers.WithMeRoutes(meHandlers.Routes),
		handlers.WithScoringRoutes(scoringHandlers.Routes),
		handlers.WithPartnerRoutes(partnerHandlers.Routes, evaluationHandlers.Routes),
		handlers.WithAdminRoutes(adminAccountHandlers.Routes, adminCriteriaHandlers.Routes),
		handlers.WithExportRoutes(exportHandlers.Routes),
		handlers.WithInternalRoutes(internalBackupHandlers.Routes),
	}
	if oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("partner scorecard api listening", zap.String("environment", buildInfo.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func envValue(env map[string]string, key string) string {
	if env == nil {
		return ""
	}
	return strings.TrimSpace(env[key])
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := envValue(env, "API_BUILD_VERSION")
	if version == "" {
		version = "dev"
	}
	commit := envValue(env, "API_BUILD_COMMIT_SHA")
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func clientOptions(cfg config.Config) []option.ClientOption {
	if path := strings.TrimSpace(cfg.Firebase.CredentialsFile); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// newURLSigner returns nil when no signing key is configured; backups are then stored without a
// download link.
func newURLSigner(logger *zap.Logger, cfg config.StorageConfig) *platformstorage.URLSigner {
	if strings.TrimSpace(cfg.SignerKey) == "" {
		logger.Info("storage: signer key not configured; backup download links disabled")
		return nil
	}
	signer, err := platformstorage.NewServiceAccountSigner(cfg.SignerEmail, cfg.SignerKey)
	if err != nil {
		logger.Warn("storage: signer key rejected; backup download links disabled", zap.Error(err))
		return nil
	}
	urlSigner, err := platformstorage.NewURLSigner(signer)
	if err != nil {
		logger.Warn("storage: url signer init failed", zap.Error(err))
		return nil
	}
	return urlSigner
}

func newEventPublisher(ctx context.Context, logger *zap.Logger, cfg config.Config) (*pubsub.Client, *jobs.PubSubEventPublisher) {
	topicName := strings.TrimSpace(cfg.Events.Topic)
	if topicName == "" || strings.TrimSpace(cfg.Events.ProjectID) == "" {
		logger.Info("events: publishing disabled")
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.Events.ProjectID, clientOptions(cfg)...)
	if err != nil {
		logger.Warn("events: pubsub client init failed; publishing disabled", zap.Error(err))
		return nil, nil
	}
	publisher, err := jobs.NewPubSubEventPublisher(client.Topic(topicName))
	if err != nil {
		logger.Warn("events: publisher init failed", zap.Error(err))
		return client, nil
	}
	return client, publisher
}

func newHealthRepository(provider *pfirestore.Provider, fetcher *secrets.Fetcher, uploader *platformstorage.Uploader, bucket string) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 3)
	if provider != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check:   provider.Ping,
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	if uploader != nil && strings.TrimSpace(bucket) != "" {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "storage",
			Timeout: 2 * time.Second,
			Check: func(ctx context.Context) error {
				return uploader.Ping(ctx, bucket)
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(logger))
	validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(logger))

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}

	return validator.RequireOIDC(audience, issuers, cfg.Security.OIDC.AllowedEmails...)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	defaultProject := envValue(env, "API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = envValue(env, "API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := envValue(env, "API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := envValue(env, "API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists secrets that must resolve. The signer key is only required when it is
// configured as a secret reference.
func requiredSecretNames(env map[string]string) []string {
	ref := envValue(env, "API_STORAGE_SIGNER_KEY")
	if strings.HasPrefix(ref, "secret://") || strings.HasPrefix(ref, "sm://") {
		return []string{"Storage.SignerKey"}
	}
	return nil
}

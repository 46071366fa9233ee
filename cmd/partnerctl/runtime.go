package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/partner-scorecard/api/internal/di"
	"github.com/partner-scorecard/api/internal/platform/config"
	pfirestore "github.com/partner-scorecard/api/internal/platform/firestore"
	"github.com/partner-scorecard/api/internal/platform/observability"
	"github.com/partner-scorecard/api/internal/platform/secrets"
	platformstorage "github.com/partner-scorecard/api/internal/platform/storage"
	firestoreRepo "github.com/partner-scorecard/api/internal/repositories/firestore"
)

// backend holds the clients a maintenance command needs. Close releases all of them.
type backend struct {
	cfg       config.Config
	logger    *zap.Logger
	provider  *pfirestore.Provider
	container *di.Container
	closers   []func(context.Context) error
}

type backendOptions struct {
	storage bool
}

func openBackend(ctx context.Context, opts backendOptions) (*backend, error) {
	logger, err := observability.NewLogger(observability.WithService("partnerctl", ""))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	b := &backend{logger: logger}

	env, err := config.EnvironmentValues()
	if err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	fetcherOpts := []secrets.Option{secrets.WithLogger(logger.Named("secrets"))}
	if project := strings.TrimSpace(env["API_FIREBASE_PROJECT_ID"]); project != "" {
		fetcherOpts = append(fetcherOpts, secrets.WithDefaultProject(project))
	}
	if path := strings.TrimSpace(env["API_SECRET_FALLBACK_FILE"]); path != "" {
		fetcherOpts = append(fetcherOpts, secrets.WithFallbackFile(path))
	}
	fetcher, err := secrets.NewFetcher(ctx, fetcherOpts...)
	if err != nil {
		return nil, fmt.Errorf("init secret fetcher: %w", err)
	}
	b.closers = append(b.closers, func(context.Context) error { return fetcher.Close() })

	b.cfg, err = config.Load(ctx, config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)))
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	var clientOpts []option.ClientOption
	if path := strings.TrimSpace(b.cfg.Firebase.CredentialsFile); path != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(path))
	}

	b.provider = pfirestore.NewProvider(b.cfg.Firestore, pfirestore.WithClientOptions(clientOpts...))
	b.closers = append(b.closers, b.provider.Close)
	if _, err := b.provider.Client(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("connect firestore: %w", err)
	}

	infra := di.Infrastructure{}
	if opts.storage {
		client, err := cloudstorage.NewClient(ctx, clientOpts...)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect storage: %w", err)
		}
		b.closers = append(b.closers, func(context.Context) error { return client.Close() })
		uploader, err := platformstorage.NewUploader(client)
		if err != nil {
			b.Close()
			return nil, err
		}
		infra.Uploader = uploader
		if key := strings.TrimSpace(b.cfg.Storage.SignerKey); key != "" {
			signer, err := platformstorage.NewServiceAccountSigner(b.cfg.Storage.SignerEmail, key)
			if err != nil {
				logger.Warn("storage: signer key rejected; download links disabled", zap.Error(err))
			} else if urlSigner, err := platformstorage.NewURLSigner(signer); err == nil {
				infra.URLSigner = urlSigner
			}
		}
	}

	registry, err := firestoreRepo.NewRegistry(b.provider, nil)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.container, err = di.NewContainer(b.cfg, registry, infra)
	if err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// Close releases clients in reverse order of acquisition.
func (b *backend) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil && b.logger != nil {
		b.logger.Warn("close error", zap.Error(err))
	}
	if b.logger != nil {
		_ = b.logger.Sync()
	}
}

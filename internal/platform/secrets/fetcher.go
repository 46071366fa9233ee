package secrets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	defaultCacheTTL     = 10 * time.Minute
	metricNamespace     = "github.com/partner-scorecard/api/internal/platform/secrets"

	sourceCache    = "cache"
	sourceRemote   = "secret_manager"
	sourceFallback = "fallback"
)

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

// Fetcher resolves secret:// references against Google Secret Manager. Values are cached for a
// bounded time and a local dotenv-style file serves developers without Secret Manager access.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	logger     *zap.Logger

	projectID string
	cacheTTL  time.Duration
	now       func() time.Time

	fallbackPath string
	fallbackOnce sync.Once
	fallbackVals map[string]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[string]cacheEntry

	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter
}

type cacheEntry struct {
	value     string
	fetchedAt time.Time
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

type fetcherConfig struct {
	logger       *zap.Logger
	projectID    string
	fallbackPath string
	cacheTTL     time.Duration
	meter        metric.Meter
	client       secretManagerClient
	clientOpts   []option.ClientOption
	clock        func() time.Time
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) {
		cfg.logger = logger
	}
}

// WithDefaultProject sets the project used when a reference carries no ?project= override.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) {
		cfg.projectID = strings.TrimSpace(projectID)
	}
}

// WithFallbackFile overrides the local fallback file. An empty path disables the fallback.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) {
		cfg.fallbackPath = path
	}
}

// WithCacheTTL bounds how long a resolved value is reused. Zero or negative disables expiry.
func WithCacheTTL(ttl time.Duration) Option {
	return func(cfg *fetcherConfig) {
		cfg.cacheTTL = ttl
	}
}

// WithMeter overrides the meter used for fetch metrics.
func WithMeter(meter metric.Meter) Option {
	return func(cfg *fetcherConfig) {
		cfg.meter = meter
	}
}

// WithSecretManagerClient injects a pre-built client. The fetcher does not close injected clients.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) {
		cfg.client = client
	}
}

// WithClientOptions passes options to the Secret Manager client the fetcher creates.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) {
		cfg.clientOpts = append(cfg.clientOpts, opts...)
	}
}

// WithClock overrides the time source used for cache expiry.
func WithClock(clock func() time.Time) Option {
	return func(cfg *fetcherConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// NewFetcher builds a Fetcher, creating a Secret Manager client unless one was injected. A client
// that cannot be created leaves the fetcher serving the fallback file only.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{
		fallbackPath: defaultFallbackPath,
		cacheTTL:     defaultCacheTTL,
		clock:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.meter == nil {
		cfg.meter = otel.GetMeterProvider().Meter(metricNamespace)
	}

	f := &Fetcher{
		client:       cfg.client,
		logger:       cfg.logger.Named("secrets"),
		projectID:    cfg.projectID,
		cacheTTL:     cfg.cacheTTL,
		now:          cfg.clock,
		fallbackPath: cfg.fallbackPath,
		cache:        make(map[string]cacheEntry),
	}

	if f.client == nil {
		client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
		if err != nil {
			f.logger.Warn("secrets: secret manager unavailable, only the local fallback will be used", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}

	if h, err := cfg.meter.Float64Histogram("secrets.fetch.latency",
		metric.WithDescription("Secret resolution latency"),
		metric.WithUnit("ms"),
	); err == nil {
		f.latency = h
	} else {
		f.logger.Debug("secrets: latency histogram disabled", zap.Error(err))
	}
	if c, err := cfg.meter.Int64Counter("secrets.cache.hits",
		metric.WithDescription("Secret resolutions served from cache"),
	); err == nil {
		f.cacheHits = c
	} else {
		f.logger.Debug("secrets: cache hit counter disabled", zap.Error(err))
	}

	return f, nil
}

// Close releases the Secret Manager client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f == nil || !f.ownsClient || f.client == nil {
		return nil
	}
	return f.client.Close()
}

// ResolveSecret satisfies config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve returns the value for a reference of the form
// secret://<name>[?version=<v>][&project=<id>]. The legacy sm:// scheme is accepted.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	parsed, err := parseReference(canonicalScheme(ref))
	if err != nil {
		return "", err
	}
	key := cacheKey(parsed.Canonical, parsed.Version)

	if value, ok := f.cached(key); ok {
		f.record(ctx, 0, sourceCache, nil)
		if f.cacheHits != nil {
			f.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", maskReference(parsed.Canonical))))
		}
		return value, nil
	}

	start := time.Now()
	value, err := f.fetchRemote(ctx, parsed)
	if err == nil {
		f.record(ctx, time.Since(start), sourceRemote, nil)
		f.store(key, value)
		return value, nil
	}

	if isFallbackError(err) {
		if local, ok := f.lookupFallback(parsed); ok {
			f.logger.Warn("secrets: using local fallback",
				zap.String("secret", maskReference(parsed.Canonical)),
				zap.Error(err),
			)
			f.record(ctx, time.Since(start), sourceFallback, nil)
			f.store(key, local)
			return local, nil
		}
	}

	f.record(ctx, time.Since(start), sourceRemote, err)
	return "", fmt.Errorf("secrets: resolve %s: %w", parsed.Secret, err)
}

// Invalidate drops every cached version of the reference.
func (f *Fetcher) Invalidate(ref string) {
	parsed, err := parseReference(canonicalScheme(ref))
	if err != nil {
		return
	}
	prefix := parsed.Canonical + "#"
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.cache {
		if strings.HasPrefix(key, prefix) {
			delete(f.cache, key)
		}
	}
}

func (f *Fetcher) cached(key string) (string, bool) {
	f.mu.RLock()
	entry, ok := f.cache[key]
	f.mu.RUnlock()
	if !ok {
		return "", false
	}
	if f.cacheTTL > 0 && f.now().Sub(entry.fetchedAt) >= f.cacheTTL {
		return "", false
	}
	return entry.value, true
}

func (f *Fetcher) store(key, value string) {
	f.mu.Lock()
	f.cache[key] = cacheEntry{value: value, fetchedAt: f.now()}
	f.mu.Unlock()
}

func (f *Fetcher) fetchRemote(ctx context.Context, ref parsedReference) (string, error) {
	if f.client == nil {
		return "", status.Error(codes.Unavailable, "secret manager client not configured")
	}
	project := ref.Project
	if project == "" {
		project = f.projectID
	}
	if project == "" {
		return "", errors.New("secrets: project id not configured")
	}
	version := ref.Version
	if version == "" {
		version = "latest"
	}
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, ref.Secret, version),
	})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", errors.New("secrets: empty payload")
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) lookupFallback(ref parsedReference) (string, bool) {
	f.fallbackOnce.Do(f.loadFallback)
	if f.fallbackErr != nil {
		f.logger.Debug("secrets: fallback load error", zap.Error(f.fallbackErr))
		return "", false
	}
	if ref.Version != "" {
		if value, ok := f.fallbackVals[fallbackKey(ref.Secret, ref.Version)]; ok {
			return value, true
		}
	}
	value, ok := f.fallbackVals[fallbackKey(ref.Secret, "")]
	return value, ok
}

// loadFallback reads the dotenv-formatted fallback file. Keys are secret names with hyphens written
// as underscores, optionally suffixed with .<version> to pin a value to one version.
func (f *Fetcher) loadFallback() {
	f.fallbackVals = map[string]string{}
	path := strings.TrimSpace(f.fallbackPath)
	if path == "" {
		return
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	raw, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.fallbackErr = fmt.Errorf("secrets: read fallback file %s: %w", path, err)
		}
		return
	}
	for key, value := range raw {
		f.fallbackVals[strings.ToLower(strings.TrimSpace(key))] = value
	}
}

func fallbackKey(secret, version string) string {
	key := strings.ToLower(strings.ReplaceAll(secret, "-", "_"))
	if version != "" {
		key += "." + version
	}
	return key
}

func (f *Fetcher) record(ctx context.Context, d time.Duration, source string, err error) {
	if f.latency == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("source", source)}
	if err != nil {
		attrs = append(attrs, attribute.String("code", status.Code(err).String()))
	}
	f.latency.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributes(attrs...))
}

type parsedReference struct {
	Canonical string
	Secret    string
	Version   string
	Project   string
}

func parseReference(ref string) (parsedReference, error) {
	if strings.TrimSpace(ref) == "" {
		return parsedReference{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return parsedReference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return parsedReference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	secret := strings.Trim(u.Host+u.Path, "/")
	if secret == "" {
		return parsedReference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	query := u.Query()
	return parsedReference{
		Canonical: "secret://" + secret,
		Secret:    secret,
		Version:   strings.TrimSpace(query.Get("version")),
		Project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

func canonicalScheme(ref string) string {
	trimmed := strings.TrimSpace(ref)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func cacheKey(canonical, version string) string {
	if version == "" {
		version = "latest"
	}
	return canonical + "#" + version
}

func maskReference(ref string) string {
	h := sha256.Sum256([]byte(ref))
	return hex.EncodeToString(h[:8])
}

func isFallbackError(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}

package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultSignedURLTTL         = 15 * time.Minute
	defaultBackupPrefix         = "backups"
	defaultEvaluationTopic      = "partner-evaluations"
	defaultSecurityEnvironment  = "local"
	defaultOIDCJWKSURL          = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer       = "https://accounts.google.com"
	defaultSecurityIAPIssuer    = "https://cloud.google.com/iap"
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
	defaultMeterName            = "github.com/partner-scorecard/api"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Storage     StorageConfig
	Events      EventsConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
	Access      AccessConfig
	Telemetry   TelemetryConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig describes where scheduled backups land and how download links are signed.
type StorageConfig struct {
	ExportsBucket string
	BackupPrefix  string
	SignerEmail   string
	SignerKey     string
	SignedURLTTL  time.Duration
}

// EventsConfig names the Pub/Sub topic receiving evaluation and backup events. An empty topic
// disables publishing.
type EventsConfig struct {
	ProjectID string
	Topic     string
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls Google-signed token verification.
type OIDCConfig struct {
	JWKSURL   string
	Audience  string
	Audiences map[string]string
	Issuers   []string
	// AllowedEmails restricts internal endpoints to the listed service accounts when not empty.
	AllowedEmails []string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// AccessConfig seeds administrator access for a fresh deployment.
type AccessConfig struct {
	BootstrapAdmins []string
}

// TelemetryConfig names the OpenTelemetry meter used for domain metrics.
type TelemetryConfig struct {
	MeterName string
}

// SecretResolver turns a secret:// reference into its value.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError lists required settings that are missing or unusable.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns the offending field paths, e.g. "Firebase.ProjectID".
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError reports a reference the resolver could not turn into a value.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError names required secrets that resolved to nothing. Names are only exposed in
// redacted form so the error is safe to log.
type MissingSecretsError struct {
	redacted []string
}

func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.redacted, ", "))
}

// RedactedNames returns the hashed names of the missing secrets, sorted.
func (e *MissingSecretsError) RedactedNames() []string {
	return append([]string(nil), e.redacted...)
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load and EnvironmentValues.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// WithEnvFile points at a dotenv file with local overrides. An empty path skips it.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap supplies explicit values that win over every other source.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver used for secret:// and sm:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets makes Load fail unless the named fields (e.g. "Storage.SignerKey") resolve
// to a non-empty value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

// env layers the configuration sources: the dotenv file, then the process environment, then the
// explicit map.
type env map[string]string

func readEnv(options loaderOptions) (env, error) {
	values := env{}
	dotenv, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	for k, v := range dotenv {
		values[k] = v
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if key = strings.TrimSpace(key); ok && key != "" {
				values[key] = value
			}
		}
	}
	for k, v := range options.envMap {
		values[k] = v
	}
	return values, nil
}

// EnvironmentValues returns the merged key/value view Load works from, so callers can build the
// secret fetcher before loading.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	return readEnv(newLoaderOptions(opts))
}

func (e env) str(key, fallback string) string {
	if v := e[key]; v != "" {
		return v
	}
	return fallback
}

func (e env) duration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(e[key]); err == nil {
		return d
	}
	return fallback
}

func (e env) integer(key string, fallback int) int {
	if n, err := strconv.Atoi(e[key]); err == nil {
		return n
	}
	return fallback
}

// list splits a comma-separated value, dropping blanks.
func (e env) list(key string) []string {
	out := []string{}
	for _, part := range strings.Split(e[key], ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// lowerList is list with every entry lowercased, for email allowlists.
func (e env) lowerList(key string) []string {
	out := e.list(key)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}

// pairs parses "name=value, name=value" with lowercased names.
func (e env) pairs(key string) map[string]string {
	out := map[string]string{}
	for _, entry := range e.list(key) {
		name, value, ok := strings.Cut(entry, "=")
		name, value = strings.ToLower(strings.TrimSpace(name)), strings.TrimSpace(value)
		if ok && name != "" && value != "" {
			out[name] = value
		}
	}
	return out
}

// Load builds the configuration from defaults, the dotenv file, the environment and explicit
// overrides, resolving the signer key through the secret resolver when it is a reference.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	if options.secret == nil {
		options.secret = SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		})
	}
	e, err := readEnv(options)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         e.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:  e.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: e.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  e.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       e.str("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: e.str("API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    e.str("API_FIRESTORE_PROJECT_ID", e.str("API_FIREBASE_PROJECT_ID", "")),
			EmulatorHost: e.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			ExportsBucket: e.str("API_STORAGE_EXPORTS_BUCKET", ""),
			BackupPrefix:  strings.Trim(e.str("API_STORAGE_BACKUP_PREFIX", defaultBackupPrefix), "/"),
			SignerEmail:   e.str("API_STORAGE_SIGNER_EMAIL", ""),
			SignerKey:     e.str("API_STORAGE_SIGNER_KEY", ""),
			SignedURLTTL:  e.duration("API_STORAGE_SIGNED_URL_TTL", defaultSignedURLTTL),
		},
		Events: EventsConfig{
			ProjectID: e.str("API_EVENTS_PROJECT_ID", e.str("API_FIREBASE_PROJECT_ID", "")),
			Topic:     e.str("API_EVENTS_TOPIC", defaultEvaluationTopic),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(e.str("API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:       e.str("API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience:      e.str("API_SECURITY_OIDC_AUDIENCE", ""),
				Audiences:     e.pairs("API_SECURITY_OIDC_AUDIENCES"),
				Issuers:       e.list("API_SECURITY_OIDC_ISSUERS"),
				AllowedEmails: e.lowerList("API_SECURITY_OIDC_ALLOWED_EMAILS"),
			},
		},
		Idempotency: IdempotencyConfig{
			Header:           e.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              e.duration("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  e.duration("API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: e.integer("API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
		Access: AccessConfig{
			BootstrapAdmins: e.lowerList("API_ACCESS_BOOTSTRAP_ADMINS"),
		},
		Telemetry: TelemetryConfig{
			MeterName: e.str("API_TELEMETRY_METER_NAME", defaultMeterName),
		},
	}

	oidc := &cfg.Security.OIDC
	if len(oidc.Issuers) == 0 {
		oidc.Issuers = []string{defaultSecurityIssuer, defaultSecurityIAPIssuer}
	}
	if oidc.Audience == "" {
		oidc.Audience = oidc.Audiences[cfg.Security.Environment]
	}

	// The signer key is the only value that may live in Secret Manager.
	resolved := map[string]string{}
	if cfg.Storage.SignerKey, err = resolveSecret(ctx, cfg.Storage.SignerKey, options.secret); err != nil {
		return Config{}, err
	}
	resolved["Storage.SignerKey"] = strings.TrimSpace(cfg.Storage.SignerKey)

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string
	check := func(ok bool, field string) {
		if !ok {
			missing = append(missing, field)
		}
	}
	check(cfg.Server.Port != "", "Server.Port")
	check(cfg.Firebase.ProjectID != "", "Firebase.ProjectID")
	check(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")
	check(cfg.Storage.SignedURLTTL > 0, "Storage.SignedURLTTL")
	check(strings.TrimSpace(cfg.Idempotency.Header) != "", "Idempotency.Header")
	check(cfg.Idempotency.TTL > 0, "Idempotency.TTL")
	check(cfg.Idempotency.CleanupInterval > 0, "Idempotency.CleanupInterval")
	check(cfg.Idempotency.CleanupBatchSize > 0, "Idempotency.CleanupBatchSize")
	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	seen := map[string]bool{}
	var redacted []string
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if resolved[name] == "" {
			redacted = append(redacted, redactSecretName(name))
		}
	}
	if len(redacted) == 0 {
		return nil
	}
	sort.Strings(redacted)
	return &MissingSecretsError{redacted: redacted}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

// normalizeSecretReference rewrites the legacy sm:// scheme to secret://.
func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	return values, nil
}

package observability

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/partner-scorecard/api/internal/platform/requestctx"
)

const defaultLogLevel = "info"

// LoggerOption customises NewLogger.
type LoggerOption func(*loggerOptions)

type loggerOptions struct {
	level   string
	service string
	version string
}

// WithLevel overrides the LOG_LEVEL environment variable.
func WithLevel(level string) LoggerOption {
	return func(o *loggerOptions) {
		o.level = level
	}
}

// WithService tags every entry with the service name and build version.
func WithService(name, version string) LoggerOption {
	return func(o *loggerOptions) {
		o.service = strings.TrimSpace(name)
		o.version = strings.TrimSpace(version)
	}
}

// NewLogger constructs a zap logger emitting Cloud Logging compatible JSON.
func NewLogger(opts ...LoggerOption) (*zap.Logger, error) {
	options := loggerOptions{level: os.Getenv("LOG_LEVEL")}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(options.level)))); err != nil {
		_ = level.UnmarshalText([]byte(defaultLogLevel))
	}

	encoderCfg := zapcore.EncoderConfig{
		MessageKey: "message",
		TimeKey:    "timestamp",
		LevelKey:   "severity",
		NameKey:    "logger",
		EncodeTime: zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(strings.ToUpper(level.String()))
		},
		EncodeDuration: zapcore.MillisDurationEncoder,
		CallerKey:      "caller",
		EncodeCaller:   zapcore.ShortCallerEncoder,
		StacktraceKey:  "stacktrace",
	}

	cfg := zap.Config{
		Level:             level,
		Encoding:          "json",
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if options.service != "" {
		logger = logger.With(zap.String("service", options.service))
	}
	if options.version != "" {
		logger = logger.With(zap.String("version", options.version))
	}
	return logger, nil
}

// WithLogger injects the logger into the provided context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// FromContext retrieves the logger from context, defaulting to a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}

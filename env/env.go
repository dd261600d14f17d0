package env

import (
	"context"
	"os"

	"github.com/agentuity/go-resource/logger"
	"github.com/agentuity/go-resource/telemetry"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	EnvRedisURL   = "RESOURCE_REDIS_URL"
	EnvOTLPURL    = "RESOURCE_OTLP_URL"
	EnvOTLPSecret = "RESOURCE_OTLP_SECRET"
)

// FlagOrEnv will try and get a flag from the cobra.Command and if not found, look it up in the environment
// and fallback to defaultValue if non found
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	flagValue, _ := cmd.Flags().GetString(flagName)
	if flagValue != "" {
		return flagValue
	}
	if val, ok := os.LookupEnv(envName); ok {
		return val
	}
	return defaultValue
}

// LogLevel reads --log-level, then RESOURCE_LOG_LEVEL. Unknown names fall
// back to info.
func LogLevel(cmd *cobra.Command) logger.LogLevel {
	level, err := logger.ParseLevel(FlagOrEnv(cmd, "log-level", logger.EnvLogLevel, "info"))
	if err != nil {
		return logger.LevelInfo
	}
	return level
}

// NewLogger returns a logger writing to the command's error stream, JSON
// lines when --log-format is json and the console format otherwise.
func NewLogger(cmd *cobra.Command) logger.Logger {
	level := LogLevel(cmd)
	if format, _ := cmd.Flags().GetString("log-format"); format == "json" {
		return logger.NewJSONLogger(cmd.ErrOrStderr(), level)
	}
	return logger.NewConsoleLoggerWithWriter(cmd.ErrOrStderr(), level)
}

// NewRedis connects to --redis or RESOURCE_REDIS_URL. It returns nil when
// neither is set.
func NewRedis(ctx context.Context, cmd *cobra.Command) (*redis.Client, error) {
	redisURL := FlagOrEnv(cmd, "redis", EnvRedisURL, "")
	if redisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "error connecting to redis at %s", opts.Addr)
	}
	return client, nil
}

// NewTracing returns the tracer provider selected by the cobra flags:
//
// --otlp-url (string): the collector url, tracing is disabled when empty
//
// --otlp-secret (string): shared secret used to sign the bearer token
func NewTracing(ctx context.Context, cmd *cobra.Command, serviceName string) (trace.TracerProvider, func(), error) {
	otlpURL := FlagOrEnv(cmd, "otlp-url", EnvOTLPURL, "")
	if otlpURL == "" {
		return noop.NewTracerProvider(), func() {}, nil
	}
	var token string
	if secret := FlagOrEnv(cmd, "otlp-secret", EnvOTLPSecret, ""); secret != "" {
		token = telemetry.GenerateOTLPBearerToken(secret, serviceName)
	}
	provider, shutdown, err := telemetry.New(ctx, otlpURL, token, serviceName)
	if err != nil {
		return nil, nil, errors.Wrap(err, "error creating telemetry")
	}
	return provider, shutdown, nil
}

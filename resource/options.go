package resource

import (
	"github.com/agentuity/go-resource/logger"
	"go.opentelemetry.io/otel/trace"
)

// MaxAliasDepth bounds alias resolution. Reaching it logs a warning and the
// partially resolved key is used.
const MaxAliasDepth = 10

// IncludeBase is always present in the map built by IncludesMap.
const IncludeBase = "customIncludeBase"

// config holds the resolved configuration of a resource.
type config struct {
	name            string
	logger          logger.Logger
	tracer          trace.Tracer
	activity        bool
	defaultIncludes []string
}

// Option configures a resource.
type Option func(*config)

func defaultConfig() config {
	return config{
		name:   "resource",
		tracer: tracer,
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.NewConsoleLogger(logger.LevelWarn)
	}
	cfg.logger = cfg.logger.With(map[string]interface{}{"resource": cfg.name})
	return cfg
}

// WithName names the resource in logs, spans and activity traces.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithLogger sets the logger. Defaults to a console logger at warn level.
func WithLogger(l logger.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithTracer overrides the OpenTelemetry tracer used for load spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *config) { c.tracer = t }
}

// WithActivityLog traces every event dispatch of the resource, and reports
// interrupted dispatches.
func WithActivityLog() Option {
	return func(c *config) { c.activity = true }
}

// WithDefaultIncludes sets the includes every new map entry starts with.
// Single value resources ignore it.
func WithDefaultIncludes(includes ...string) Option {
	return func(c *config) { c.defaultIncludes = append([]string(nil), includes...) }
}

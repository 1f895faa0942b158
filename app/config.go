package app

import (
	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vitalvas/xpresso/binder"
	"github.com/vitalvas/xpresso/openapi"
)

// Config holds the settings read from XPRESSO_* environment variables.
// Empty OpenAPIURL or DocsURL values disable the matching endpoint.
type Config struct {
	Title       string `env:"XPRESSO_TITLE" envDefault:"API"`
	Version     string `env:"XPRESSO_VERSION" envDefault:"0.1.0"`
	Description string `env:"XPRESSO_DESCRIPTION"`

	OpenAPIURL     string `env:"XPRESSO_OPENAPI_URL" envDefault:"/openapi.json"`
	OpenAPIYAMLURL string `env:"XPRESSO_OPENAPI_YAML_URL"`
	DocsURL        string `env:"XPRESSO_DOCS_URL" envDefault:"/docs"`
	// DocsUI is one of swagger, redoc or rapidoc.
	DocsUI string `env:"XPRESSO_DOCS_UI" envDefault:"swagger"`

	LogLevel zapcore.Level `env:"XPRESSO_LOG_LEVEL" envDefault:"info"`

	MaxMultipartMemory int64  `env:"XPRESSO_MAX_MULTIPART_MEMORY" envDefault:"33554432"`
	RequestIDHeader    string `env:"XPRESSO_REQUEST_ID_HEADER" envDefault:"X-Request-ID"`
	TrustRequestID     bool   `env:"XPRESSO_TRUST_REQUEST_ID"`
}

// ParseConfig reads the configuration from the environment.
func ParseConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to parse environment")
	}

	return cfg, nil
}

// DefaultConfig returns the configuration with every default applied,
// ignoring the environment.
func DefaultConfig() Config {
	var cfg Config

	// Defaults parse from constant tags and cannot fail.
	_ = env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}})

	return cfg
}

// NewLogger returns a JSON zap logger at the configured level.
func NewLogger(cfg Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zc.Build()
}

func (c Config) docsUI() (openapi.DocsUI, error) {
	switch c.DocsUI {
	case "", "swagger":
		return openapi.DocsSwaggerUI, nil
	case "redoc":
		return openapi.DocsRedoc, nil
	case "rapidoc":
		return openapi.DocsRapiDoc, nil
	default:
		return 0, binder.ConfigError("unknown docs UI %q", c.DocsUI)
	}
}

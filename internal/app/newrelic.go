package app

import (
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"travel/internal/config"
)

// NewNewRelic starts the New Relic agent when enabled. It returns nil when
// disabled or misconfigured; callers treat a nil application as "no APM".
func NewNewRelic(cfg config.NewRelicConfig, logger zerolog.Logger) *newrelic.Application {
	if !cfg.Enabled || cfg.LicenseKey == "" {
		return nil
	}

	nrApp, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to initialize New Relic")
		return nil
	}

	logger.Info().Str("app", cfg.AppName).Msg("New Relic enabled (with DB instrumentation)")
	return nrApp
}

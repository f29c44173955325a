package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/radar-pilot/internal/ai"
	"github.com/spigell/radar-pilot/internal/ai/gemini"
	"github.com/spigell/radar-pilot/internal/match"
	"github.com/spigell/radar-pilot/internal/matchapi"
	"github.com/spigell/radar-pilot/internal/pipeline"
	"github.com/spigell/radar-pilot/internal/secrets"
	"github.com/spigell/radar-pilot/internal/settings"
)

// deps holds everything the commands share: the API client, the threshold
// snapshot and the optional drafter.
type deps struct {
	config     *Config
	logger     *zap.Logger
	client     *matchapi.Client
	thresholds *settings.Source
	drafter    ai.Drafter
}

func newDeps(ctx context.Context, config *Config, logger *zap.Logger) (*deps, error) {
	token, err := secrets.Load(secrets.Source{
		Name:     "match api token",
		File:     config.API.TokenFile,
		Value:    config.API.Token,
		Optional: true,
	})
	if err != nil {
		return nil, err
	}

	client := matchapi.New(logger.Named("matchapi"), token)
	if config.API.URL != "" {
		client.APIURL = strings.TrimRight(config.API.URL, "/")
	}
	if config.API.UserAgent != "" {
		client.UserAgent = config.API.UserAgent
	}
	if config.API.Timeout > 0 {
		client.HTTPClient.Timeout = config.API.Timeout
	}
	client.WithRateLimit(config.API.RateLimit, config.API.Burst)

	d := &deps{
		config:     config,
		logger:     logger,
		client:     client,
		thresholds: settings.New(client, logger.Named("settings"), config.Policy.thresholds()),
	}

	if config.AI != nil && config.AI.Enabled {
		drafter, err := newDrafter(ctx, config.AI, logger)
		if err != nil {
			// Manual sends still go out with the static body.
			logger.Warn("skipping ai drafter", zap.Error(err))
		} else {
			d.drafter = drafter
		}
	}

	return d, nil
}

// newController builds one controller. Per-request notify values override
// the configured ones.
func (d *deps) newController(kind match.Kind, notify pipeline.Notify) (*pipeline.Controller, error) {
	n := pipeline.Notify{
		Recipients: pipeline.Recipients{
			To: d.config.Notify.To,
			CC: d.config.Notify.CC,
		},
		Subject: d.config.Notify.Subject,
		Kinds:   d.config.Notify.Kinds,
		Drafter: d.drafter,
	}
	if notify.To != "" {
		n.To = notify.To
	}
	if len(notify.CC) > 0 {
		n.CC = notify.CC
	}
	if notify.Subject != "" {
		n.Subject = notify.Subject
	}
	n.JobTitle = notify.JobTitle

	return pipeline.New(d.client, d.thresholds, d.logger, pipeline.Options{
		Kind:          kind,
		PollInterval:  d.config.Pipeline.PollInterval,
		ReuseExisting: d.config.Pipeline.ReuseExisting,
		Exclude:       d.config.Pipeline.Exclude,
		Notify:        n,
	})
}

func newDrafter(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (ai.Drafter, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	if cfg.Gemini == nil {
		return nil, fmt.Errorf("gemini configuration is required when ai is enabled")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: cfg.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	genLogger := logger.With(
		zap.String("provider", "gemini"),
		zap.String("model", cfg.Gemini.Model),
	)

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, genLogger)
	if err != nil {
		return nil, err
	}

	return gemini.NewDrafter(generator, genLogger, cfg.Gemini.MaxLogLength), nil
}

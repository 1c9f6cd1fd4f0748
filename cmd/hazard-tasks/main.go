package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mr1hm/go-hazard-tasks/internal/aoi"
	"github.com/mr1hm/go-hazard-tasks/internal/breaker"
	"github.com/mr1hm/go-hazard-tasks/internal/catalog"
	"github.com/mr1hm/go-hazard-tasks/internal/config"
	"github.com/mr1hm/go-hazard-tasks/internal/events"
	"github.com/mr1hm/go-hazard-tasks/internal/logging"
	"github.com/mr1hm/go-hazard-tasks/internal/resolver"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hazard-tasks",
		Short: "Resolve SAR acquisitions for hazard events and track processing tasks",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			return nil
		},
		SilenceUsage: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newResolveCommand())

	return cmd
}

// loadConfig reads configuration and sets up logging. level overrides the
// configured log level when set.
func loadConfig(level string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	if level != "" {
		cfg.Logging.Level = level
	}
	logging.Setup(cfg.Logging.Level)
	return cfg, nil
}

// newSources builds the event source and the resolution pipeline, each
// outbound service behind its own circuit breaker.
func newSources(cfg *config.Config) (*events.Source, *resolver.Pipeline) {
	src := events.NewSource(
		events.NewUSGSClient(cfg.Sources.USGSEventURL, cfg.Sources.Timeout),
		events.NewGDACSClient(cfg.Sources.GDACSEventURL, cfg.Sources.Timeout),
		breaker.New("events", cfg.CircuitBreaker),
	)

	asf := catalog.NewASFClient(catalog.ASFConfig{
		SearchURL:   cfg.Sources.ASFSearchURL,
		BaselineURL: cfg.Sources.ASFBaselineURL,
		Timeout:     cfg.Sources.Timeout,
		RPS:         cfg.Sources.CatalogRPS,
	})
	cat := catalog.NewBreakerClient(asf, breaker.New("asf", cfg.CircuitBreaker))

	var contours aoi.ContourSource
	if cfg.Sources.ContoursEnabled {
		contours = src
	}
	area := resolver.NewAOIResolver(cfg.Resolver, contours, cfg.Sources.ContourTimeout)
	return src, resolver.New(cfg.Resolver, area, cat)
}

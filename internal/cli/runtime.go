package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/roach88/biogate/internal/config"
	"github.com/roach88/biogate/internal/distance"
	"github.com/roach88/biogate/internal/fingerprint"
	"github.com/roach88/biogate/internal/logging"
	"github.com/roach88/biogate/internal/session"
	"github.com/roach88/biogate/internal/store"
	"github.com/roach88/biogate/internal/verifier"
)

// runtime is everything a command needs: the resolved configuration, a
// logger and a service over an open store.
type runtime struct {
	cfg    config.Config
	logger *slog.Logger
	store  *store.Store
	svc    *verifier.Service

	logCloser io.Closer
}

// Close releases the store and the log file.
func (r *runtime) Close() error {
	return multierr.Combine(r.store.Close(), r.logCloser.Close())
}

// loadConfig resolves the configuration and applies the --db override.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath, config.WithEnvFile(opts.EnvFile))
	if err != nil {
		return config.Config{}, err
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	return cfg, nil
}

// serviceOptions maps the configuration onto verifier options.
func serviceOptions(cfg config.Config, logger *slog.Logger) ([]verifier.Option, error) {
	strategy, err := fingerprint.StrategyFromConfig(fingerprint.StrategyConfig{
		Strategy:      cfg.Fingerprint.Strategy,
		Metric:        cfg.Fingerprint.Metric,
		MinSimilarity: cfg.Fingerprint.MinSimilarity,
	})
	if err != nil {
		return nil, err
	}
	metric, err := distance.ByName(cfg.Face.Metric)
	if err != nil {
		return nil, fmt.Errorf("face metric: %w", err)
	}

	return []verifier.Option{
		verifier.WithLogger(logger),
		verifier.WithFingerprintStrategy(strategy),
		verifier.WithFaceMetric(metric),
		verifier.WithMaxEmbeddings(cfg.Face.MaxEmbeddingsPerIdentity),
		verifier.WithSessionTTL(cfg.Session.TTL),
		verifier.WithSessionConfig(session.Config{
			Tolerance:    cfg.Face.Tolerance,
			MaxFrames:    cfg.Face.MaxFrames,
			FrameTimeout: cfg.Face.FrameTimeout,
		}),
	}, nil
}

// openRuntime loads configuration, sets up logging and opens the store.
// Overrides are applied to the loaded configuration, which is then
// validated again. Failures are reported through f and returned as
// ExitErrors.
func openRuntime(opts *RootOptions, cmd *cobra.Command, f *OutputFormatter, overrides ...func(*config.Config)) (*runtime, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, f.Fail(ErrCodeConfig, err)
	}
	if len(overrides) > 0 {
		for _, o := range overrides {
			o(&cfg)
		}
		if err := config.Validate(cfg); err != nil {
			return nil, f.Fail(ErrCodeConfig, err)
		}
	}

	logOpts := logging.Options{
		Level:        cfg.Log.Level,
		Format:       cfg.Log.Format,
		File:         cfg.Log.File,
		MaxAge:       cfg.Log.MaxAge,
		RotationTime: cfg.Log.RotationTime,
	}
	if opts.Verbose {
		logOpts.Level = "debug"
	}
	logger, closer, err := logging.New(logOpts, cmd.ErrOrStderr())
	if err != nil {
		return nil, f.Fail(ErrCodeConfig, err)
	}

	svcOpts, err := serviceOptions(cfg, logger)
	if err != nil {
		_ = closer.Close()
		return nil, f.Fail(ErrCodeConfig, err)
	}

	f.VerboseLog("opening database %s", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		_ = closer.Close()
		return nil, f.Fail(string(session.ErrCodeStorage), err)
	}

	return &runtime{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		svc:       verifier.New(st, svcOpts...),
		logCloser: closer,
	}, nil
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/biogate/internal/config"
	"github.com/roach88/biogate/internal/httpapi"
)

const shutdownTimeout = 5 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the verification API on a loopback address",
		Long: `Start the local HTTP API. The listen address must be a loopback
address; it defaults to http.addr from the configuration.

Example:
  biogate serve
  biogate serve --addr 127.0.0.1:9000 --db /var/lib/biogate/biogate.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)

			var overrides []func(*config.Config)
			if addr != "" {
				overrides = append(overrides, func(c *config.Config) { c.HTTP.Addr = addr })
			}
			rt, err := openRuntime(rootOpts, cmd, f, overrides...)
			if err != nil {
				return err
			}
			defer rt.Close()

			parentCtx := cmd.Context()
			if parentCtx == nil {
				parentCtx = context.Background()
			}
			ctx, cancel := context.WithCancel(parentCtx)
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			go func() {
				select {
				case sig := <-sigChan:
					rt.logger.Info("received signal, shutting down", "signal", sig.String())
					cancel()
				case <-ctx.Done():
				}
			}()

			srv := httpapi.New(rt.svc, rt.logger)
			go sweepLoop(ctx, rt)

			sc := rt.svc.SessionConfig()
			rt.logger.Info("starting server",
				"addr", rt.cfg.HTTP.Addr,
				"fingerprint_strategy", rt.svc.FingerprintStrategy(),
				"face_tolerance", sc.Tolerance,
				"max_frames", sc.MaxFrames)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Listen(rt.cfg.HTTP.Addr) }()
			fmt.Fprintf(cmd.ErrOrStderr(), "Serving on http://%s. Press Ctrl-C to stop.\n", rt.cfg.HTTP.Addr)

			select {
			case err := <-errCh:
				if err != nil {
					return f.Fail(ErrCodeGeneric, fmt.Errorf("listen %s: %w", rt.cfg.HTTP.Addr, err))
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stop()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return f.Fail(ErrCodeGeneric, fmt.Errorf("shutdown: %w", err))
			}
			rt.logger.Info("server stopped gracefully")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

// sweepLoop abandons idle sessions between requests.
func sweepLoop(ctx context.Context, rt *runtime) {
	interval := rt.cfg.Session.TTL
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := rt.svc.SweepExpired(ctx)
			if err != nil {
				rt.logger.Warn("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				rt.logger.Info("abandoned idle sessions", "count", n)
			}
		}
	}
}

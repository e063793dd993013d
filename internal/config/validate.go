package config

import (
	_ "embed"
	"fmt"
	"net"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"go.uber.org/multierr"
)

//go:embed schema.cue
var schemaCUE string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error

	// A cue.Context is not safe for concurrent use.
	schemaMu sync.Mutex
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaCUE, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile config schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Config"))
		if err := schemaDef.Err(); err != nil {
			schemaErr = fmt.Errorf("lookup #Config: %w", err)
		}
	})
	return schemaCtx, schemaDef, schemaErr
}

// Validate checks cfg against the schema and the rules the schema cannot
// express. All violations are returned together.
func Validate(cfg Config) error {
	ctx, def, err := loadSchema()
	if err != nil {
		return err
	}

	var errs error
	schemaMu.Lock()
	unified := def.Unify(ctx.Encode(cfg.schemaView()))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		for _, e := range cueerrors.Errors(err) {
			errs = multierr.Append(errs, fmt.Errorf("config: %s", cueerrors.Details(e, nil)))
		}
	}
	schemaMu.Unlock()

	if err := checkLoopback(cfg.HTTP.Addr); err != nil {
		errs = multierr.Append(errs, err)
	}
	if cfg.Log.File != "" && cfg.Log.RotationTime > cfg.Log.MaxAge && cfg.Log.MaxAge > 0 {
		errs = multierr.Append(errs, fmt.Errorf("config: log.rotation_time (%s) exceeds log.max_age (%s)", cfg.Log.RotationTime, cfg.Log.MaxAge))
	}
	return errs
}

// schemaView is the configuration as the CUE schema sees it: snake_case
// keys, durations in seconds.
func (cfg Config) schemaView() map[string]any {
	return map[string]any{
		"database": cfg.Database,
		"fingerprint": map[string]any{
			"strategy":       cfg.Fingerprint.Strategy,
			"metric":         cfg.Fingerprint.Metric,
			"min_similarity": cfg.Fingerprint.MinSimilarity,
		},
		"face": map[string]any{
			"tolerance":                   cfg.Face.Tolerance,
			"metric":                      cfg.Face.Metric,
			"max_frames":                  cfg.Face.MaxFrames,
			"frame_timeout_seconds":       cfg.Face.FrameTimeout.Seconds(),
			"max_embeddings_per_identity": cfg.Face.MaxEmbeddingsPerIdentity,
		},
		"session": map[string]any{
			"ttl_seconds": cfg.Session.TTL.Seconds(),
		},
		"log": map[string]any{
			"level":                 cfg.Log.Level,
			"format":                cfg.Log.Format,
			"file":                  cfg.Log.File,
			"max_age_seconds":       cfg.Log.MaxAge.Seconds(),
			"rotation_time_seconds": cfg.Log.RotationTime.Seconds(),
		},
		"http": map[string]any{
			"addr": cfg.HTTP.Addr,
		},
	}
}

// checkLoopback rejects HTTP addresses that are not on a loopback interface.
func checkLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("config: http.addr %q: %w", addr, err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("config: http.addr %q must be a loopback address", addr)
	}
	return nil
}

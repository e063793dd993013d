package config

import (
	"fmt"
	"strconv"
	"time"

	"go.uber.org/multierr"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BIOGATE_"

type envVar struct {
	name string
	set  func(cfg *Config, value string) error
}

func stringVar(name string, field func(*Config) *string) envVar {
	return envVar{name: name, set: func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}}
}

func floatVar(name string, field func(*Config) *float64) envVar {
	return envVar{name: name, set: func(cfg *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(cfg) = f
		return nil
	}}
}

func intVar(name string, field func(*Config) *int) envVar {
	return envVar{name: name, set: func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}}
}

func durationVar(name string, field func(*Config) *time.Duration) envVar {
	return envVar{name: name, set: func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(cfg) = d
		return nil
	}}
}

var envVars = []envVar{
	stringVar("DATABASE", func(c *Config) *string { return &c.Database }),
	stringVar("FINGERPRINT_STRATEGY", func(c *Config) *string { return &c.Fingerprint.Strategy }),
	stringVar("FINGERPRINT_METRIC", func(c *Config) *string { return &c.Fingerprint.Metric }),
	floatVar("FINGERPRINT_MIN_SIMILARITY", func(c *Config) *float64 { return &c.Fingerprint.MinSimilarity }),
	floatVar("FACE_TOLERANCE", func(c *Config) *float64 { return &c.Face.Tolerance }),
	stringVar("FACE_METRIC", func(c *Config) *string { return &c.Face.Metric }),
	intVar("FACE_MAX_FRAMES", func(c *Config) *int { return &c.Face.MaxFrames }),
	durationVar("FACE_FRAME_TIMEOUT", func(c *Config) *time.Duration { return &c.Face.FrameTimeout }),
	intVar("FACE_MAX_EMBEDDINGS_PER_IDENTITY", func(c *Config) *int { return &c.Face.MaxEmbeddingsPerIdentity }),
	durationVar("SESSION_TTL", func(c *Config) *time.Duration { return &c.Session.TTL }),
	stringVar("LOG_LEVEL", func(c *Config) *string { return &c.Log.Level }),
	stringVar("LOG_FORMAT", func(c *Config) *string { return &c.Log.Format }),
	stringVar("LOG_FILE", func(c *Config) *string { return &c.Log.File }),
	durationVar("LOG_MAX_AGE", func(c *Config) *time.Duration { return &c.Log.MaxAge }),
	durationVar("LOG_ROTATION_TIME", func(c *Config) *time.Duration { return &c.Log.RotationTime }),
	stringVar("HTTP_ADDR", func(c *Config) *string { return &c.HTTP.Addr }),
}

// applyEnv applies BIOGATE_* overrides. Every malformed value is reported.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs error
	for _, ev := range envVars {
		key := EnvPrefix + ev.name
		v, ok := lookup(key)
		if !ok {
			continue
		}
		if err := ev.set(cfg, v); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s=%q: %w", key, v, err))
		}
	}
	return errs
}

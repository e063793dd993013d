// Package config loads biogate configuration.
//
// Sources, lowest precedence first:
//   - struct defaults (creasty/defaults tags)
//   - a YAML or TOML file, chosen by extension
//   - a .env file (joho/godotenv), never overriding the real environment
//   - BIOGATE_* environment variables
//
// The result is validated against an embedded CUE schema; every violation
// is reported, not just the first.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete biogate configuration.
type Config struct {
	Database    string            `yaml:"database" toml:"database" default:"biogate.db"`
	Fingerprint FingerprintConfig `yaml:"fingerprint" toml:"fingerprint"`
	Face        FaceConfig        `yaml:"face" toml:"face"`
	Session     SessionConfig     `yaml:"session" toml:"session"`
	Log         LogConfig         `yaml:"log" toml:"log"`
	HTTP        HTTPConfig        `yaml:"http" toml:"http"`
}

// FingerprintConfig selects the fingerprint matching strategy.
type FingerprintConfig struct {
	Strategy      string  `yaml:"strategy" toml:"strategy" default:"exact"`
	Metric        string  `yaml:"metric" toml:"metric" default:"euclidean"`
	MinSimilarity float64 `yaml:"min_similarity" toml:"min_similarity" default:"0.5"`
}

// FaceConfig tunes face matching and the live frame budget.
type FaceConfig struct {
	Tolerance                float64       `yaml:"tolerance" toml:"tolerance" default:"0.5"`
	Metric                   string        `yaml:"metric" toml:"metric" default:"euclidean"`
	MaxFrames                int           `yaml:"max_frames" toml:"max_frames" default:"30"`
	FrameTimeout             time.Duration `yaml:"frame_timeout" toml:"frame_timeout" default:"30s"`
	MaxEmbeddingsPerIdentity int           `yaml:"max_embeddings_per_identity" toml:"max_embeddings_per_identity" default:"10"`
}

// SessionConfig bounds unfinished sessions.
type SessionConfig struct {
	TTL time.Duration `yaml:"ttl" toml:"ttl" default:"5m"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level        string        `yaml:"level" toml:"level" default:"info"`
	Format       string        `yaml:"format" toml:"format" default:"text"`
	File         string        `yaml:"file" toml:"file"`
	MaxAge       time.Duration `yaml:"max_age" toml:"max_age" default:"168h"`
	RotationTime time.Duration `yaml:"rotation_time" toml:"rotation_time" default:"24h"`
}

// HTTPConfig configures the local API.
type HTTPConfig struct {
	Addr string `yaml:"addr" toml:"addr" default:"127.0.0.1:7420"`
}

// Default returns the built-in configuration.
func Default() Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		panic(fmt.Sprintf("config: invalid default tags: %v", err))
	}
	return cfg
}

// LoadOption configures Load.
type LoadOption func(*loader)

type loader struct {
	envFile string
	lookup  func(string) (string, bool)
}

// WithEnvFile reads variables from a .env file. A missing file is ignored.
func WithEnvFile(path string) LoadOption {
	return func(l *loader) {
		l.envFile = path
	}
}

// WithLookup replaces os.LookupEnv. Used by tests.
func WithLookup(fn func(string) (string, bool)) LoadOption {
	return func(l *loader) {
		l.lookup = fn
	}
}

// Load builds the configuration from defaults, the file at path (optional),
// the .env file and the environment, then validates it.
func Load(path string, opts ...LoadOption) (Config, error) {
	l := &loader{lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(l)
	}

	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	lookup, err := l.environment()
	if err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// environment layers the .env file under the real environment.
func (l *loader) environment() (func(string) (string, bool), error) {
	if l.envFile == "" {
		return l.lookup, nil
	}
	if _, err := os.Stat(l.envFile); os.IsNotExist(err) {
		return l.lookup, nil
	}
	fileVars, err := godotenv.Read(l.envFile)
	if err != nil {
		return nil, fmt.Errorf("read env file %s: %w", l.envFile, err)
	}
	base := l.lookup
	return func(key string) (string, bool) {
		if v, ok := base(key); ok {
			return v, true
		}
		v, ok := fileVars[key]
		return v, ok
	}, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("parse config %s: unknown keys %v", path, undecoded)
		}
	default:
		return fmt.Errorf("config %s: unsupported format %q (want .yaml, .yml or .toml)", path, filepath.Ext(path))
	}
	return nil
}

package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Initialize loads, validates, and returns ready-to-use configuration. This
// is the primary entry point used by cmd/oktareact.
//
// Steps performed:
//  1. Load .env (if present) so ExpandEnv can see it
//  2. Load oktareact.yaml from configDir
//  3. Expand environment variables
//  4. Parse YAML into structs
//  5. Merge in default values for anything left unset
//  6. Validate the fully merged configuration
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.InfoContext(ctx, "initializing configuration")

	_ = godotenv.Load(filepath.Join(configDir, ".env"))

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.InfoContext(ctx, "configuration initialized",
		"provider", cfg.LLM.Provider,
		"http_port", cfg.Server.HTTPPort)

	return cfg, nil
}

func load(configDir string) (*Config, error) {
	path := filepath.Join(configDir, "oktareact.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, NewLoadError(path, err)
	}

	expanded := ExpandEnv(raw)

	var parsed yamlConfig
	if err := yaml.Unmarshal(expanded, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidYAML, err)
	}

	if parsed.LLM == nil {
		parsed.LLM = &LLMConfig{}
	}
	if parsed.Limits == nil {
		parsed.Limits = &LimitsConfig{}
	}
	if parsed.Logging == nil {
		parsed.Logging = &LoggingConfig{}
	}
	if parsed.Server == nil {
		parsed.Server = &ServerConfig{}
	}
	if parsed.Database == nil {
		parsed.Database = &DatabaseConfig{}
	}
	if parsed.MirrorDatabase == nil {
		parsed.MirrorDatabase = &MirrorDatabaseConfig{}
	}
	if parsed.Okta == nil {
		parsed.Okta = &OktaConfig{}
	}

	if err := mergo.Merge(parsed.Limits, DefaultLimits()); err != nil {
		return nil, fmt.Errorf("merging default limits: %w", err)
	}
	if err := mergo.Merge(parsed.Logging, DefaultLogging()); err != nil {
		return nil, fmt.Errorf("merging default logging: %w", err)
	}
	if err := mergo.Merge(parsed.Server, DefaultServer()); err != nil {
		return nil, fmt.Errorf("merging default server: %w", err)
	}
	if err := mergo.Merge(parsed.Database, DefaultDatabase()); err != nil {
		return nil, fmt.Errorf("merging default database: %w", err)
	}
	if err := mergo.Merge(parsed.MirrorDatabase, DefaultMirrorDatabase()); err != nil {
		return nil, fmt.Errorf("merging default mirror database: %w", err)
	}

	return &Config{
		configDir:      configDir,
		LLM:            parsed.LLM,
		Limits:         parsed.Limits,
		Logging:        parsed.Logging,
		Server:         parsed.Server,
		Database:       parsed.Database,
		MirrorDatabase: parsed.MirrorDatabase,
		Okta:           parsed.Okta,
	}, nil
}

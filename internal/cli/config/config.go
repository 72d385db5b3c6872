// Package config loads CLI configuration for kbforge. Runtime settings
// (target backend, batching, artifact paths) live in the same
// kbforge.yaml as the project manifest; precedence is flags > env vars >
// config file > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/kbforge/internal/manifest"
	"github.com/leapstack-labs/kbforge/internal/writer"
)

// Defaults.
const (
	DefaultBackend   = "duckdb"
	DefaultDBFile    = "kbforge.duckdb"
	DefaultStateFile = ".kbforge/history.db"
	DefaultSkillFile = "SKILL.md"
)

// LoadConfig holds load pipeline settings.
type LoadConfig struct {
	// BatchSize bounds rows buffered before a writer flush; zero means
	// one batch per source.
	BatchSize int `koanf:"batch_size"`
	// StatePath is the run-history database, relative to the project
	// directory. Empty disables history.
	StatePath string `koanf:"state_path"`
}

// SkillConfig holds skill artifact settings.
type SkillConfig struct {
	// Path of the emitted artifact, relative to the project directory.
	// Empty disables emission.
	Path string `koanf:"path"`
}

// Config holds all CLI configuration options.
type Config struct {
	ProjectDir string        `koanf:"project_dir"`
	Verbose    bool          `koanf:"verbose"`
	Target     writer.Config `koanf:"target"`
	Load       LoadConfig    `koanf:"load"`
	Skill      SkillConfig   `koanf:"skill"`
}

// StatePath returns the resolved run-history path, or empty when
// history is disabled.
func (c *Config) StatePath() string {
	return c.resolve(c.Load.StatePath)
}

// SkillPath returns the resolved skill artifact path, or empty when
// emission is disabled.
func (c *Config) SkillPath() string {
	return c.resolve(c.Skill.Path)
}

func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.ProjectDir, path)
}

var envKeys = map[string]string{
	"project_dir":     "project_dir",
	"verbose":         "verbose",
	"target_backend":  "target.backend",
	"target_path":     "target.path",
	"target_dsn":      "target.dsn",
	"load_batch_size": "load.batch_size",
	"load_state_path": "load.state_path",
	"skill_path":      "skill.path",
}

// Load builds the configuration. cfgFile wins over discovery; flags are
// the posflag layer and must already be parsed.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	projectDir := "."
	if flags != nil && flags.Changed("project-dir") {
		projectDir, _ = flags.GetString("project-dir")
	}
	if abs, err := filepath.Abs(projectDir); err == nil {
		projectDir = abs
	}

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"project_dir":     projectDir,
		"verbose":         false,
		"target.backend":  DefaultBackend,
		"target.path":     DefaultDBFile,
		"load.batch_size": 0,
		"load.state_path": DefaultStateFile,
		"skill.path":      DefaultSkillFile,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile == "" {
		cfgFile = manifest.FindManifest(projectDir)
	}
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
			}
		}
	}

	// KBFORGE_TARGET_BACKEND -> target.backend
	if err := k.Load(env.Provider("KBFORGE_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "KBFORGE_"))
		if mapped, ok := envKeys[key]; ok {
			return mapped
		}
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			switch f.Name {
			case "project-dir":
				return "project_dir", posflag.FlagVal(flags, f)
			case "backend":
				return "target.backend", posflag.FlagVal(flags, f)
			case "db-path":
				return "target.path", posflag.FlagVal(flags, f)
			case "dsn":
				return "target.dsn", posflag.FlagVal(flags, f)
			case "batch-size":
				return "load.batch_size", posflag.FlagVal(flags, f)
			case "state":
				return "load.state_path", posflag.FlagVal(flags, f)
			case "skill":
				return "skill.path", posflag.FlagVal(flags, f)
			case "verbose":
				return "verbose", posflag.FlagVal(flags, f)
			}
			return "", nil
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Target.Backend != "postgres" && cfg.Target.Path != "" && cfg.Target.Path != ":memory:" {
		cfg.Target.Path = cfg.resolve(cfg.Target.Path)
	}

	return &cfg, nil
}

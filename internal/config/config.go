// Package config loads run configuration from YAML files and the environment.
// Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/metagen/internal/opt"
	"github.com/cwbudde/metagen/internal/problems"
)

// Config is the complete configuration of one optimization run.
type Config struct {
	Problem   string `json:"problem" yaml:"problem"`
	Dimension int    `json:"dimension" yaml:"dimension"`
	Algorithm string `json:"algorithm" yaml:"algorithm"`
	Seed      int64  `json:"seed" yaml:"seed"`
	LogLevel  string `json:"log_level" yaml:"log_level"`

	Budget      BudgetConfig      `json:"budget" yaml:"budget"`
	Genetic     GeneticConfig     `json:"genetic" yaml:"genetic"`
	CVOA        CVOAConfig        `json:"cvoa" yaml:"cvoa"`
	Convergence ConvergenceConfig `json:"convergence" yaml:"convergence"`
	Checkpoint  CheckpointConfig  `json:"checkpoint" yaml:"checkpoint"`
	Server      ServerConfig      `json:"server" yaml:"server"`
}

// BudgetConfig bounds the work of a run. Zero values keep engine defaults.
type BudgetConfig struct {
	Iterations     int           `json:"iterations" yaml:"iterations"`
	PopulationSize int           `json:"population_size" yaml:"population_size"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
}

type GeneticConfig struct {
	MutationRate float64 `json:"mutation_rate" yaml:"mutation_rate"`
}

type CVOAConfig struct {
	Strains int `json:"strains" yaml:"strains"`
}

type ConvergenceConfig struct {
	Enabled   bool    `json:"enabled" yaml:"enabled"`
	Patience  int     `json:"patience" yaml:"patience"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// CheckpointConfig controls persistence of run progress.
type CheckpointConfig struct {
	Backend  string `json:"backend" yaml:"backend"` // fs or sqlite
	DataDir  string `json:"data_dir" yaml:"data_dir"`
	Interval int    `json:"interval" yaml:"interval"`
	Trace    bool   `json:"trace" yaml:"trace"`
}

type ServerConfig struct {
	Port int `json:"port" yaml:"port"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Problem:   "sphere",
		Algorithm: opt.AlgorithmRandomSearch,
		LogLevel:  "info",
		Genetic:   GeneticConfig{MutationRate: 0.1},
		CVOA:      CVOAConfig{Strains: 1},
		Convergence: ConvergenceConfig{
			Patience:  5,
			Threshold: 0.001,
		},
		Checkpoint: CheckpointConfig{
			Backend:  "fs",
			DataDir:  "./data",
			Interval: 10,
		},
		Server: ServerConfig{Port: 8080},
	}
}

// Load reads path over the defaults, applies METAGEN_* environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	loadEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("METAGEN_PROBLEM"); v != "" {
		cfg.Problem = v
	}
	if v := os.Getenv("METAGEN_ALGORITHM"); v != "" {
		cfg.Algorithm = v
	}
	if v := os.Getenv("METAGEN_ITERATIONS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Budget.Iterations = i
		}
	}
	if v := os.Getenv("METAGEN_SEED"); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Seed = i
		}
	}
	if v := os.Getenv("METAGEN_STORE"); v != "" {
		cfg.Checkpoint.Backend = v
	}
	if v := os.Getenv("METAGEN_DATA_DIR"); v != "" {
		cfg.Checkpoint.DataDir = v
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	var errs []error
	if _, err := problems.Get(c.Problem); err != nil {
		errs = append(errs, err)
	}
	if !slices.Contains(opt.Algorithms(), c.Algorithm) {
		errs = append(errs, fmt.Errorf("%w: %s", opt.ErrAlgorithmNotFound, c.Algorithm))
	}
	if c.Dimension < 0 {
		errs = append(errs, fmt.Errorf("dimension cannot be negative, got %d", c.Dimension))
	}
	if c.Budget.Iterations < 0 || c.Budget.PopulationSize < 0 || c.Budget.Timeout < 0 {
		errs = append(errs, errors.New("budget values cannot be negative"))
	}
	if c.Genetic.MutationRate < 0 || c.Genetic.MutationRate > 1 {
		errs = append(errs, fmt.Errorf("mutation rate must be in [0, 1], got %g", c.Genetic.MutationRate))
	}
	if c.CVOA.Strains < 0 {
		errs = append(errs, fmt.Errorf("strains cannot be negative, got %d", c.CVOA.Strains))
	}
	if c.Convergence.Enabled && c.Convergence.Patience <= 0 {
		errs = append(errs, errors.New("convergence patience must be positive"))
	}
	switch c.Checkpoint.Backend {
	case "", "fs", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported checkpoint backend %q", c.Checkpoint.Backend))
	}
	if c.Checkpoint.Interval < 0 {
		errs = append(errs, errors.New("checkpoint interval cannot be negative"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

// Settings converts the budget and tuning sections into engine settings.
func (c Config) Settings() opt.Settings {
	return opt.Settings{
		Iterations:     c.Budget.Iterations,
		PopulationSize: c.Budget.PopulationSize,
		MutationRate:   c.Genetic.MutationRate,
		Strains:        c.CVOA.Strains,
		Seed:           c.Seed,
		Convergence: opt.ConvergenceConfig{
			Enabled:   c.Convergence.Enabled,
			Patience:  c.Convergence.Patience,
			Threshold: c.Convergence.Threshold,
		},
	}
}

// Package config resolves runtime configuration.
//
// Layers, lowest precedence first:
//  1. built-in defaults (Default)
//  2. an optional CUE file validated against the embedded #Config schema
//  3. a .env file in the working directory, loaded into the environment
//  4. SWAPCHAIN_* environment variables
//
// Command-line flags are applied on top by the cli package.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/roach88/swapchain/internal/engine"
)

//go:embed schema.cue
var schemaCUE string

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config is the resolved configuration.
type Config struct {
	Database string

	MaxChainLength    int
	MaxCashDifference decimal.Decimal
	TopK              int
	MaxCandidates     int
	MaxNodes          int
	StepBudget        int
	Concurrency       int

	ProposalTTL    time.Duration
	DriftTolerance decimal.Decimal

	LogLevel  string
	LogFormat string
}

// Default returns the built-in configuration.
func Default() Config {
	l := engine.DefaultLimits()
	return Config{
		Database:          "swapchain.db",
		MaxChainLength:    l.MaxChainLength,
		MaxCashDifference: l.MaxCashDifference,
		TopK:              l.TopK,
		MaxCandidates:     l.MaxCandidates,
		MaxNodes:          l.MaxNodes,
		StepBudget:        l.StepBudget,
		Concurrency:       l.Concurrency,
		ProposalTTL:       l.ProposalTTL,
		DriftTolerance:    l.DriftTolerance,
		LogLevel:          "info",
		LogFormat:         FormatText,
	}
}

// Limits converts the search and lifecycle settings for the engine.
func (c Config) Limits() engine.Limits {
	return engine.Limits{
		MaxChainLength:    c.MaxChainLength,
		MaxCashDifference: c.MaxCashDifference,
		TopK:              c.TopK,
		MaxCandidates:     c.MaxCandidates,
		MaxNodes:          c.MaxNodes,
		StepBudget:        c.StepBudget,
		Concurrency:       c.Concurrency,
		ProposalTTL:       c.ProposalTTL,
		DriftTolerance:    c.DriftTolerance,
	}
}

// Level parses LogLevel.
func (c Config) Level() (zerolog.Level, error) {
	return zerolog.ParseLevel(c.LogLevel)
}

// Validate checks values that may have come from the environment.
func (c Config) Validate() error {
	var errs []error
	if c.Database == "" {
		errs = append(errs, errors.New("database path is empty"))
	}
	if c.MaxChainLength < 2 {
		errs = append(errs, fmt.Errorf("max chain length %d is below 2", c.MaxChainLength))
	}
	if c.MaxCashDifference.IsNegative() {
		errs = append(errs, fmt.Errorf("max cash difference %s is negative", c.MaxCashDifference))
	}
	if c.ProposalTTL <= 0 {
		errs = append(errs, fmt.Errorf("proposal ttl %s is not positive", c.ProposalTTL))
	}
	if c.DriftTolerance.IsNegative() {
		errs = append(errs, fmt.Errorf("drift tolerance %s is negative", c.DriftTolerance))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	if c.LogFormat != FormatText && c.LogFormat != FormatJSON {
		errs = append(errs, fmt.Errorf("log format %q is not text or json", c.LogFormat))
	}
	return errors.Join(errs...)
}

// fileConfig mirrors #Config. Pointers distinguish omitted fields.
type fileConfig struct {
	Database *string `json:"database"`
	Search   *struct {
		MaxChainLength    *int    `json:"max_chain_length"`
		MaxCashDifference *string `json:"max_cash_difference"`
		TopK              *int    `json:"top_k"`
		MaxCandidates     *int    `json:"max_candidates"`
		MaxNodes          *int    `json:"max_nodes"`
		StepBudget        *int    `json:"step_budget"`
		Concurrency       *int    `json:"concurrency"`
	} `json:"search"`
	ProposalTTL    *string  `json:"proposal_ttl"`
	DriftTolerance *float64 `json:"drift_tolerance"`
	Log            *struct {
		Level  *string `json:"level"`
		Format *string `json:"format"`
	} `json:"log"`
}

// LoadFile applies the CUE file at path on top of base. The file must
// satisfy the embedded schema; unknown fields are rejected.
func LoadFile(base Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return base, fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return base, fmt.Errorf("parse %s: %s", path, cueerrors.Details(err, nil))
	}
	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return base, fmt.Errorf("invalid %s: %s", path, cueerrors.Details(err, nil))
	}

	var fc fileConfig
	if err := unified.Decode(&fc); err != nil {
		return base, fmt.Errorf("decode %s: %w", path, err)
	}
	return fc.apply(base)
}

func (fc fileConfig) apply(c Config) (Config, error) {
	if fc.Database != nil {
		c.Database = *fc.Database
	}
	if s := fc.Search; s != nil {
		setInt(&c.MaxChainLength, s.MaxChainLength)
		setInt(&c.TopK, s.TopK)
		setInt(&c.MaxCandidates, s.MaxCandidates)
		setInt(&c.MaxNodes, s.MaxNodes)
		setInt(&c.StepBudget, s.StepBudget)
		setInt(&c.Concurrency, s.Concurrency)
		if s.MaxCashDifference != nil {
			d, err := decimal.NewFromString(*s.MaxCashDifference)
			if err != nil {
				return c, fmt.Errorf("search.max_cash_difference: %w", err)
			}
			c.MaxCashDifference = d
		}
	}
	if fc.ProposalTTL != nil {
		d, err := time.ParseDuration(*fc.ProposalTTL)
		if err != nil {
			return c, fmt.Errorf("proposal_ttl: %w", err)
		}
		c.ProposalTTL = d
	}
	if fc.DriftTolerance != nil {
		c.DriftTolerance = decimal.NewFromFloat(*fc.DriftTolerance)
	}
	if l := fc.Log; l != nil {
		if l.Level != nil {
			c.LogLevel = *l.Level
		}
		if l.Format != nil {
			c.LogFormat = *l.Format
		}
	}
	return c, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// Load resolves the configuration from defaults, the optional CUE file at
// path, a .env file and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(cfg, path); err != nil {
			return cfg, err
		}
	}
	if err := LoadDotEnv(".env"); err != nil {
		return cfg, err
	}
	cfg, err := FromEnv(cfg, os.LookupEnv)
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "SWAPCHAIN_"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads path into the process environment. A missing file is
// not an error; variables already set are not overridden.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// FromEnv applies SWAPCHAIN_* variables on top of c.
func FromEnv(c Config, lookup LookupFunc) (Config, error) {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = n
	}
	dec := func(name string, dst *decimal.Decimal) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = d
	}

	str("DB", &c.Database)
	num("MAX_CHAIN_LENGTH", &c.MaxChainLength)
	dec("MAX_CASH", &c.MaxCashDifference)
	num("TOP_K", &c.TopK)
	num("MAX_CANDIDATES", &c.MaxCandidates)
	num("MAX_NODES", &c.MaxNodes)
	num("STEP_BUDGET", &c.StepBudget)
	num("CONCURRENCY", &c.Concurrency)
	dec("DRIFT_TOLERANCE", &c.DriftTolerance)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)

	if v, ok := lookup(EnvPrefix + "PROPOSAL_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sPROPOSAL_TTL: %w", EnvPrefix, err))
		} else {
			c.ProposalTTL = d
		}
	}
	return c, errors.Join(errs...)
}

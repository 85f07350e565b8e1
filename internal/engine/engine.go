package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/roach88/swapchain/internal/barter"
	"github.com/roach88/swapchain/internal/directory"
	"github.com/roach88/swapchain/internal/execution"
	"github.com/roach88/swapchain/internal/graph"
	"github.com/roach88/swapchain/internal/search"
	"github.com/roach88/swapchain/internal/store"
	"github.com/roach88/swapchain/internal/validate"
)

// IDGenerator generates chain and execution attempt ids.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type IDGenerator interface {
	NewID() string
}

// ChainStore is the durable chain record. *store.Store implements it.
//
// CreateChain and UpdateChain write the chain together with the extras in
// w, atomically. UpdateChain fails with CONCURRENCY_CONFLICT unless the
// stored version equals c.Version, and bumps c.Version on success.
type ChainStore interface {
	CreateChain(ctx context.Context, c *barter.BarterChain, w store.ChainWrite) error
	UpdateChain(ctx context.Context, c *barter.BarterChain, w store.ChainWrite) error
	GetChain(ctx context.Context, id string) (*barter.BarterChain, error)
	ListChains(ctx context.Context, statuses ...barter.ChainStatus) ([]*barter.BarterChain, error)
	ListEvents(ctx context.Context, chainID string) ([]barter.ChainEvent, error)
	GetExecution(ctx context.Context, attemptID string) (barter.ExecutionResult, bool, error)
}

// Limits are the engine-wide defaults and caps. Constraints passed to
// FindChains fall back to these when left at zero.
type Limits struct {
	MaxChainLength    int
	MaxCashDifference decimal.Decimal
	TopK              int
	MaxCandidates     int
	MaxNodes          int
	StepBudget        int
	Concurrency       int
	ProposalTTL       time.Duration
	DriftTolerance    decimal.Decimal
}

// DefaultLimits returns the built-in limits.
func DefaultLimits() Limits {
	return Limits{
		MaxChainLength:    5,
		MaxCashDifference: decimal.NewFromInt(500),
		TopK:              graph.DefaultTopK,
		MaxCandidates:     search.DefaultMaxCandidates,
		MaxNodes:          graph.DefaultMaxNodes,
		StepBudget:        search.DefaultStepBudget,
		Concurrency:       graph.DefaultConcurrency,
		ProposalTTL:       72 * time.Hour,
		DriftTolerance:    validate.DefaultTolerance,
	}
}

// Engine exposes the chain operations over a directory, a wallet and a
// chain store.
//
// Thread-safety model:
//   - FindChains and ValidateChain are read-only and never block writers
//   - every mutating operation holds the chain's in-process lock and
//     commits through the store's version check
//   - item reservations are the cross-chain guard, acquired by
//     compare-and-swap on item status
type Engine struct {
	chains    ChainStore
	dir       directory.Directory
	wallet    directory.Wallet
	clock     Clock
	ids       IDGenerator
	limits    Limits
	log       zerolog.Logger
	locks     *keyedMutex
	builder   *graph.Builder
	search    *search.Enumerator
	validator *validate.Validator
	exec      *execution.Coordinator
}

// Option configures an Engine.
type Option func(*Engine)

// WithLimits replaces the default limits.
func WithLimits(l Limits) Option {
	return func(e *Engine) {
		e.limits = l
	}
}

// WithClock sets the clock used for timestamps and expiry.
//
// Default: SystemClock.
// Use testutil.ManualClock for deterministic tests.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDs sets the id generator.
//
// Default: UUIDv7Generator.
func WithIDs(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithLogger sets the logger. Default: zerolog.Nop().
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// New creates an Engine.
func New(chains ChainStore, dir directory.Directory, wallet directory.Wallet, opts ...Option) *Engine {
	e := &Engine{
		chains: chains,
		dir:    dir,
		wallet: wallet,
		clock:  SystemClock{},
		ids:    UUIDv7Generator{},
		limits: DefaultLimits(),
		log:    zerolog.Nop(),
		locks:  newKeyedMutex(),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.builder = graph.NewBuilder(dir, e.log.With().Str("component", "graph").Logger())
	e.search = search.NewEnumerator(e.log.With().Str("component", "search").Logger())
	e.validator = validate.New(dir, e.limits.DriftTolerance, e.log.With().Str("component", "validate").Logger())
	e.exec = execution.NewCoordinator(dir, wallet, e.log.With().Str("component", "execution").Logger())
	return e
}

// Limits returns the effective limits.
func (e *Engine) Limits() Limits {
	return e.limits
}

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC()
}

// event builds the audit record for a transition of c.
func event(c *barter.BarterChain, from barter.ChainStatus, actor, note string, at time.Time) barter.ChainEvent {
	return barter.ChainEvent{
		ChainID: c.ID,
		From:    from,
		To:      c.Status,
		Actor:   actor,
		Note:    note,
		At:      at,
	}
}

// load reads a chain and returns a private copy to transition.
func (e *Engine) load(ctx context.Context, id string) (*barter.BarterChain, error) {
	stored, err := e.chains.GetChain(ctx, id)
	if err != nil {
		return nil, err
	}
	c := stored.Clone()
	return &c, nil
}

// GetChain returns the stored chain.
func (e *Engine) GetChain(ctx context.Context, id string) (*barter.BarterChain, error) {
	return e.chains.GetChain(ctx, id)
}

// ChainEvents returns the audit trail of a chain, oldest first.
func (e *Engine) ChainEvents(ctx context.Context, id string) ([]barter.ChainEvent, error) {
	if _, err := e.chains.GetChain(ctx, id); err != nil {
		return nil, err
	}
	return e.chains.ListEvents(ctx, id)
}

package harness

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/swapchain/internal/barter"
	"github.com/roach88/swapchain/internal/directory"
	"github.com/roach88/swapchain/internal/engine"
	"github.com/roach88/swapchain/internal/settlement"
	"github.com/roach88/swapchain/internal/store"
	"github.com/roach88/swapchain/internal/testutil"
)

// OutcomeError is recorded for a failed step whose error carries no code.
const OutcomeError = "ERROR"

// errInjected is returned by the failure hooks of a fail step.
var errInjected = errors.New("injected failure")

// Harness is the scenario execution engine.
// It runs one scenario with a manual clock and sequential ids, so the
// same scenario always produces the same trace.
type Harness struct {
	eng    *engine.Engine
	dir    *directory.Memory
	clock  *testutil.ManualClock
	result *Result

	// candidates are the results of the last find.
	candidates []barter.ChainCandidate

	// chain is the most recently proposed chain id.
	chain string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory chain store and directory.
//
// Execution flow:
//  1. Open an in-memory SQLite chain store
//  2. Seed the in-memory directory and wallet from the fixture
//  3. Execute flow steps with expect validation
//  4. Evaluate assertions against the final state
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, zerolog.Nop())
}

// RunWithLogger is Run with engine logging sent to log.
func RunWithLogger(scenario *Scenario, log zerolog.Logger) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	limits, err := scenarioLimits(scenario.Limits)
	if err != nil {
		return nil, err
	}

	mem := directory.NewMemory()
	scenario.Fixture.SeedMemory(mem)
	clock := testutil.NewManualClock(testutil.Epoch)

	h := &Harness{
		eng: engine.New(st, mem, mem,
			engine.WithLimits(limits),
			engine.WithClock(clock),
			engine.WithIDs(testutil.NewSequenceIDs("chain")),
			engine.WithLogger(log),
		),
		dir:    mem,
		clock:  clock,
		result: NewResult(),
	}

	ctx := context.Background()
	for i, step := range scenario.Flow {
		if err := h.execute(ctx, i, step); err != nil {
			return nil, fmt.Errorf("failed to execute flow: %w", err)
		}
	}

	actx := &AssertionContext{
		Ctx:       ctx,
		Engine:    h.eng,
		Directory: mem,
		Chain:     h.chain,
	}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func scenarioLimits(sl *ScenarioLimits) (engine.Limits, error) {
	l := engine.DefaultLimits()
	if sl == nil {
		return l, nil
	}
	if sl.MaxChainLength != 0 {
		l.MaxChainLength = sl.MaxChainLength
	}
	if sl.MaxCashDifference != "" {
		d, err := amount(sl.MaxCashDifference)
		if err != nil {
			return l, fmt.Errorf("limits.max_cash_difference: %w", err)
		}
		l.MaxCashDifference = d
	}
	if sl.ProposalTTL != "" {
		d, err := time.ParseDuration(sl.ProposalTTL)
		if err != nil {
			return l, fmt.Errorf("limits.proposal_ttl: %w", err)
		}
		l.ProposalTTL = d
	}
	return l, nil
}

// execute runs one step, records it and checks its expect clause. Engine
// errors are step outcomes; the returned error means the scenario itself
// is broken.
func (h *Harness) execute(ctx context.Context, i int, step FlowStep) error {
	ev := TraceEvent{Op: step.Op, Outcome: OutcomeOK}
	var (
		err   error
		count = -1
	)

	switch step.Op {
	case OpFind:
		cons := barter.Constraints{MaxChainLength: step.MaxLength, Region: step.Region}
		if cons.MaxCashDifference, err = amount(step.MaxCash); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
		var out []barter.ChainCandidate
		out, err = h.eng.FindChains(ctx, step.Item, cons)
		h.candidates = out
		count = len(out)
		for _, c := range out {
			ev.Candidates = append(ev.Candidates, traceCandidate(c))
		}

	case OpPropose:
		if step.Candidate >= len(h.candidates) {
			return fmt.Errorf("flow[%d]: candidate %d out of range, last find returned %d", i, step.Candidate, len(h.candidates))
		}
		var c *barter.BarterChain
		c, err = h.eng.ProposeChain(ctx, h.candidates[step.Candidate], step.As)
		if err == nil {
			h.chain = c.ID
			ev.Chain = c.ID
		}

	case OpNotify:
		ev.Chain = h.target(step)
		_, err = h.eng.MarkNotified(ctx, ev.Chain)

	case OpRespond:
		ev.Chain = h.target(step)
		_, err = h.eng.RespondToProposal(ctx, ev.Chain, step.As, step.Accept, step.Message)

	case OpValidate:
		ev.Chain = h.target(step)
		var vr barter.ValidationResult
		vr, err = h.eng.ValidateChain(ctx, ev.Chain)
		if err == nil {
			ev.Valid = &vr.IsValid
			for _, is := range vr.Errors {
				ev.Issues = append(ev.Issues, is.Code)
			}
		}

	case OpExecute:
		ev.Chain = h.target(step)
		var res barter.ExecutionResult
		res, err = h.eng.ExecuteChain(ctx, ev.Chain, step.Attempt)
		ev.Attempt = res.AttemptID
		if ev.Attempt == "" {
			ev.Attempt = step.Attempt
		}
		if err == nil {
			ev.Transfers = len(res.Transfers)
		}
		if res.Failure != nil {
			ev.FailedStep = res.Failure.Step
		}

	case OpCancel:
		ev.Chain = h.target(step)
		_, err = h.eng.CancelChain(ctx, ev.Chain, step.As)

	case OpExpire:
		ev.Chain = h.target(step)
		_, err = h.eng.ExpireChain(ctx, ev.Chain)

	case OpExpireDue:
		var out []*barter.BarterChain
		out, err = h.eng.ExpireDue(ctx)
		count = len(out)
		for _, c := range out {
			ev.Expired = append(ev.Expired, c.ID)
		}

	case OpAdvance:
		d, perr := time.ParseDuration(step.Duration)
		if perr != nil {
			return fmt.Errorf("flow[%d]: %w", i, perr)
		}
		h.clock.Advance(d)

	case OpFail:
		h.inject(step.Step, step.Item)

	case OpClear:
		h.dir.FailCAS = nil
		h.dir.FailLedger = nil
		h.dir.FailTransfer = nil

	default:
		return fmt.Errorf("flow[%d]: unknown op %q", i, step.Op)
	}

	if err != nil {
		ev.Outcome = outcome(err)
	}
	if ev.Chain != "" {
		if c, gerr := h.eng.GetChain(ctx, ev.Chain); gerr == nil {
			ev.Status = string(c.Status)
		}
	}
	h.result.record(ev)
	h.check(i, step, ev, err, count)
	return nil
}

// target resolves the chain a step acts on.
func (h *Harness) target(step FlowStep) string {
	if step.Chain != "" {
		return step.Chain
	}
	return h.chain
}

// inject breaks one saga step. An empty item breaks it for every item.
func (h *Harness) inject(step, item string) {
	match := func(id string) bool { return item == "" || id == item }
	switch step {
	case "lock":
		h.dir.FailCAS = func(id string, next barter.ItemStatus) error {
			if next == barter.ItemLocked && match(id) {
				return errInjected
			}
			return nil
		}
	case "ledger":
		h.dir.FailLedger = func([]barter.LedgerEntry) error { return errInjected }
	case "transfer":
		h.dir.FailTransfer = func(id string) error {
			if match(id) {
				return errInjected
			}
			return nil
		}
	}
}

// check compares a recorded step against its expect clause.
func (h *Harness) check(i int, step FlowStep, ev TraceEvent, err error, count int) {
	exp := step.Expect
	if exp == nil {
		exp = &ExpectClause{}
	}
	label := fmt.Sprintf("flow[%d] %s", i, step.Op)

	want := OutcomeOK
	if exp.Error != "" {
		want = exp.Error
	}
	if ev.Outcome != want {
		msg := fmt.Sprintf("%s: expected outcome %s, got %s", label, want, ev.Outcome)
		if err != nil {
			msg += ": " + err.Error()
		}
		h.result.AddError(msg)
	}
	if exp.Status != "" && ev.Status != exp.Status {
		h.result.AddError(fmt.Sprintf("%s: expected status %s, got %s", label, exp.Status, ev.Status))
	}
	if exp.Count != nil && count != *exp.Count {
		h.result.AddError(fmt.Sprintf("%s: expected count %d, got %d", label, *exp.Count, count))
	}
	if exp.Valid != nil && (ev.Valid == nil || *ev.Valid != *exp.Valid) {
		got := "none"
		if ev.Valid != nil {
			got = strconv.FormatBool(*ev.Valid)
		}
		h.result.AddError(fmt.Sprintf("%s: expected valid %t, got %s", label, *exp.Valid, got))
	}
}

func outcome(err error) string {
	if code := barter.CodeOf(err); code != "" {
		return string(code)
	}
	return OutcomeError
}

func traceCandidate(c barter.ChainCandidate) CandidateTrace {
	cash := make(map[string]string, len(c.Slots))
	for _, s := range c.Slots {
		cash[s.UserID] = s.CashFlow.String()
	}
	return CandidateTrace{
		Route:    settlement.Describe(c),
		Fairness: strconv.FormatFloat(c.FairnessScore, 'f', 6, 64),
		Cash:     cash,
	}
}

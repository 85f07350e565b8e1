package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/swapchain/internal/barter"
)

// Scenario defines a conformance scenario.
// A scenario seeds a directory, drives the engine through a flow of
// operations and asserts on the trace and the final directory state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Limits overrides engine limits for this scenario.
	Limits *ScenarioLimits `yaml:"limits,omitempty"`

	// Fixture is the starting directory and wallet state.
	Fixture Fixture `yaml:"fixture"`

	// Flow is executed in order against a single engine.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// ScenarioLimits are the engine limits a scenario may override.
type ScenarioLimits struct {
	MaxChainLength    int    `yaml:"max_chain_length,omitempty"`
	MaxCashDifference string `yaml:"max_cash_difference,omitempty"`
	ProposalTTL       string `yaml:"proposal_ttl,omitempty"`
}

// Operations a flow step may perform.
const (
	OpFind      = "find"
	OpPropose   = "propose"
	OpNotify    = "notify"
	OpRespond   = "respond"
	OpValidate  = "validate"
	OpExecute   = "execute"
	OpCancel    = "cancel"
	OpExpire    = "expire"
	OpExpireDue = "expire_due"
	OpAdvance   = "advance"
	OpFail      = "fail"
	OpClear     = "clear"
)

// FlowStep is one engine operation.
//
// Chain-scoped steps act on Chain, or on the most recently proposed chain
// when Chain is empty.
type FlowStep struct {
	Op string `yaml:"op"`

	// As is the acting user (propose, respond, cancel).
	As string `yaml:"as,omitempty"`

	// Chain is an explicit chain id.
	Chain string `yaml:"chain,omitempty"`

	// Item is the focal item (find) or the item a failure targets (fail).
	Item string `yaml:"item,omitempty"`

	// Constraints narrow a find. Zero values fall back to the limits.
	MaxLength int    `yaml:"max_length,omitempty"`
	MaxCash   string `yaml:"max_cash,omitempty"`
	Region    string `yaml:"region,omitempty"`

	// Candidate indexes the candidates of the last find (propose).
	Candidate int `yaml:"candidate,omitempty"`

	// Accept and Message are the response (respond).
	Accept  bool   `yaml:"accept,omitempty"`
	Message string `yaml:"message,omitempty"`

	// Attempt is the execution attempt id (execute).
	Attempt string `yaml:"attempt,omitempty"`

	// Duration moves the clock forward (advance).
	Duration string `yaml:"duration,omitempty"`

	// Step is the saga step to break (fail): lock, ledger or transfer.
	Step string `yaml:"step,omitempty"`

	// Expect validates the step outcome. Without it the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies expected step behavior.
type ExpectClause struct {
	// Error is the expected error code. Empty means success.
	Error string `yaml:"error,omitempty"`

	// Status is the chain status after the step.
	Status string `yaml:"status,omitempty"`

	// Count is the number of candidates (find) or expired chains
	// (expire_due).
	Count *int `yaml:"count,omitempty"`

	// Valid is the validator verdict (validate).
	Valid *bool `yaml:"valid,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "item": owner and/or status of Item
	// - "balance": wallet balance of User
	// - "chain_status": status of Chain (or the last proposed chain)
	// - "event_order": Statuses appear in order among the chain's events
	// - "journal": ledger journal Count and/or Sum
	Type string `yaml:"type"`

	Item     string   `yaml:"item,omitempty"`
	Owner    string   `yaml:"owner,omitempty"`
	Status   string   `yaml:"status,omitempty"`
	User     string   `yaml:"user,omitempty"`
	Amount   string   `yaml:"amount,omitempty"`
	Chain    string   `yaml:"chain,omitempty"`
	Statuses []string `yaml:"statuses,omitempty"`
	Count    *int     `yaml:"count,omitempty"`
	Sum      string   `yaml:"sum,omitempty"`
}

// Assertion type constants.
const (
	AssertItem        = "item"
	AssertBalance     = "balance"
	AssertChainStatus = "chain_status"
	AssertEventOrder  = "event_order"
	AssertJournal     = "journal"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Fixture.Users) == 0 {
		return fmt.Errorf("fixture.users is required and must be non-empty")
	}
	if err := s.Fixture.Validate(); err != nil {
		return fmt.Errorf("fixture: %w", err)
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if l := s.Limits; l != nil {
		if _, err := amount(l.MaxCashDifference); err != nil {
			return fmt.Errorf("limits.max_cash_difference: %w", err)
		}
		if l.ProposalTTL != "" {
			if _, err := time.ParseDuration(l.ProposalTTL); err != nil {
				return fmt.Errorf("limits.proposal_ttl: %w", err)
			}
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *FlowStep) error {
	switch st.Op {
	case OpFind:
		if st.Item == "" {
			return fmt.Errorf("flow[%d]: item is required for find", index)
		}
		if _, err := amount(st.MaxCash); err != nil {
			return fmt.Errorf("flow[%d].max_cash: %w", index, err)
		}
	case OpPropose:
		if st.As == "" {
			return fmt.Errorf("flow[%d]: as is required for propose", index)
		}
		if st.Candidate < 0 {
			return fmt.Errorf("flow[%d]: candidate must be non-negative", index)
		}
	case OpRespond, OpCancel:
		if st.As == "" {
			return fmt.Errorf("flow[%d]: as is required for %s", index, st.Op)
		}
	case OpAdvance:
		if _, err := time.ParseDuration(st.Duration); err != nil {
			return fmt.Errorf("flow[%d]: duration: %w", index, err)
		}
	case OpFail:
		switch st.Step {
		case "lock", "ledger", "transfer":
		default:
			return fmt.Errorf("flow[%d]: step must be lock, ledger or transfer", index)
		}
	case OpNotify, OpValidate, OpExecute, OpExpire, OpExpireDue, OpClear:
	case "":
		return fmt.Errorf("flow[%d]: op is required", index)
	default:
		return fmt.Errorf("flow[%d]: unknown op %q", index, st.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertItem:
		if a.Item == "" {
			return fmt.Errorf("assertions[%d]: item is required for item", index)
		}
		if a.Owner == "" && a.Status == "" {
			return fmt.Errorf("assertions[%d]: owner or status is required for item", index)
		}
	case AssertBalance:
		if a.User == "" {
			return fmt.Errorf("assertions[%d]: user is required for balance", index)
		}
		if _, err := amount(a.Amount); err != nil {
			return fmt.Errorf("assertions[%d].amount: %w", index, err)
		}
	case AssertChainStatus:
		if a.Status == "" {
			return fmt.Errorf("assertions[%d]: status is required for chain_status", index)
		}
	case AssertEventOrder:
		if len(a.Statuses) == 0 {
			return fmt.Errorf("assertions[%d]: statuses list is required for event_order", index)
		}
	case AssertJournal:
		if a.Count == nil && a.Sum == "" {
			return fmt.Errorf("assertions[%d]: count or sum is required for journal", index)
		}
		if a.Count != nil && *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for journal", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	for _, s := range append([]string{a.Status}, a.Statuses...) {
		if s != "" && !knownStatus(s) {
			return fmt.Errorf("assertions[%d]: unknown status %q", index, s)
		}
	}
	return nil
}

func knownStatus(s string) bool {
	switch s {
	case string(barter.ItemAvailable), string(barter.ItemReserved), string(barter.ItemLocked), string(barter.ItemTraded):
		return true
	}
	switch barter.ChainStatus(s) {
	case barter.ChainProposed, barter.ChainPending, barter.ChainAccepted, barter.ChainExecuting,
		barter.ChainCompleted, barter.ChainRejected, barter.ChainCancelled, barter.ChainExpired:
		return true
	}
	return false
}

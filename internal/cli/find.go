package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/swapchain/internal/barter"
)

// SearchOptions holds the search flags shared by find and propose.
type SearchOptions struct {
	MaxLength     int
	MaxCash       string
	Region        string
	TopK          int
	MaxCandidates int
}

func (s *SearchOptions) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&s.MaxLength, "max-length", 0, "maximum participants per chain (0 uses the configured limit)")
	cmd.Flags().StringVar(&s.MaxCash, "max-cash", "", "maximum cash any participant settles, capped at the configured limit")
	cmd.Flags().StringVar(&s.Region, "region", "", "only consider items in this region")
	cmd.Flags().IntVar(&s.TopK, "top-k", 0, "wanted items explored per node (0 uses the configured limit)")
	cmd.Flags().IntVar(&s.MaxCandidates, "limit", 0, "maximum candidates returned (0 uses the configured limit)")
}

// Constraints converts the flags. Zero values fall back to engine limits.
func (s *SearchOptions) Constraints() (barter.Constraints, error) {
	cons := barter.Constraints{
		MaxChainLength: s.MaxLength,
		Region:         s.Region,
		TopK:           s.TopK,
		MaxCandidates:  s.MaxCandidates,
	}
	if s.MaxCash != "" {
		d, err := decimal.NewFromString(s.MaxCash)
		if err != nil {
			return cons, NewExitError(ExitCommandError, fmt.Sprintf("invalid --max-cash %q", s.MaxCash))
		}
		if d.IsNegative() {
			return cons, NewExitError(ExitCommandError, "--max-cash must not be negative")
		}
		cons.MaxCashDifference = d
	}
	if s.MaxLength < 0 || s.TopK < 0 || s.MaxCandidates < 0 {
		return cons, NewExitError(ExitCommandError, "search limits must not be negative")
	}
	return cons, nil
}

// search runs FindChains with the engine of a.
func (s *SearchOptions) search(ctx context.Context, a *app, item string) ([]barter.ChainCandidate, error) {
	cons, err := s.Constraints()
	if err != nil {
		return nil, err
	}
	return a.engine.FindChains(ctx, item, cons)
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SearchOptions{}

	cmd := &cobra.Command{
		Use:   "find <item-id>",
		Short: "Find barter chains that let an item's owner trade it",
		Long: `Enumerate cycles and linear chains through the focal item.

Candidates are settled with cash, scored for fairness and listed best
first. Use the printed index with "swapchain propose".

Examples:
  swapchain find a-item
  swapchain find a-item --max-length 4 --max-cash 250
  swapchain find a-item --region eu --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			a, err := rootOpts.open()
			if err != nil {
				return f.Fail(err)
			}
			defer a.Close(rootOpts.logger)

			cands, err := opts.search(cmd.Context(), a, args[0])
			if err != nil {
				return f.Fail(err)
			}
			if cands == nil {
				cands = []barter.ChainCandidate{}
			}
			return f.Emit(cands, renderCandidates(args[0], cands))
		},
	}
	opts.register(cmd)
	return cmd
}

// ProposeOptions holds flags for the propose command.
type ProposeOptions struct {
	SearchOptions
	As          string
	Index       int
	Fingerprint string
}

// NewProposeCommand creates the propose command.
func NewProposeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProposeOptions{}

	cmd := &cobra.Command{
		Use:   "propose <item-id>",
		Short: "Propose a chain found for an item",
		Long: `Re-run the search for the focal item and propose one candidate.

The candidate is picked by --fingerprint or by its --index in the
search output. Every giving item is reserved for the new chain.

Examples:
  swapchain propose a-item --as A
  swapchain propose a-item --as A --index 2
  swapchain propose a-item --as A --fingerprint 3f9a0c1d2e4b`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPropose(rootOpts, opts, cmd, args[0])
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVar(&opts.As, "as", "", "initiating user id (required)")
	cmd.Flags().IntVar(&opts.Index, "index", 0, "index of the candidate in the search output")
	cmd.Flags().StringVar(&opts.Fingerprint, "fingerprint", "", "fingerprint (or prefix) of the candidate")
	_ = cmd.MarkFlagRequired("as")
	cmd.MarkFlagsMutuallyExclusive("index", "fingerprint")
	return cmd
}

func runPropose(rootOpts *RootOptions, opts *ProposeOptions, cmd *cobra.Command, item string) error {
	f := rootOpts.formatter(cmd)
	a, err := rootOpts.open()
	if err != nil {
		return f.Fail(err)
	}
	defer a.Close(rootOpts.logger)

	ctx := cmd.Context()
	cands, err := opts.search(ctx, a, item)
	if err != nil {
		return f.Fail(err)
	}
	cand, err := opts.pick(cands)
	if err != nil {
		return f.Fail(err)
	}
	f.VerboseLog("proposing %s", cand.Fingerprint)

	c, err := a.engine.ProposeChain(ctx, cand, opts.As)
	if err != nil {
		return f.Fail(err)
	}
	return f.Emit(c, renderChain(c))
}

// pick selects the candidate named by --fingerprint or --index.
func (o *ProposeOptions) pick(cands []barter.ChainCandidate) (barter.ChainCandidate, error) {
	if len(cands) == 0 {
		return barter.ChainCandidate{}, barter.NewError(barter.ErrCodeNotFound, "no chains found")
	}
	if o.Fingerprint != "" {
		var match []barter.ChainCandidate
		for _, c := range cands {
			if strings.HasPrefix(c.Fingerprint, o.Fingerprint) {
				match = append(match, c)
			}
		}
		switch len(match) {
		case 0:
			return barter.ChainCandidate{}, barter.NewError(barter.ErrCodeNotFound, "no candidate with fingerprint %s", o.Fingerprint)
		case 1:
			return match[0], nil
		default:
			return barter.ChainCandidate{}, NewExitError(ExitCommandError, fmt.Sprintf("fingerprint prefix %s is ambiguous", o.Fingerprint))
		}
	}
	if o.Index < 0 || o.Index >= len(cands) {
		return barter.ChainCandidate{}, NewExitError(ExitCommandError, fmt.Sprintf("--index %d out of range, found %d candidate(s)", o.Index, len(cands)))
	}
	return cands[o.Index], nil
}

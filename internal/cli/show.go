package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/swapchain/internal/barter"
)

// ShowResult is the JSON output of show --events.
type ShowResult struct {
	Chain  *barter.BarterChain `json:"chain"`
	Events []barter.ChainEvent `json:"events,omitempty"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	var events bool

	cmd := &cobra.Command{
		Use:           "show <chain-id>",
		Short:         "Show a chain and optionally its transition history",
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

			ctx := cmd.Context()
			c, err := a.engine.GetChain(ctx, args[0])
			if err != nil {
				return f.Fail(err)
			}
			res := ShowResult{Chain: c}
			text := renderChain(c)
			if events {
				if res.Events, err = a.engine.ChainEvents(ctx, c.ID); err != nil {
					return f.Fail(err)
				}
				text += "\n" + renderEvents(res.Events)
			}
			return f.Emit(res, text)
		},
	}
	cmd.Flags().BoolVar(&events, "events", false, "include the chain's transition history")
	return cmd
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List chains, optionally filtered by status",
		Long: `List stored chains.

Examples:
  swapchain list
  swapchain list --status PENDING --status ACCEPTED`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			filter := make([]barter.ChainStatus, 0, len(statuses))
			for _, s := range statuses {
				st := barter.ChainStatus(strings.ToUpper(s))
				if !knownStatus(st) {
					return f.Fail(NewExitError(ExitCommandError, fmt.Sprintf("unknown status %q", s)))
				}
				filter = append(filter, st)
			}

			a, err := rootOpts.open()
			if err != nil {
				return f.Fail(err)
			}
			defer a.Close(rootOpts.logger)

			chains, err := a.store.ListChains(cmd.Context(), filter...)
			if err != nil {
				return f.Fail(err)
			}
			if chains == nil {
				chains = []*barter.BarterChain{}
			}
			return f.Emit(chains, renderChainList(chains))
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "only list chains in this status (repeatable)")
	return cmd
}

// BalanceResult is the JSON output of the balance command.
type BalanceResult struct {
	User    string `json:"user"`
	Balance string `json:"balance"`
}

// NewBalanceCommand creates the balance command.
func NewBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "balance <user-id>",
		Short:         "Show a user's wallet balance",
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

			bal, err := a.store.Balance(cmd.Context(), args[0])
			if err != nil {
				return f.Fail(err)
			}
			res := BalanceResult{User: args[0], Balance: bal.String()}
			return f.Emit(res, fmt.Sprintf("%s: %s", res.User, res.Balance))
		},
	}
}

func knownStatus(s barter.ChainStatus) bool {
	switch s {
	case barter.ChainProposed, barter.ChainPending, barter.ChainAccepted, barter.ChainExecuting,
		barter.ChainCompleted, barter.ChainRejected, barter.ChainCancelled, barter.ChainExpired:
		return true
	}
	return false
}

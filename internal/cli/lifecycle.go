package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/swapchain/internal/barter"
)

// chainCommand builds a single-chain command whose action returns the
// updated chain.
func chainCommand(rootOpts *RootOptions, use, short, long string, action func(cmd *cobra.Command, a *app, id string) (*barter.BarterChain, error)) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Long:          long,
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

			c, err := action(cmd, a, args[0])
			if err != nil {
				return f.Fail(err)
			}
			return f.Emit(c, renderChain(c))
		},
	}
}

// NewNotifyCommand creates the notify command.
func NewNotifyCommand(rootOpts *RootOptions) *cobra.Command {
	return chainCommand(rootOpts, "notify <chain-id>",
		"Record that participants were notified of a proposal",
		`Move a PROPOSED chain to PENDING.

Responding to a PROPOSED chain notifies it implicitly, so this is only
needed when delivery is tracked separately.`,
		func(cmd *cobra.Command, a *app, id string) (*barter.BarterChain, error) {
			return a.engine.MarkNotified(cmd.Context(), id)
		})
}

// RespondOptions holds flags for the respond command.
type RespondOptions struct {
	As      string
	Accept  bool
	Reject  bool
	Message string
}

// NewRespondCommand creates the respond command.
func NewRespondCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RespondOptions{}
	cmd := chainCommand(rootOpts, "respond <chain-id>",
		"Accept or reject a proposed chain",
		`Record a participant's response.

The chain becomes ACCEPTED once every participant accepted. A single
rejection rejects the chain and releases every reserved item.

Examples:
  swapchain respond chain-1 --as B --accept
  swapchain respond chain-1 --as C --reject --message "found a better deal"`,
		func(cmd *cobra.Command, a *app, id string) (*barter.BarterChain, error) {
			return a.engine.RespondToProposal(cmd.Context(), id, opts.As, opts.Accept, opts.Message)
		})
	cmd.Flags().StringVar(&opts.As, "as", "", "responding user id (required)")
	cmd.Flags().BoolVar(&opts.Accept, "accept", false, "accept the chain")
	cmd.Flags().BoolVar(&opts.Reject, "reject", false, "reject the chain")
	cmd.Flags().StringVar(&opts.Message, "message", "", "optional message to the other participants")
	_ = cmd.MarkFlagRequired("as")
	cmd.MarkFlagsMutuallyExclusive("accept", "reject")
	cmd.MarkFlagsOneRequired("accept", "reject")
	return cmd
}

// NewCancelCommand creates the cancel command.
func NewCancelCommand(rootOpts *RootOptions) *cobra.Command {
	var as string
	cmd := chainCommand(rootOpts, "cancel <chain-id>",
		"Cancel a chain before execution",
		`Cancel a chain and release its reservations.

Any participant may cancel a PROPOSED or PENDING chain. Once ACCEPTED,
only the initiator may cancel.`,
		func(cmd *cobra.Command, a *app, id string) (*barter.BarterChain, error) {
			return a.engine.CancelChain(cmd.Context(), id, as)
		})
	cmd.Flags().StringVar(&as, "as", "", "cancelling user id (required)")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}

// NewExpireCommand creates the expire command.
func NewExpireCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "expire [chain-id]",
		Short: "Expire chains whose proposal window has elapsed",
		Long: `Expire one chain, or sweep every open chain past its expiry.

Examples:
  swapchain expire
  swapchain expire chain-7`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			a, err := rootOpts.open()
			if err != nil {
				return f.Fail(err)
			}
			defer a.Close(rootOpts.logger)

			if len(args) == 1 {
				c, err := a.engine.ExpireChain(cmd.Context(), args[0])
				if err != nil {
					return f.Fail(err)
				}
				return f.Emit(c, renderChain(c))
			}

			expired, err := a.engine.ExpireDue(cmd.Context())
			if err != nil {
				return f.Fail(err)
			}
			if expired == nil {
				expired = []*barter.BarterChain{}
			}
			return f.Emit(expired, renderChainList(expired))
		},
	}
}

package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/swapchain/internal/barter"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <chain-id>",
		Short: "Check a chain against current items and wallets",
		Long: `Re-check every participant, item and settlement of a chain.

Validation does not change the chain. Blocking problems are reported as
errors; value drift within tolerance is reported as a warning.

Exit codes:
  0 - Chain is valid
  1 - Chain has errors, or an engine error occurred
  2 - Command error`,
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

			res, err := a.engine.ValidateChain(cmd.Context(), args[0])
			if err != nil {
				return f.Fail(err)
			}
			if err := f.Emit(res, renderValidation(res)); err != nil {
				return err
			}
			if !res.IsValid {
				exitErr := NewExitError(ExitFailure, string(barter.ErrCodeValidationFailed))
				exitErr.Reported = true
				return exitErr
			}
			return nil
		},
	}
}

// NewExecuteCommand creates the execute command.
func NewExecuteCommand(rootOpts *RootOptions) *cobra.Command {
	var attempt string

	cmd := &cobra.Command{
		Use:   "execute <chain-id>",
		Short: "Atomically execute an accepted chain",
		Long: `Lock every item, post the cash ledger, transfer ownership and
complete the chain. Any failure rolls back every step already applied
and leaves the chain ACCEPTED.

Re-running with the same --attempt id returns the stored result of a
completed execution without applying anything twice.

Examples:
  swapchain execute chain-1
  swapchain execute chain-1 --attempt settle-2026-10-14`,
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

			res, err := a.engine.ExecuteChain(cmd.Context(), args[0], attempt)
			if err != nil {
				if res.Failure != nil {
					f.VerboseLog("attempt %s failed at %s step", res.AttemptID, res.Failure.Step)
				}
				return f.Fail(err)
			}
			return f.Emit(res, renderExecution(res))
		},
	}
	cmd.Flags().StringVar(&attempt, "attempt", "", "idempotency key for this execution (generated when empty)")
	return cmd
}

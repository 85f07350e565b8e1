package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/swapchain/internal/harness"
)

// SeedResult is the JSON output of the seed command.
type SeedResult struct {
	Users int `json:"users"`
	Items int `json:"items"`
	Wants int `json:"wants"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Load users, items, wants and balances into the database",
		Long: `Load a YAML fixture into the database.

The fixture uses the same format as the fixture section of a harness
scenario. Existing items with the same id are replaced.

Examples:
  swapchain seed ./fixtures/three_way.yaml
  swapchain seed ./fixtures/three_way.yaml --db ./barter.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(rootOpts, cmd, args[0])
		},
	}
}

func runSeed(opts *RootOptions, cmd *cobra.Command, path string) error {
	f := opts.formatter(cmd)

	fixture, err := harness.LoadFixture(path)
	if err != nil {
		return f.Fail(WrapExitError(ExitCommandError, "invalid fixture", err))
	}

	a, err := opts.open()
	if err != nil {
		return f.Fail(err)
	}
	defer a.Close(opts.logger)

	if err := fixture.Seed(cmd.Context(), a.store); err != nil {
		return f.Fail(err)
	}

	res := SeedResult{Users: len(fixture.Users), Items: len(fixture.Items()), Wants: len(fixture.Wants())}
	opts.logger.Info().Int("users", res.Users).Int("items", res.Items).Int("wants", res.Wants).Msg("fixture seeded")
	return f.Emit(res, fmt.Sprintf("Seeded %d users, %d items, %d wants from %s", res.Users, res.Items, res.Wants, path))
}

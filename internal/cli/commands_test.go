package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swapchain/internal/barter"
)

const threeWayFixture = `
users:
  - id: A
    balance: "1000"
    items:
      - {id: a-item, category: electronics, value: "1000"}
    wants:
      - {category: books, min: "900", max: "1000"}
  - id: B
    balance: "1000"
    items:
      - {id: b-book, category: books, value: "950"}
    wants:
      - {category: tools, min: "1000", max: "1100"}
  - id: C
    balance: "1000"
    items:
      - {id: c-tool, category: tools, value: "1050"}
    wants:
      - {item: a-item}
`

// seeded returns a database path loaded with the three-way fixture.
func seeded(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	fixture := filepath.Join(dir, "fixture.yaml")
	require.NoError(t, os.WriteFile(fixture, []byte(threeWayFixture), 0644))

	db := filepath.Join(dir, "swapchain.db")
	out, err := run(t, "--db", db, "seed", fixture)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Seeded 3 users, 3 items, 3 wants")
	return db
}

// decodeData unmarshals the data of a successful JSON response into v.
func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status, out)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

// errorCode returns the code of an error JSON response.
func errorCode(t *testing.T, out string) string {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func propose(t *testing.T, db string) *barter.BarterChain {
	t.Helper()
	out, err := run(t, "--db", db, "--format", "json", "propose", "a-item", "--as", "A")
	require.NoError(t, err, out)
	var c barter.BarterChain
	decodeData(t, out, &c)
	require.NotEmpty(t, c.ID)
	return &c
}

func TestSeedCommand_InvalidFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("users:\n  - id: A\n    colour: red\n"), 0644))

	out, err := run(t, "--db", filepath.Join(t.TempDir(), "x.db"), "seed", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "invalid fixture")
}

func TestFindCommand(t *testing.T) {
	db := seeded(t)

	out, err := run(t, "--db", db, "find", "a-item")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Found 1 chain(s) for a-item")
	assert.Contains(t, out, "[0] A -> C -> B -> A (CYCLE)  fairness 0.966667  value 3000")

	out, err = run(t, "--db", db, "--format", "json", "find", "a-item")
	require.NoError(t, err, out)
	var cands []barter.ChainCandidate
	decodeData(t, out, &cands)
	require.Len(t, cands, 1)
	assert.Equal(t, barter.ChainCycle, cands[0].Type)
	assert.InDelta(t, 0.966667, cands[0].FairnessScore, 1e-9)
	cash := map[string]string{}
	for _, s := range cands[0].Slots {
		cash[s.UserID] = s.CashFlow.String()
	}
	assert.Equal(t, map[string]string{"A": "50", "B": "-100", "C": "50"}, cash)

	out, err = run(t, "--db", db, "find", "a-item", "--max-cash", "60")
	require.NoError(t, err, out)
	assert.Contains(t, out, "No chains found for a-item.")

	_, err = run(t, "--db", db, "find", "a-item", "--max-cash", "lots")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err = run(t, "--db", db, "--format", "json", "find", "ghost")
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", errorCode(t, out))
}

func TestChainLifecycle(t *testing.T) {
	db := seeded(t)
	c := propose(t, db)
	assert.Equal(t, barter.ChainProposed, c.Status)
	require.Len(t, c.Participants, 3)

	// Every giving item is reserved, so the focal item cannot be proposed twice.
	out, err := run(t, "--db", db, "--format", "json", "propose", "a-item", "--as", "A")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "ITEM_UNAVAILABLE", errorCode(t, out))

	out, err = run(t, "--db", db, "respond", c.ID, "--as", "B", "--accept")
	require.NoError(t, err, out)
	assert.Contains(t, out, "PENDING")

	_, err = run(t, "--db", db, "respond", c.ID, "--as", "C", "--accept", "--reject")
	require.Error(t, err)

	out, err = run(t, "--db", db, "execute", c.ID)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [PARTIAL_ACCEPTANCE]")

	out, err = run(t, "--db", db, "respond", c.ID, "--as", "C", "--accept", "--message", "deal")
	require.NoError(t, err, out)
	assert.Contains(t, out, "ACCEPTED")
	assert.Contains(t, out, `"deal"`)

	out, err = run(t, "--db", db, "validate", c.ID)
	require.NoError(t, err, out)
	assert.Contains(t, out, "is valid")

	out, err = run(t, "--db", db, "--format", "json", "execute", c.ID, "--attempt", "att-1")
	require.NoError(t, err, out)
	var res barter.ExecutionResult
	decodeData(t, out, &res)
	assert.Equal(t, barter.ChainCompleted, res.Status)
	assert.Equal(t, "att-1", res.AttemptID)
	assert.Len(t, res.Transfers, 3)

	// Replaying the attempt returns the stored result.
	out, err = run(t, "--db", db, "--format", "json", "execute", c.ID, "--attempt", "att-1")
	require.NoError(t, err, out)
	var replay barter.ExecutionResult
	decodeData(t, out, &replay)
	assert.Equal(t, res.Transfers, replay.Transfers)

	for user, want := range map[string]string{"A": "1050", "B": "900", "C": "1050"} {
		out, err = run(t, "--db", db, "balance", user)
		require.NoError(t, err, out)
		assert.Contains(t, out, user+": "+want)
	}

	out, err = run(t, "--db", db, "show", c.ID, "--events")
	require.NoError(t, err, out)
	assert.Contains(t, out, "COMPLETED")
	assert.Contains(t, out, "Events:")
	assert.Contains(t, out, "(new) -> PROPOSED by A")
	assert.Contains(t, out, "EXECUTING -> COMPLETED")

	out, err = run(t, "--db", db, "list", "--status", "completed")
	require.NoError(t, err, out)
	assert.Contains(t, out, c.ID)

	out, err = run(t, "--db", db, "list", "--status", "PENDING")
	require.NoError(t, err, out)
	assert.Contains(t, out, "No chains.")

	out, err = run(t, "--db", db, "cancel", c.ID, "--as", "A")
	require.Error(t, err)
	assert.Contains(t, out, "Error [INVALID_TRANSITION]")
}

func TestRejectReleasesItems(t *testing.T) {
	db := seeded(t)
	c := propose(t, db)

	out, err := run(t, "--db", db, "respond", c.ID, "--as", "C", "--reject", "--message", "changed my mind")
	require.NoError(t, err, out)
	assert.Contains(t, out, "REJECTED")

	out, err = run(t, "--db", db, "find", "a-item")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Found 1 chain(s)")

	second := propose(t, db)
	assert.NotEqual(t, c.ID, second.ID)
}

func TestCancelAndNotify(t *testing.T) {
	db := seeded(t)
	c := propose(t, db)

	out, err := run(t, "--db", db, "notify", c.ID)
	require.NoError(t, err, out)
	assert.Contains(t, out, "PENDING")

	out, err = run(t, "--db", db, "--format", "json", "cancel", c.ID, "--as", "intruder")
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED_ACTION", errorCode(t, out))

	out, err = run(t, "--db", db, "cancel", c.ID, "--as", "B")
	require.NoError(t, err, out)
	assert.Contains(t, out, "CANCELLED")

	out, err = run(t, "--db", db, "list")
	require.NoError(t, err, out)
	assert.Contains(t, out, "CANCELLED")
}

func TestProposeSelection(t *testing.T) {
	db := seeded(t)

	out, err := run(t, "--db", db, "propose", "a-item", "--as", "A", "--index", "3")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "out of range")

	out, err = run(t, "--db", db, "--format", "json", "propose", "a-item", "--as", "A", "--fingerprint", "zz")
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", errorCode(t, out))

	out, err = run(t, "--db", db, "--format", "json", "find", "a-item")
	require.NoError(t, err, out)
	var cands []barter.ChainCandidate
	decodeData(t, out, &cands)
	require.Len(t, cands, 1)

	out, err = run(t, "--db", db, "--format", "json", "propose", "a-item", "--as", "A", "--fingerprint", cands[0].Fingerprint[:8])
	require.NoError(t, err, out)
	var c barter.BarterChain
	decodeData(t, out, &c)
	assert.Equal(t, cands[0].Fingerprint, c.Fingerprint)
}

func TestExpireAndUnknownChain(t *testing.T) {
	db := seeded(t)

	out, err := run(t, "--db", db, "expire")
	require.NoError(t, err, out)
	assert.Contains(t, out, "No chains.")

	out, err = run(t, "--db", db, "--format", "json", "show", "chain-404")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, IsReported(err))
	assert.Equal(t, "NOT_FOUND", errorCode(t, out))

	out, err = run(t, "--db", db, "validate", "chain-404")
	require.Error(t, err)
	assert.Contains(t, out, "Error [NOT_FOUND]")

	c := propose(t, db)
	out, err = run(t, "--db", db, "expire", c.ID)
	require.Error(t, err)
	assert.Contains(t, out, "Error [")
}

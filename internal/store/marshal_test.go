package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swapchain/internal/barter"
	"github.com/roach88/swapchain/internal/testutil"
)

func TestFormatTime_RoundTripAndOrder(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 8, time.FixedZone("x", 3600))
	got, err := parseTime(formatTime(ts))
	require.NoError(t, err)
	assert.True(t, ts.Equal(got))

	earlier := formatTime(testutil.Epoch)
	later := formatTime(testutil.Epoch.Add(time.Millisecond))
	assert.Less(t, earlier, later, "stored times must sort lexically")
}

func TestNullTime(t *testing.T) {
	assert.False(t, formatNullTime(nil).Valid)

	got, err := parseNullTime(sql.NullString{})
	require.NoError(t, err)
	assert.Nil(t, got)

	ts := testutil.Epoch
	got, err = parseNullTime(formatNullTime(&ts))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, ts.Equal(*got))
}

func TestMarshalFailure(t *testing.T) {
	s, err := marshalFailure(nil)
	require.NoError(t, err)
	assert.False(t, s.Valid)

	f := &barter.FailureReason{Code: barter.ErrCodeExecutionFailure, Step: "transfer", Message: "a < b & c", ItemID: "x", AttemptID: "att", At: testutil.Epoch}
	s, err = marshalFailure(f)
	require.NoError(t, err)
	assert.Contains(t, s.String, "a < b & c", "HTML escaping must be off")

	got, err := unmarshalFailure(s)
	require.NoError(t, err)
	assert.Equal(t, f.Step, got.Step)
	assert.True(t, f.At.Equal(got.At))
}

func TestMarshalResult_KeepsDecimals(t *testing.T) {
	res := barter.ExecutionResult{
		AttemptID: "att",
		ChainID:   "c",
		Status:    barter.ChainCompleted,
		Entries:   []barter.LedgerEntry{{ID: "att/0", AccountID: "A", Amount: testutil.Dec(-100)}},
	}
	data, err := marshalResult(res)
	require.NoError(t, err)

	got, err := unmarshalResult(data)
	require.NoError(t, err)
	require.Len(t, got.Entries, 1)
	assert.True(t, got.Entries[0].Amount.Equal(testutil.Dec(-100)))
}

package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/swapchain/internal/barter"
)

// timeLayout is the stored timestamp format. Fixed width so TEXT order
// matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime renders t in UTC for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime parses a stored timestamp.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

// formatNullTime renders an optional timestamp.
func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// parseNullTime parses an optional timestamp.
func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// marshalJSON encodes v as JSON TEXT with HTML escaping disabled.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// marshalFailure converts an optional failure reason to nullable JSON TEXT.
func marshalFailure(f *barter.FailureReason) (sql.NullString, error) {
	if f == nil {
		return sql.NullString{}, nil
	}
	data, err := marshalJSON(f)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal failure: %w", err)
	}
	return sql.NullString{String: data, Valid: true}, nil
}

// unmarshalFailure parses nullable JSON TEXT to a failure reason.
func unmarshalFailure(s sql.NullString) (*barter.FailureReason, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var f barter.FailureReason
	if err := json.Unmarshal([]byte(s.String), &f); err != nil {
		return nil, fmt.Errorf("unmarshal failure: %w", err)
	}
	return &f, nil
}

// marshalResult converts an execution result to JSON TEXT.
func marshalResult(res barter.ExecutionResult) (string, error) {
	data, err := marshalJSON(res)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return data, nil
}

// unmarshalResult parses JSON TEXT to an execution result.
func unmarshalResult(data string) (barter.ExecutionResult, error) {
	var res barter.ExecutionResult
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return barter.ExecutionResult{}, fmt.Errorf("unmarshal result: %w", err)
	}
	return res, nil
}

// boolToInt converts a bool to SQLite's integer form.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInt64Field(t *testing.T) {
	// JSONB round-trips numbers as float64; direct callers may pass int64 or int.
	body := map[string]any{
		"fromJSON":  float64(42),
		"fromInt64": int64(7),
		"fromInt":   3,
		"notANum":   "abc",
	}

	v, err := int64Field(body, "fromJSON")
	require.NoError(t, err)
	require.Equal(t, int64(42), v)

	v, err = int64Field(body, "fromInt64")
	require.NoError(t, err)
	require.Equal(t, int64(7), v)

	v, err = int64Field(body, "fromInt")
	require.NoError(t, err)
	require.Equal(t, int64(3), v)

	_, err = int64Field(body, "notANum")
	require.Error(t, err)

	_, err = int64Field(body, "missing")
	require.Error(t, err)
}

func TestExecuteTask_UnknownType(t *testing.T) {
	p := &TaskProcessor{}
	err := p.executeTask(context.Background(), "no-such-task", map[string]any{})
	require.ErrorContains(t, err, "unknown task type")
}

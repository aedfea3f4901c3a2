package reminder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydration_reminder/internal/domain/reminder"
)

func TestNormalizeData(t *testing.T) {
	got, err := reminder.NormalizeData(map[string]any{
		"consumedMl": 500,
		"tags":       []string{"water"},
		"nested":     map[string]int{"glasses": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"consumedMl": float64(500),
		"tags":       []any{"water"},
		"nested":     map[string]any{"glasses": float64(3)},
	}, got)

	empty, err := reminder.NormalizeData(map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, empty)

	_, err = reminder.NormalizeData(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

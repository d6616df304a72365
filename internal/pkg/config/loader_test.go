package config

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_Unset(t *testing.T) {
	t.Setenv("HA_TEST_VALUE", "")

	got := LoadEnvInt("HA_TEST_VALUE", 7, nil)

	assert.Equal(t, 7, got.Value)
	assert.False(t, got.FallbackApplied)
	assert.Empty(t, got.Warnings)
}

func TestLoadEnvInt(t *testing.T) {
	inRange := func(v int) error { return ValidateIntRange(v, 1, 32) }

	tests := []struct {
		name         string
		env          string
		want         int
		wantFallback bool
		wantWarning  string
	}{
		{name: "valid", env: "8", want: 8},
		{name: "surrounding whitespace", env: "  4 ", want: 4},
		{name: "not a number", env: "four", want: 2, wantFallback: true, wantWarning: `cannot parse "four"`},
		{name: "out of range", env: "64", want: 2, wantFallback: true, wantWarning: "out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			t.Setenv("HA_TEST_CONCURRENCY", tt.env)

			// Act
			got := LoadEnvInt("HA_TEST_CONCURRENCY", 2, inRange)

			// Assert
			assert.Equal(t, tt.want, got.Value)
			assert.Equal(t, tt.wantFallback, got.FallbackApplied)
			if tt.wantWarning == "" {
				assert.Empty(t, got.Warnings)
				return
			}
			require.Len(t, got.Warnings, 1)
			assert.Contains(t, got.Warnings[0], "HA_TEST_CONCURRENCY")
			assert.Contains(t, got.Warnings[0], tt.wantWarning)
			assert.Contains(t, got.Warnings[0], "using default 2")
		})
	}
}

func TestLoadEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		env          string
		want         time.Duration
		wantFallback bool
	}{
		{"valid", "45m", 45 * time.Minute, false},
		{"compound", "1h30m", 90 * time.Minute, false},
		{"missing unit", "30", 30 * time.Minute, true},
		{"negative", "-5m", 30 * time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HA_TEST_TIMEOUT", tt.env)

			got := LoadEnvDuration("HA_TEST_TIMEOUT", 30*time.Minute, ValidatePositiveDuration)

			assert.Equal(t, tt.want, got.Value)
			assert.Equal(t, tt.wantFallback, got.FallbackApplied)
		})
	}
}

func TestLoadEnvString(t *testing.T) {
	t.Setenv("HA_TEST_SCHEDULE", "30 6 * * 1-5")
	got := LoadEnvString("HA_TEST_SCHEDULE", "0 8 * * *", ValidateCronSchedule)
	assert.Equal(t, "30 6 * * 1-5", got.Value)
	assert.False(t, got.FallbackApplied)

	t.Setenv("HA_TEST_SCHEDULE", "every morning")
	got = LoadEnvString("HA_TEST_SCHEDULE", "0 8 * * *", ValidateCronSchedule)
	assert.Equal(t, "0 8 * * *", got.Value)
	assert.True(t, got.FallbackApplied)
}

func TestLoadEnvBool(t *testing.T) {
	t.Setenv("HA_TEST_FLAG", "true")
	assert.True(t, LoadEnvBool("HA_TEST_FLAG", false).Value)

	t.Setenv("HA_TEST_FLAG", "maybe")
	got := LoadEnvBool("HA_TEST_FLAG", false)
	assert.False(t, got.Value)
	assert.True(t, got.FallbackApplied)
}

func TestLoadEnv_CustomParser(t *testing.T) {
	t.Setenv("HA_TEST_RATIO", "0.25")
	parse := func(s string) (float64, error) { return strconv.ParseFloat(s, 64) }
	reject := func(float64) error { return errors.New("ratios are disabled") }

	ok := LoadEnv("HA_TEST_RATIO", 0.5, parse, nil)
	rejected := LoadEnv("HA_TEST_RATIO", 0.5, parse, reject)

	assert.Equal(t, 0.25, ok.Value)
	assert.Equal(t, 0.5, rejected.Value)
	require.Len(t, rejected.Warnings, 1)
	assert.Contains(t, rejected.Warnings[0], "ratios are disabled")
}

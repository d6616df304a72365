package analyzer

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-assistant/internal/domain/entity"
)

func TestFormatSleep(t *testing.T) {
	sleep := map[string]any{
		"score":                float64(82),
		"total_sleep_duration": float64(27000),
		"efficiency":           float64(91),
		"rem_sleep_duration":   float64(5400),
		"deep_sleep_duration":  float64(4320),
		"latency":              float64(600),
		"lowest_heart_rate":    float64(48),
		"average_hrv":          float64(42),
		"contributors": map[string]any{
			"deep_sleep":  float64(95),
			"total_sleep": float64(80),
		},
	}

	want := strings.Join([]string{
		"**Sleep Data**:",
		"- Sleep Score: 82/100",
		"- Total Sleep Duration: 7.5 hours",
		"- Sleep Efficiency: 91%",
		"- REM Sleep: 1.5 hours",
		"- Deep Sleep: 1.2 hours",
		"- Sleep Latency: 10 minutes",
		"- Lowest Heart Rate: 48 bpm",
		"- Average HRV: 42 ms",
		"- Contributing Factors:",
		"  - Deep Sleep: 95/100",
		"  - Total Sleep: 80/100",
	}, "\n")

	if diff := cmp.Diff(want, formatSleep(sleep)); diff != "" {
		t.Errorf("formatSleep() mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatActivity(t *testing.T) {
	activity := map[string]any{
		"score":                       float64(75),
		"steps":                       float64(12345),
		"active_calories":             float64(540),
		"equivalent_walking_distance": float64(9870),
		"high_activity_time":          float64(1800),
		"sedentary_time":              float64(28800),
	}

	want := strings.Join([]string{
		"**Activity Data**:",
		"- Activity Score: 75/100",
		"- Steps: 12,345",
		"- Active Calories: 540 kcal",
		"- Walking Distance: 9.87 km",
		"- High Activity Time: 30 minutes",
		"- Sedentary Time: 480 minutes",
	}, "\n")

	if diff := cmp.Diff(want, formatActivity(activity)); diff != "" {
		t.Errorf("formatActivity() mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatReadiness(t *testing.T) {
	tests := []struct {
		name      string
		readiness map[string]any
		want      string
	}{
		{
			name: "with contributors",
			readiness: map[string]any{
				"score":                 float64(88),
				"temperature_deviation": float64(-0.4),
				"contributors": map[string]any{
					"hrv_balance":    float64(77),
					"recovery_index": float64(100),
					"unknown":        "ignored",
				},
			},
			want: "**Readiness Data**:\n- Readiness Score: 88/100\n- Temperature Deviation: -0.40°C\n" +
				"- Contributing Factors:\n  - HRV Balance: 77/100\n  - Recovery Index: 100/100",
		},
		{
			name: "positive deviation and null contributor",
			readiness: map[string]any{
				"temperature_deviation": float64(0.25),
				"contributors":          map[string]any{"sleep_balance": nil},
			},
			want: "**Readiness Data**:\n- Temperature Deviation: +0.25°C",
		},
		{
			name:      "empty",
			readiness: map[string]any{},
			want:      "**Readiness Data**: No readiness data available for this date.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatReadiness(tt.readiness); got != tt.want {
				t.Errorf("formatReadiness() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatHeartRate(t *testing.T) {
	assert.Equal(t, "**Heart Rate Data**: No heart rate data available for this date.", formatHeartRate(nil))

	got := formatHeartRate(&entity.HeartRateSummary{Min: 52, Max: 131, Avg: 71.6, Samples: 1288})
	want := "**Heart Rate Data**:\n- Minimum Heart Rate: 52 bpm\n- Maximum Heart Rate: 131 bpm\n" +
		"- Average Heart Rate: 72 bpm\n- Data Points Collected: 1,288"
	assert.Equal(t, want, got)
}

func TestBuildPrompt_EmptyRecord(t *testing.T) {
	record := &entity.HealthRecord{Date: time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)}

	prompt := BuildPrompt(record)

	assert.True(t, strings.HasPrefix(prompt, "Please analyze my health data for 2025-03-09"))
	for _, s := range []string{
		"**Sleep Data**: No sleep data available for this date.",
		"**Activity Data**: No activity data available for this date.",
		"**Readiness Data**: No readiness data available for this date.",
		"**Heart Rate Data**: No heart rate data available for this date.",
		"7. <b>Trends & Patterns</b>",
	} {
		assert.Contains(t, prompt, s)
	}
}

func TestNumber(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		want   float64
		wantOK bool
	}{
		{"float", float64(1.5), 1.5, true},
		{"int", 3, 3, true},
		{"int64", int64(4), 4, true},
		{"json number", json.Number("7.25"), 7.25, true},
		{"bad json number", json.Number("x"), 0, false},
		{"string", "12", 0, false},
		{"null", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := number(map[string]any{"k": tt.value}, "k")
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("number() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNoOp_Analyze(t *testing.T) {
	record := &entity.HealthRecord{
		Date:  time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		Sleep: map[string]any{"score": float64(70)},
	}

	summary, err := NewNoOp(0).Analyze(context.Background(), record)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(summary, "Sleep Data:\n- Sleep Score: 70/100"))
	assert.NotContains(t, summary, "**")

	short, err := NewNoOp(20).Analyze(context.Background(), record)
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(short)), 20)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewNoOp(0).Analyze(ctx, record)
	assert.ErrorIs(t, err, context.Canceled)
}

package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"health-assistant/internal/domain/entity"
)

// SystemPrompt sets the assistant's role and the Telegram HTML output format.
const SystemPrompt = "You are a knowledgeable health and wellness assistant. " +
	"Your role is to analyze health data from wearable devices and provide " +
	"comprehensive, actionable insights. Focus on trends, patterns, and " +
	"personalized recommendations. Be encouraging but honest about areas " +
	"that need improvement. Format your response in clear sections with " +
	"HTML formatting for Telegram. Use <b>bold</b>, <i>italic</i>, " +
	"<code>code</code>, and <pre>preformatted</pre> tags. Use proper line breaks."

const instructions = `Please provide:
1. <b>Overall Health Summary</b>: A brief overview of my day's health metrics
2. <b>Sleep Analysis</b>: Detailed insights about sleep quality, duration, and recommendations
3. <b>Activity Analysis</b>: Assessment of physical activity levels and suggestions
4. <b>Recovery & Readiness</b>: Evaluation of recovery status and what it means for today
5. <b>Heart Rate Insights</b>: Analysis of heart rate patterns and cardiovascular health indicators
6. <b>Key Recommendations</b>: 3-5 actionable suggestions to improve my health based on today's data
7. <b>Trends & Patterns</b>: Any notable patterns or areas of concern

Format the response in HTML for Telegram. Use <b>bold</b> for headers and emphasis, bullet points with proper line breaks, and clear sections. Be specific, encouraging, and actionable.`

var printer = message.NewPrinter(language.English)

// BuildPrompt renders the user prompt for record.
func BuildPrompt(record *entity.HealthRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Please analyze my health data for %s and provide a comprehensive daily summary with personalized insights and recommendations.\n\n",
		record.DateString())
	b.WriteString(FormatSections(record))
	b.WriteString("\n\n")
	b.WriteString(instructions)
	return b.String()
}

// FormatSections renders the four data sections separated by blank lines.
func FormatSections(record *entity.HealthRecord) string {
	return strings.Join([]string{
		formatSleep(record.Sleep),
		formatActivity(record.Activity),
		formatReadiness(record.Readiness),
		formatHeartRate(record.HeartRate),
	}, "\n\n")
}

// section collects "- label: value" lines under a title.
type section struct {
	lines []string
}

func newSection(title string) *section {
	return &section{lines: []string{"**" + title + "**:"}}
}

func (s *section) add(format string, args ...any) {
	s.lines = append(s.lines, printer.Sprintf(format, args...))
}

func (s *section) String() string {
	return strings.Join(s.lines, "\n")
}

func formatSleep(sleep map[string]any) string {
	if len(sleep) == 0 {
		return "**Sleep Data**: No sleep data available for this date."
	}
	s := newSection("Sleep Data")
	if v, ok := number(sleep, "score"); ok {
		s.add("- Sleep Score: %.0f/100", v)
	}
	if v, ok := number(sleep, "total_sleep_duration"); ok {
		s.add("- Total Sleep Duration: %.1f hours", v/3600)
	}
	if v, ok := number(sleep, "efficiency"); ok {
		s.add("- Sleep Efficiency: %.0f%%", v)
	}
	if v, ok := number(sleep, "restfulness"); ok {
		s.add("- Restfulness: %.0f%%", v)
	}
	if v, ok := number(sleep, "rem_sleep_duration"); ok {
		s.add("- REM Sleep: %.1f hours", v/3600)
	}
	if v, ok := number(sleep, "deep_sleep_duration"); ok {
		s.add("- Deep Sleep: %.1f hours", v/3600)
	}
	if v, ok := number(sleep, "light_sleep_duration"); ok {
		s.add("- Light Sleep: %.1f hours", v/3600)
	}
	if v, ok := number(sleep, "latency"); ok {
		s.add("- Sleep Latency: %.0f minutes", v/60)
	}
	if v, ok := number(sleep, "average_heart_rate"); ok {
		s.add("- Average Heart Rate (sleep): %v bpm", v)
	}
	if v, ok := number(sleep, "lowest_heart_rate"); ok {
		s.add("- Lowest Heart Rate: %v bpm", v)
	}
	if v, ok := number(sleep, "average_hrv"); ok {
		s.add("- Average HRV: %v ms", v)
	}
	addContributors(s, sleep)
	return s.String()
}

func formatActivity(activity map[string]any) string {
	if len(activity) == 0 {
		return "**Activity Data**: No activity data available for this date."
	}
	s := newSection("Activity Data")
	if v, ok := number(activity, "score"); ok {
		s.add("- Activity Score: %.0f/100", v)
	}
	if v, ok := number(activity, "steps"); ok {
		s.add("- Steps: %d", int64(v))
	}
	if v, ok := number(activity, "active_calories"); ok {
		s.add("- Active Calories: %.0f kcal", v)
	}
	if v, ok := number(activity, "total_calories"); ok {
		s.add("- Total Calories: %.0f kcal", v)
	}
	if v, ok := number(activity, "equivalent_walking_distance"); ok {
		s.add("- Walking Distance: %.2f km", v/1000)
	}
	for _, m := range []struct{ key, label string }{
		{"high_activity_time", "High Activity Time"},
		{"medium_activity_time", "Medium Activity Time"},
		{"low_activity_time", "Low Activity Time"},
		{"sedentary_time", "Sedentary Time"},
	} {
		if v, ok := number(activity, m.key); ok {
			s.add("- %s: %.0f minutes", m.label, v/60)
		}
	}
	if v, ok := number(activity, "average_met_minutes"); ok {
		s.add("- Average MET: %.1f", v)
	}
	return s.String()
}

func formatReadiness(readiness map[string]any) string {
	if len(readiness) == 0 {
		return "**Readiness Data**: No readiness data available for this date."
	}
	s := newSection("Readiness Data")
	if v, ok := number(readiness, "score"); ok {
		s.add("- Readiness Score: %.0f/100", v)
	}
	if v, ok := number(readiness, "temperature_deviation"); ok {
		s.add("- Temperature Deviation: %+.2f°C", v)
	}
	addContributors(s, readiness)
	return s.String()
}

func formatHeartRate(hr *entity.HeartRateSummary) string {
	if hr == nil || hr.Samples == 0 {
		return "**Heart Rate Data**: No heart rate data available for this date."
	}
	s := newSection("Heart Rate Data")
	s.add("- Minimum Heart Rate: %d bpm", hr.Min)
	s.add("- Maximum Heart Rate: %d bpm", hr.Max)
	s.add("- Average Heart Rate: %.0f bpm", hr.Avg)
	s.add("- Data Points Collected: %d", hr.Samples)
	return s.String()
}

// contributorLabels lists the known contributor keys in display order.
var contributorLabels = []struct{ key, label string }{
	{"activity_balance", "Activity Balance"},
	{"body_temperature", "Body Temperature"},
	{"hrv_balance", "HRV Balance"},
	{"previous_day_activity", "Previous Day Activity"},
	{"previous_night", "Previous Night"},
	{"recovery_index", "Recovery Index"},
	{"resting_heart_rate", "Resting Heart Rate"},
	{"sleep_balance", "Sleep Balance"},
	{"deep_sleep", "Deep Sleep"},
	{"efficiency", "Efficiency"},
	{"latency", "Latency"},
	{"rem_sleep", "REM Sleep"},
	{"restfulness", "Restfulness"},
	{"timing", "Timing"},
	{"total_sleep", "Total Sleep"},
}

func addContributors(s *section, data map[string]any) {
	contributors, ok := data["contributors"].(map[string]any)
	if !ok || len(contributors) == 0 {
		return
	}
	header := len(s.lines)
	for _, c := range contributorLabels {
		if v, ok := number(contributors, c.key); ok {
			s.add("  - %s: %.0f/100", c.label, v)
		}
	}
	if len(s.lines) > header {
		s.lines = append(s.lines[:header], append([]string{"- Contributing Factors:"}, s.lines[header:]...)...)
	}
}

// number reads a numeric field. JSON nulls and non-numeric values are absent.
func number(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

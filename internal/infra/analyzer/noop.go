package analyzer

import (
	"context"
	"strings"

	"health-assistant/internal/domain/entity"
	"health-assistant/internal/utils/text"
)

// NoOp returns the formatted health data without calling any provider.
// Used for dry runs and local development.
type NoOp struct {
	maxRunes int
}

// NewNoOp creates a NoOp analyzer. maxRunes <= 0 uses DefaultMaxSummaryRunes.
func NewNoOp(maxRunes int) *NoOp {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxSummaryRunes
	}
	return &NoOp{maxRunes: maxRunes}
}

// Analyze returns the record's data sections as plain text.
func (n *NoOp) Analyze(ctx context.Context, record *entity.HealthRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	summary := strings.ReplaceAll(FormatSections(record), "**", "")
	return text.Truncate(summary, n.maxRunes, "..."), nil
}

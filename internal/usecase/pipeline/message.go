package pipeline

import (
	"fmt"
	"strings"
	"time"

	"health-assistant/internal/domain/entity"
)

// headerDateLayout renders e.g. "Sunday, March 09, 2025".
const headerDateLayout = "Monday, January 02, 2006"

// SummaryMessage prefixes the analysis with the daily header.
func SummaryMessage(targetDate time.Time, summary string) entity.Message {
	body := fmt.Sprintf("🏥 <b>Daily Health Summary</b>\n📅 %s\n\n%s",
		targetDate.Format(headerDateLayout), strings.TrimSpace(summary))
	return entity.HTMLMessage(body)
}

// FailureNotice builds the plain text notice sent when a tenant's run fails.
// It carries the classified reason only; details stay in the operator log.
func FailureNotice(tenant Tenant, targetDate time.Time, kind entity.ErrorKind) entity.Message {
	body := fmt.Sprintf("⚠️ Health Assistant Error\n\n"+
		"Failed to generate the daily health summary for %s (%s).\n\n"+
		"Reason: %s\n\n"+
		"Please check the logs for details.",
		tenant.DisplayName(), targetDate.Format(entity.DateLayout), describeKind(kind))
	return entity.PlainMessage(body)
}

func describeKind(kind entity.ErrorKind) string {
	switch kind {
	case entity.ErrorKindFetchAuth:
		return "the health data provider rejected the access token"
	case entity.ErrorKindFetchRateLimited:
		return "the health data provider is rate limiting requests"
	case entity.ErrorKindFetchTransient:
		return "the health data provider is temporarily unavailable"
	case entity.ErrorKindAnalysisQuotaExceeded:
		return "the analysis service quota is exhausted"
	case entity.ErrorKindAnalysisContentFiltered:
		return "the analysis service refused the request"
	case entity.ErrorKindAnalysisTransient:
		return "the analysis service is temporarily unavailable"
	default:
		return "an internal error occurred"
	}
}

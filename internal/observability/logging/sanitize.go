package logging

import "regexp"

var (
	// 注意: より具体的なパターンから適用する
	anthropicKeyPattern = regexp.MustCompile(`sk-ant-[a-zA-Z0-9-_]+`)
	openaiKeyPattern    = regexp.MustCompile(`sk-[a-zA-Z0-9]{10,}`)

	// Telegram bot tokens appear in request URLs: /bot<id>:<secret>/sendMessage
	telegramTokenPattern = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

	// Discord and Slack webhook URLs carry their secret in the path
	discordWebhookPattern = regexp.MustCompile(`(/api/webhooks/[0-9]+/)[A-Za-z0-9_-]+`)
	slackWebhookPattern   = regexp.MustCompile(`(hooks\.slack\.com/services/)[A-Za-z0-9/]+`)

	bearerPattern = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._~+/=-]+`)
)

// SanitizeError returns err's message with credentials masked.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return Sanitize(err.Error())
}

// Sanitize masks API keys, bot tokens and webhook secrets in msg.
func Sanitize(msg string) string {
	msg = anthropicKeyPattern.ReplaceAllString(msg, "sk-ant-****")
	msg = openaiKeyPattern.ReplaceAllString(msg, "sk-****")
	msg = telegramTokenPattern.ReplaceAllString(msg, "bot****")
	msg = discordWebhookPattern.ReplaceAllString(msg, "${1}****")
	msg = slackWebhookPattern.ReplaceAllString(msg, "${1}****")
	msg = bearerPattern.ReplaceAllString(msg, "${1}****")
	return msg
}

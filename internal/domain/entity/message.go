package entity

// MessageFormat tells a notifier how to render a message body.
type MessageFormat string

const (
	// FormatHTML bodies use the Telegram HTML subset (<b>, <i>, <u>, <code>).
	FormatHTML MessageFormat = "html"
	// FormatPlain bodies are sent verbatim.
	FormatPlain MessageFormat = "plain"
)

// Message is one notification for a tenant.
type Message struct {
	Body   string
	Format MessageFormat
}

// HTMLMessage builds an HTML formatted message.
func HTMLMessage(body string) Message {
	return Message{Body: body, Format: FormatHTML}
}

// PlainMessage builds a plain text message.
func PlainMessage(body string) Message {
	return Message{Body: body, Format: FormatPlain}
}

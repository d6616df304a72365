package notifier

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// markup describes how Telegram-style HTML is rendered for a channel.
type markup struct {
	bold   string
	italic string
	code   string
	link   func(href, label string) string
}

var (
	plainMarkup = markup{
		link: func(href, label string) string {
			if href == "" || href == label {
				return label
			}
			return label + " (" + href + ")"
		},
	}

	discordMarkup = markup{
		bold:   "**",
		italic: "*",
		code:   "`",
		link: func(href, label string) string {
			if href == "" {
				return label
			}
			return "[" + label + "](" + href + ")"
		},
	}

	slackMarkup = markup{
		bold:   "*",
		italic: "_",
		code:   "`",
		link: func(href, label string) string {
			if href == "" {
				return label
			}
			return "<" + href + "|" + label + ">"
		},
	}
)

// render converts the small HTML subset used in summaries (b, i, u, s, code,
// pre, a, br) into the target markup. Unknown tags are dropped and their text
// kept. Entities are decoded. Input that cannot be parsed is returned as-is.
func render(body string, m markup) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return body
	}

	var b strings.Builder
	doc.Find("body").Contents().Each(func(_ int, s *goquery.Selection) {
		renderNode(&b, s, m)
	})
	return strings.TrimSpace(b.String())
}

func renderNode(b *strings.Builder, s *goquery.Selection, m markup) {
	children := func() {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			renderNode(b, c, m)
		})
	}
	wrap := func(marker string) {
		b.WriteString(marker)
		children()
		b.WriteString(marker)
	}

	switch goquery.NodeName(s) {
	case "#text":
		b.WriteString(s.Text())
	case "#comment":
	case "b", "strong":
		wrap(m.bold)
	case "i", "em":
		wrap(m.italic)
	case "code", "pre":
		wrap(m.code)
	case "br":
		b.WriteString("\n")
	case "a":
		href, _ := s.Attr("href")
		b.WriteString(m.link(href, s.Text()))
	default:
		children()
	}
}

// plainText strips HTML markup.
func plainText(body string) string {
	return render(body, plainMarkup)
}

// bodyFor renders msg for a channel that does not understand HTML.
func bodyFor(msgBody string, html bool, m markup) string {
	if !html {
		return msgBody
	}
	return render(msgBody, m)
}

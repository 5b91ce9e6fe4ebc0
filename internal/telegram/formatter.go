package telegram

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"
)

// MaxMessageLength is the Bot API limit for one text message
const MaxMessageLength = 4096

// FormatNotice formats a notice notification as a Telegram HTML message
func FormatNotice(title, body, link string) string {
	var msg strings.Builder

	msg.WriteString(fmt.Sprintf("📋 <b>%s</b>\n\n", html.EscapeString(title)))

	if body != "" {
		msg.WriteString(html.EscapeString(body))
		msg.WriteString("\n")
	}

	if link != "" {
		msg.WriteString(fmt.Sprintf("\n🔗 <a href=\"%s\">Open notice</a>\n", html.EscapeString(link)))
	}

	msg.WriteString("\n#BidScout")

	return truncate(msg.String(), MaxMessageLength)
}

// truncate cuts s to at most limit runes, ending with an ellipsis
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}

package digest

import (
	"fmt"
	"strings"

	"chat-digest-bot/internal/domain"
)

const itemMaxLen = 200

// FormatItems формирует текстовое представление дайджеста: по одной
// маркированной строке на сообщение, в порядке позиций.
func FormatItems(items []domain.DeliveryItem) string {
	if len(items) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, item := range items {
		if i > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString("• " + formatItem(item))
	}
	return builder.String()
}

func formatItem(item domain.DeliveryItem) string {
	text := collapseWhitespace(item.Text)
	runes := []rune(text)
	if len(runes) > itemMaxLen {
		text = strings.TrimRight(string(runes[:itemMaxLen-1]), " ") + "…"
	}

	line := fmt.Sprintf("[%s] %s", item.CreatedAt.Format("02.01 15:04"), text)
	if len(item.Topics) > 0 {
		line += " — " + strings.Join(item.Topics, ", ")
	}
	return line
}

// collapseWhitespace приводит многострочный текст к одной строке.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

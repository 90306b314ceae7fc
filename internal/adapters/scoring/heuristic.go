package scoring

import (
	"regexp"
	"strings"
	"unicode"
)

// Параметры локальной эвристики важности.
const (
	maxImportantLength = 300
	urgencyBonus       = 0.1
	uppercaseThreshold = 0.3
	minTopicLength     = 5
)

var topicCleanup = regexp.MustCompile(`[^a-zA-Zа-яА-ЯёЁ0-9-]`)

// HeuristicImportance оценивает важность текста без обращения к ML сервису.
// Длина текста даёт базовую оценку, терминальная пунктуация и высокая доля
// заглавных букв — фиксированные бонусы.
func HeuristicImportance(text string) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	runes := []rune(text)
	lengthScore := float64(len(runes)) / maxImportantLength
	if lengthScore > 1 {
		lengthScore = 1
	}

	urgencyScore := 0.0
	if strings.ContainsAny(text, "!?") {
		urgencyScore += urgencyBonus
	}

	upper := 0
	for _, r := range runes {
		if unicode.IsLetter(r) && unicode.IsUpper(r) {
			upper++
		}
	}
	if float64(upper)/float64(len(runes)) > uppercaseThreshold {
		urgencyScore += urgencyBonus
	}

	score := lengthScore + urgencyScore
	if score > 1 {
		return 1
	}
	return score
}

// HeuristicTopics извлекает темы из текста: достаточно длинные
// буквенно-цифровые токены в нижнем регистре, без дублей, в порядке
// появления.
func HeuristicTopics(text string) []string {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil
	}

	seen := make(map[string]struct{})
	var topics []string
	for _, word := range strings.Fields(text) {
		cleaned := topicCleanup.ReplaceAllString(word, "")
		if len([]rune(cleaned)) < minTopicLength {
			continue
		}
		if _, ok := seen[cleaned]; ok {
			continue
		}
		seen[cleaned] = struct{}{}
		topics = append(topics, cleaned)
	}
	return topics
}

// SanitizeTopics приводит список тем к каноническому виду: нижний регистр,
// очистка от посторонних символов, отбрасывание коротких токенов, дедупликация
// с сохранением порядка.
func SanitizeTopics(raw []string) []string {
	seen := make(map[string]struct{})
	var topics []string
	for _, topic := range raw {
		cleaned := topicCleanup.ReplaceAllString(strings.ToLower(strings.TrimSpace(topic)), "")
		if len([]rune(cleaned)) < minTopicLength {
			continue
		}
		if _, ok := seen[cleaned]; ok {
			continue
		}
		seen[cleaned] = struct{}{}
		topics = append(topics, cleaned)
	}
	return topics
}

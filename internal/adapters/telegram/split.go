// Package telegram содержит утилиты Bot API, общие для адаптеров.
package telegram

import "strings"

// MessageLimit: максимальная длина сообщения Telegram в символах.
const MessageLimit = 4096

// SplitMessage режет текст на части не длиннее limit символов.
// Граница ищется сначала по пустой строке, затем по переводу строки, затем по пробелу.
func SplitMessage(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if limit <= 0 {
		limit = MessageLimit
	}
	runes := []rune(trimmed)
	var parts []string
	for len(runes) > limit {
		cut := splitPoint(runes[:limit])
		if chunk := strings.TrimSpace(string(runes[:cut])); chunk != "" {
			parts = append(parts, chunk)
		}
		runes = []rune(strings.TrimLeft(string(runes[cut:]), " \n"))
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		parts = append(parts, rest)
	}
	return parts
}

func splitPoint(window []rune) int {
	for i := len(window) - 1; i > 0; i-- {
		if window[i] == '\n' && window[i-1] == '\n' {
			return i + 1
		}
	}
	for _, sep := range []rune{'\n', ' '} {
		for i := len(window) - 1; i > 0; i-- {
			if window[i] == sep {
				return i + 1
			}
		}
	}
	return len(window)
}

package dispatch

import "math"

// EstimateTokens грубо оценивает число токенов: иероглиф: полтокена, прочий символ: четверть.
func EstimateTokens(text string) int {
	var cjk, other int
	for _, r := range text {
		if r >= '\u4e00' && r <= '\u9fa5' {
			cjk++
		} else {
			other++
		}
	}
	return int(math.Ceil(float64(cjk)/2 + float64(other)/4))
}

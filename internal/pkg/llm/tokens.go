package llm

import "unicode"

// EstimateTokens provider 未返回用量时按长度估算 token 数
func EstimateTokens(text string) int {
	chars := 0
	symbols := 0
	for _, r := range text {
		chars++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			symbols++
		}
	}
	n := chars/4 + symbols/2
	if n < 1 {
		return 1
	}
	return n
}

// Package readability 计算英文文本的可读性与阅读时长
package readability

import (
	"math"
	"regexp"
	"strings"
	"unicode"
)

// WordsPerMinute 估算阅读时长使用的阅读速度
const WordsPerMinute = 200

var (
	sentenceEnd = regexp.MustCompile(`[.!?]+`)
	vowelGroup  = regexp.MustCompile(`[aeiouy]+`)
	markup      = regexp.MustCompile("(?m)^#+\\s*|[*_`>|]|\\[([^\\]]*)\\]\\([^)]*\\)")
)

// Stats 文本统计
type Stats struct {
	Words     int
	Sentences int
	Syllables int
}

// Analyze 去掉 markdown 标记后统计词数、句数、音节数
func Analyze(text string) Stats {
	plain := markup.ReplaceAllString(text, "$1")
	words := Words(plain)
	s := Stats{Words: len(words)}
	for _, w := range words {
		s.Syllables += Syllables(w)
	}
	for _, part := range sentenceEnd.Split(plain, -1) {
		if len(Words(part)) > 0 {
			s.Sentences++
		}
	}
	if s.Sentences == 0 && s.Words > 0 {
		s.Sentences = 1
	}
	return s
}

// Words 按非字母数字切词
func Words(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// Syllables 英文单词音节数的启发式估算
func Syllables(word string) int {
	w := strings.ToLower(strings.Trim(word, "'"))
	if len(w) <= 3 {
		return 1
	}
	trimmed := w
	for _, suffix := range []string{"es", "ed", "e"} {
		if strings.HasSuffix(trimmed, suffix) && len(trimmed) > len(suffix) {
			trimmed = strings.TrimSuffix(trimmed, suffix)
			break
		}
	}
	count := len(vowelGroup.FindAllString(trimmed, -1))
	if strings.HasSuffix(w, "le") && len(w) > 2 && !strings.ContainsRune("aeiouy", rune(w[len(w)-3])) {
		count++
	}
	if count < 1 {
		return 1
	}
	return count
}

// FleschReadingEase 0-100，越高越易读
func FleschReadingEase(text string) float64 {
	s := Analyze(text)
	if s.Words == 0 {
		return 0
	}
	asl := float64(s.Words) / float64(s.Sentences)
	asw := float64(s.Syllables) / float64(s.Words)
	score := 206.835 - 1.015*asl - 84.6*asw
	return math.Max(0, math.Min(100, math.Round(score*10)/10))
}

// ReadTimeMinutes 至少 1 分钟
func ReadTimeMinutes(text string) float64 {
	words := Analyze(text).Words
	if words == 0 {
		return 0
	}
	return math.Max(1, math.Ceil(float64(words)/WordsPerMinute))
}

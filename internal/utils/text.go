package utils

import (
	"encoding/json"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	listMarker = regexp.MustCompile(`^\s*(?:[-*+•]|\d+[.)]|#+)\s*`)
	slugStrip  = regexp.MustCompile(`[^a-z0-9]+`)
)

// ParseList 解析模型返回的列表：优先 JSON 字符串数组，否则按行去掉项目符号
func ParseList(content string) []string {
	var items []string
	if raw := ExtractJSONArray(content); strings.HasPrefix(strings.TrimSpace(raw), "[") {
		if err := json.Unmarshal([]byte(raw), &items); err == nil {
			return compact(items)
		}
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		line = listMarker.ReplaceAllString(line, "")
		line = strings.Trim(line, "*_`\"' ")
		items = append(items, line)
	}
	return compact(items)
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

// Slugify 生成文件名用的 slug
func Slugify(s string) string {
	slug := strings.Trim(slugStrip.ReplaceAllString(strings.ToLower(s), "_"), "_")
	if len(slug) > 60 {
		slug = strings.TrimRight(slug[:60], "_")
	}
	if slug == "" {
		return "post"
	}
	return slug
}

// TitleCase 英文标题大小写，只改每个词的首字母，WCAG 这类缩写保持原样。
// Caser 有状态，每次新建
func TitleCase(s string) string {
	return cases.Title(language.English, cases.NoLower).String(strings.TrimSpace(s))
}

package utils

import (
	"encoding/json"
	"strings"

	"k8s.io/klog/v2"
)

// ExtractJSON 从文本中提取第一个完整的 JSON 对象
func ExtractJSON(content string) string {
	return extractBalanced(content, '{', '}')
}

// ExtractJSONArray 从文本中提取第一个完整的 JSON 数组
func ExtractJSONArray(content string) string {
	return extractBalanced(content, '[', ']')
}

func extractBalanced(content string, open, close rune) string {
	start := -1
	end := -1
	depth := 0
	inString := false
	escaped := false

	for i, ch := range content {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if start != -1 {
				inString = true
			}
		case open:
			if depth == 0 {
				start = i
			}
			depth++
		case close:
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start != -1 {
				end = i + 1
			}
		}
		if end != -1 {
			break
		}
	}

	if start >= 0 && end > start {
		return content[start:end]
	}

	return content
}

// DecodeJSON 先提取 JSON 对象再反序列化
func DecodeJSON(content string, v any) error {
	return json.Unmarshal([]byte(ExtractJSON(content)), v)
}

func ToJSON(v any) string {
	jsonData, err := json.Marshal(v)
	if err != nil {
		klog.Errorf("JSON序列化失败: %v", err)
		return ""
	}
	return string(jsonData)
}

// ExtractMarkdown 从文本中提取 Markdown 内容
// 尝试提取 ```markdown ... ``` 代码块，如果没有代码块则返回原始内容
func ExtractMarkdown(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return content
	}

	// 跳过 ``` 和语言标识所在行
	nl := strings.IndexByte(trimmed, '\n')
	if nl < 0 {
		return content
	}
	lang := strings.ToLower(strings.TrimSpace(trimmed[3:nl]))
	if lang != "" && lang != "markdown" && lang != "md" {
		return content
	}
	body := trimmed[nl+1:]
	end := strings.LastIndex(body, "```")
	if end < 0 {
		klog.V(6).Infof("[ExtractMarkdown] 代码块未闭合，返回原始内容")
		return content
	}
	klog.V(6).Infof("[ExtractMarkdown] 提取到 Markdown 代码块，长度: %d", end)
	return strings.TrimRight(body[:end], "\n")
}

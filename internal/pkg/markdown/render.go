// Package markdown 负责文章的 Markdown 渲染与解析。
// Render 是纯函数：同样的 title / outline / content 总是得到同样的输出。
package markdown

import (
	"regexp"
	"strings"
)

// DefaultTLDR 内容缺少 TLDR 小节时补充的默认摘要
const DefaultTLDR = "A concise overview of digital accessibility requirements across different industries, " +
	"highlighting key considerations, benefits, and implementation strategies for creating inclusive digital experiences."

var (
	h1Line     = regexp.MustCompile(`^ {0,3}#\s+(.+?)(?:\s+#+)?\s*$`)
	h2Line     = regexp.MustCompile(`^ {0,3}##\s+(.+?)(?:\s+#+)?\s*$`)
	setextRule = regexp.MustCompile(`^ {0,3}(?:-+|=+)\s*$`)
	fenceLine  = regexp.MustCompile("^ {0,3}(`{3,}|~{3,})(.*)$")
	keyStrip   = regexp.MustCompile(`[^a-z0-9]+`)
)

// Section 一个 H2 小节
type Section struct {
	Title string
	Body  string
}

// Split 按 H2 切分内容，代码块内的 ## 不算标题
func Split(content string) (preamble string, sections []Section) {
	var pre []string
	var cur *Section
	var body []string
	var f fence

	flush := func() {
		if cur != nil {
			cur.Body = strings.Trim(strings.Join(body, "\n"), "\n")
			sections = append(sections, *cur)
		}
	}

	for _, line := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n") {
		if !f.feed(line) {
			if m := h2Line.FindStringSubmatch(line); m != nil {
				flush()
				cur = &Section{Title: strings.TrimSpace(m[1])}
				body = nil
				continue
			}
		}
		if cur == nil {
			pre = append(pre, line)
		} else {
			body = append(body, line)
		}
	}
	flush()
	return strings.Trim(strings.Join(pre, "\n"), "\n"), sections
}

// fence 按 CommonMark 规则跟踪围栏代码块：``` 或 ~~~，至少 3 个，
// 用同一字符且不短于开头的围栏关闭
type fence struct {
	char byte
	n    int
}

// feed 读入一行，返回该行是否属于代码块（围栏行本身也算）
func (f *fence) feed(line string) bool {
	m := fenceLine.FindStringSubmatch(line)
	if f.n == 0 {
		if m == nil || (m[1][0] == '`' && strings.Contains(m[2], "`")) {
			return false
		}
		f.char, f.n = m[1][0], len(m[1])
		return true
	}
	if m != nil && m[1][0] == f.char && len(m[1]) >= f.n && strings.TrimSpace(m[2]) == "" {
		f.n = 0
	}
	return true
}

func (f *fence) open() bool { return f.n > 0 }

// CloseFences 补上未关闭的围栏，避免吞掉后面的小节
func CloseFences(body string) string {
	var f fence
	for _, line := range strings.Split(body, "\n") {
		f.feed(line)
	}
	if !f.open() {
		return body
	}
	return body + "\n" + strings.Repeat(string(f.char), f.n)
}

// Key 标题比较用的归一化键，行内标记不参与比较
func Key(title string) string {
	return strings.Trim(keyStrip.ReplaceAllString(strings.ToLower(PlainText(title)), " "), " ")
}

// IsTLDR 是否为 TLDR / TL;DR / In a Nutshell 小节
func IsTLDR(title string) bool {
	switch Key(title) {
	case "tldr", "tl dr", "in a nutshell":
		return true
	}
	return false
}

// Title 取第一行 H1 作为标题
func Title(content string) string {
	var f fence
	for _, line := range strings.Split(content, "\n") {
		if f.feed(strings.TrimRight(line, "\r")) {
			continue
		}
		if m := h1Line.FindStringSubmatch(strings.TrimRight(line, "\r")); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// StripTitle 去掉正文开头的 H1 行
func StripTitle(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if h1Line.MatchString(strings.TrimRight(line, "\r")) {
			return strings.TrimLeft(strings.Join(lines[i+1:], "\n"), "\n")
		}
		break
	}
	return content
}

// Render 生成导出用的 Markdown：H1 标题，TLDR 小节，再按 outline 顺序输出各 H2 小节。
// 正文中不在 outline 里的小节按原顺序追加在末尾。
func Render(title string, outline []string, content string) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(oneLine(title))
	b.WriteString("\n\n")

	preamble, sections := Split(StripTitle(content))
	if p := strings.TrimSpace(preamble); p != "" {
		b.WriteString(normalizeBody(CloseFences(p)))
		b.WriteString("\n\n")
	}

	hasTLDR := false
	for _, o := range outline {
		if IsTLDR(o) {
			hasTLDR = true
		}
	}
	for _, s := range sections {
		if IsTLDR(s.Title) {
			hasTLDR = true
		}
	}
	if !hasTLDR {
		writeSection(&b, "TLDR", DefaultTLDR)
	}

	used := make([]bool, len(sections))
	for _, o := range outline {
		body := ""
		k := Key(o)
		for i, s := range sections {
			if !used[i] && Key(s.Title) == k {
				used[i] = true
				body = s.Body
				break
			}
		}
		writeSection(&b, o, body)
	}
	for i, s := range sections {
		if !used[i] {
			writeSection(&b, s.Title, s.Body)
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeSection(b *strings.Builder, title, body string) {
	b.WriteString("## ")
	b.WriteString(oneLine(title))
	b.WriteString("\n\n")
	if body = strings.TrimSpace(body); body != "" {
		b.WriteString(normalizeBody(CloseFences(body)))
		b.WriteString("\n\n")
	}
}

// normalizeBody 避免 "文字\n---" 被解析成 setext 二级标题
func normalizeBody(body string) string {
	lines := strings.Split(body, "\n")
	out := make([]string, 0, len(lines))
	var f fence
	for i, line := range lines {
		if !f.feed(line) && i > 0 && setextRule.MatchString(line) && strings.TrimSpace(lines[i-1]) != "" {
			out = append(out, "")
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

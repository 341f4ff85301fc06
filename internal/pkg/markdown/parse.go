package markdown

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Headings 解析出指定级别的标题文本，level 为 0 时返回全部
func Headings(src string, level int) []string {
	source := []byte(src)
	doc := md.Parser().Parse(text.NewReader(source))

	var out []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok {
			if level == 0 || h.Level == level {
				out = append(out, oneLine(string(h.Text(source))))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return out
}

// PlainText 去掉标题中的行内标记（代码、强调、HTML），结果与 Headings 解析出的文本一致
func PlainText(title string) string {
	title = oneLine(title)
	if !strings.ContainsAny(title, "`*_<>[]!&#\\") {
		return title
	}
	if hs := Headings("## "+title, 2); len(hs) == 1 {
		return hs[0]
	}
	return title
}

// ToHTML 预览用的 HTML
func ToHTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

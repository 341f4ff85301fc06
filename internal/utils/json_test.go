package utils

import (
	"reflect"
	"testing"
)

func TestExtractJSONSkipsProse(t *testing.T) {
	content := "Here is the review:\n{\"structure\": {\"score\": 8, \"notes\": \"uses {braces}\"}}\nThanks!"
	got := ExtractJSON(content)
	want := "{\"structure\": {\"score\": 8, \"notes\": \"uses {braces}\"}}"
	if got != want {
		t.Fatalf("unexpected json: %s", got)
	}
}

func TestExtractJSONWithoutObject(t *testing.T) {
	if got := ExtractJSON("no json here"); got != "no json here" {
		t.Fatalf("expected original content, got %s", got)
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Confidence float64 `json:"confidence"`
	}
	if err := DecodeJSON("```json\n{\"confidence\": 0.9}\n```", &v); err != nil {
		t.Fatalf("DecodeJSON error: %v", err)
	}
	if v.Confidence != 0.9 {
		t.Fatalf("unexpected confidence %v", v.Confidence)
	}
}

func TestExtractMarkdownFromCodeBlock(t *testing.T) {
	content := "```markdown\n## TL;DR\nShort.\n```"
	if got := ExtractMarkdown(content); got != "## TL;DR\nShort." {
		t.Fatalf("unexpected markdown: %q", got)
	}
	plain := "## Intro\ntext"
	if got := ExtractMarkdown(plain); got != plain {
		t.Fatalf("plain markdown should be untouched, got %q", got)
	}
}

func TestParseListJSONAndBullets(t *testing.T) {
	got := ParseList("Keywords:\n```json\n[\"WCAG\", \"screen readers\", \"\"]\n```")
	if !reflect.DeepEqual(got, []string{"WCAG", "screen readers"}) {
		t.Fatalf("unexpected json list: %v", got)
	}

	got = ParseList("1. **TL;DR**\n2) Introduction\n- What is WCAG?\n\n## Conclusion")
	want := []string{"TL;DR", "Introduction", "What is WCAG?", "Conclusion"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected bullet list: %v", got)
	}
}

func TestSlugifyAndTitleCase(t *testing.T) {
	if got := Slugify("WCAG Compliance: 2024!"); got != "wcag_compliance_2024" {
		t.Fatalf("unexpected slug %q", got)
	}
	if got := Slugify("!!!"); got != "post" {
		t.Fatalf("unexpected empty slug %q", got)
	}
	if got := TitleCase("digital accessibility"); got != "Digital Accessibility" {
		t.Fatalf("unexpected title %q", got)
	}
	if got := TitleCase("WCAG compliance"); got != "WCAG Compliance" {
		t.Fatalf("acronym should keep its case: %q", got)
	}
	if got := TitleCase("WCAG Compliance"); got != "WCAG Compliance" {
		t.Fatalf("title should be unchanged: %q", got)
	}
}

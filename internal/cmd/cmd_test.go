package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/blogforge/backend/config"
	"github.com/blogforge/backend/internal/app"
	"github.com/blogforge/backend/internal/pkg/llm/llmtest"
	"github.com/blogforge/backend/internal/service/stages"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`database:
  type: sqlite
  dsn: %s
data:
  dir: %s
llm:
  primary:
    driver: http
  research:
    driver: http
retry:
  max_retries: 1
  backoff: 1ms
pipeline:
  workers: 2
`, filepath.Join(dir, "app.db"), dir)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func scriptedFactory(ctx context.Context, cfg *config.Config) (*app.App, error) {
	return app.New(ctx, cfg, "test", app.WithProviders(
		llmtest.New("openai", "gpt-4o-mini"),
		llmtest.New("perplexity", "llama-3-sonar-small-online"),
	))
}

var savedLine = regexp.MustCompile(`saved (\S+)`)

func TestRootCommandHasSubcommands(t *testing.T) {
	root := NewRootCmd(scriptedFactory)
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"generate", "posts", "costs", "config"} {
		if !names[want] {
			t.Errorf("missing subcommand %q", want)
		}
	}
}

func TestGenerateListExportAndReport(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := executeCommand(NewRootCmd(scriptedFactory), "--config", cfgPath,
		"generate", "--topic", "web accessibility", "--mode", "manual", "--count", "2")
	if err != nil {
		t.Fatalf("generate: %v\n%s", err, out)
	}
	matches := savedLine.FindAllStringSubmatch(out, -1)
	if len(matches) != 2 {
		t.Fatalf("expected 2 saved posts, got output:\n%s", out)
	}
	if !strings.Contains(out, "total cost this session") {
		t.Fatalf("missing cost summary:\n%s", out)
	}
	id := matches[0][1]

	out, err = executeCommand(NewRootCmd(scriptedFactory), "--config", cfgPath, "posts", "list")
	if err != nil {
		t.Fatalf("posts list: %v", err)
	}
	if strings.Count(out, "web accessibility") != 2 {
		t.Fatalf("posts list output:\n%s", out)
	}

	out, err = executeCommand(NewRootCmd(scriptedFactory), "--config", cfgPath, "posts", "export", id)
	if err != nil {
		t.Fatalf("posts export: %v", err)
	}
	if !strings.HasPrefix(out, "# ") || !strings.Contains(out, "## TLDR") {
		t.Fatalf("unexpected export:\n%s", out)
	}

	out, err = executeCommand(NewRootCmd(scriptedFactory), "--config", cfgPath, "posts", "edit", id, "--title", "Renamed Post")
	if err != nil {
		t.Fatalf("posts edit: %v", err)
	}
	if !strings.Contains(out, `"Renamed Post"`) {
		t.Fatalf("posts edit output:\n%s", out)
	}

	out, err = executeCommand(NewRootCmd(scriptedFactory), "--config", cfgPath, "posts", "show", id)
	if err != nil {
		t.Fatalf("posts show: %v", err)
	}
	if !strings.Contains(out, `"title": "Renamed Post"`) {
		t.Fatalf("posts show output:\n%s", out)
	}

	out, err = executeCommand(NewRootCmd(scriptedFactory), "--config", cfgPath, "costs", "report")
	if err != nil {
		t.Fatalf("costs report: %v", err)
	}
	if !strings.Contains(out, "# API Cost Usage Report") || !strings.Contains(out, "research") {
		t.Fatalf("costs report output:\n%s", out)
	}
}

func TestGenerateValidatesFlags(t *testing.T) {
	cfgPath := writeConfig(t)

	if _, err := executeCommand(NewRootCmd(scriptedFactory), "--config", cfgPath, "generate", "--topic", "x", "--mode", "turbo"); err == nil {
		t.Fatalf("expected invalid mode error")
	}
	if _, err := executeCommand(NewRootCmd(scriptedFactory), "--config", cfgPath, "generate", "--topic", "x", "--count", "0"); err == nil {
		t.Fatalf("expected invalid count error")
	}
	if _, err := executeCommand(NewRootCmd(scriptedFactory), "--config", cfgPath, "generate"); err == nil {
		t.Fatalf("expected missing topic error")
	}
}

func TestPostsEditRequiresChange(t *testing.T) {
	cfgPath := writeConfig(t)
	if _, err := executeCommand(NewRootCmd(scriptedFactory), "--config", cfgPath, "posts", "edit", "some-id"); err == nil {
		t.Fatalf("expected error when nothing to update")
	}
}

func reviewFactory(review string) AppFactory {
	return func(ctx context.Context, cfg *config.Config) (*app.App, error) {
		primary := llmtest.New("openai", "gpt-4o-mini").On(stages.OpReanalysis, llmtest.Step{Text: review})
		return app.New(ctx, cfg, "test", app.WithProviders(
			primary,
			llmtest.New("perplexity", "llama-3-sonar-small-online"),
		))
	}
}

func TestPostsAnalyze(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := executeCommand(NewRootCmd(scriptedFactory), "--config", cfgPath,
		"generate", "--topic", "color contrast", "--mode", "manual")
	if err != nil {
		t.Fatalf("generate: %v\n%s", err, out)
	}
	m := savedLine.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("no saved post in output:\n%s", out)
	}
	id := m[1]

	review := `{"structure":{"score":8},"accessibility":{"score":9,"suggestions":["check focus order"]},"empathy":{"score":7}}`
	out, err = executeCommand(NewRootCmd(reviewFactory(review)), "--config", cfgPath, "posts", "analyze", id)
	if err != nil {
		t.Fatalf("posts analyze: %v\n%s", err, out)
	}
	if !strings.Contains(out, "overall=8.00") || !strings.Contains(out, "- check focus order") {
		t.Fatalf("posts analyze output:\n%s", out)
	}

	out, err = executeCommand(NewRootCmd(scriptedFactory), "--config", cfgPath, "posts", "show", id)
	if err != nil {
		t.Fatalf("posts show: %v", err)
	}
	if !strings.Contains(out, `"overall_score": 8`) {
		t.Fatalf("analysis not stored:\n%s", out)
	}

	if _, err := executeCommand(NewRootCmd(reviewFactory("not json")), "--config", cfgPath, "posts", "analyze", id); err == nil {
		t.Fatalf("expected error when the review cannot be parsed")
	}
}

func TestConfigInit(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := executeCommand(NewRootCmd(scriptedFactory), "--config", path, "config", "init")
	if err != nil {
		t.Fatalf("config init: %v\n%s", err, out)
	}
	if !strings.Contains(out, "wrote "+path) {
		t.Fatalf("config init output:\n%s", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "keyword_cooldown:") || strings.Contains(string(data), "sk-from-env") {
		t.Fatalf("unexpected config file:\n%s", data)
	}
	if _, err := config.Load(path); err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}

	if _, err := executeCommand(NewRootCmd(scriptedFactory), "--config", path, "config", "init"); err == nil {
		t.Fatalf("expected error for existing file")
	}
	if _, err := executeCommand(NewRootCmd(scriptedFactory), "--config", path, "config", "init", "--force"); err != nil {
		t.Fatalf("config init --force: %v", err)
	}
}

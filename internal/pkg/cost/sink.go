package cost

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blogforge/backend/internal/model"
)

const markdownLogHeader = "# API Cost Tracking Log\n\n" +
	"| Timestamp | Provider | Model | Operation | Input Tokens | Output Tokens | Cost ($) | Cumulative Cost ($) |\n" +
	"|-----------|----------|-------|-----------|--------------|---------------|----------|---------------------|\n"

// MarkdownLogSink 以 markdown 表格追加计费行
type MarkdownLogSink struct {
	mu   sync.Mutex
	path string
}

func NewMarkdownLogSink(path string) *MarkdownLogSink {
	return &MarkdownLogSink{path: path}
}

func (s *MarkdownLogSink) WriteEntry(entry model.CostEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create cost log dir: %w", err)
	}

	_, statErr := os.Stat(s.path)
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open cost log: %w", err)
	}
	defer f.Close()

	if errors.Is(statErr, os.ErrNotExist) {
		if _, err := f.WriteString(markdownLogHeader); err != nil {
			return fmt.Errorf("write cost log header: %w", err)
		}
	}
	_, err = f.WriteString(FormatLogRow(entry))
	return err
}

// FormatLogRow 单行表格
func FormatLogRow(e model.CostEntry) string {
	return fmt.Sprintf("| %s | %s | %s | %s | %d | %d | %.4f | %.4f |\n",
		e.Timestamp.Format("2006-01-02 15:04:05"),
		e.Provider, e.Model, e.Operation,
		e.InputTokens, e.OutputTokens,
		e.Cost, e.CumulativeCost)
}

// EntryRepository 计费记录的持久化接口
type EntryRepository interface {
	Create(ctx context.Context, record *model.CostRecord) error
}

// RepositorySink 把计费条目写入数据库
type RepositorySink struct {
	repo    EntryRepository
	timeout time.Duration
}

func NewRepositorySink(repo EntryRepository) *RepositorySink {
	return &RepositorySink{repo: repo, timeout: 5 * time.Second}
}

func (s *RepositorySink) WriteEntry(entry model.CostEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.repo.Create(ctx, &model.CostRecord{
		Provider:       entry.Provider,
		Model:          entry.Model,
		Operation:      entry.Operation,
		InputTokens:    entry.InputTokens,
		OutputTokens:   entry.OutputTokens,
		Cost:           entry.Cost,
		CumulativeCost: entry.CumulativeCost,
		Priced:         entry.Priced,
		Warning:        entry.Warning,
		RecordedAt:     entry.Timestamp,
	})
}

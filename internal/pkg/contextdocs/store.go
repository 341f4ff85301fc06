// Package contextdocs 加载业务背景文档（Auto 模式下 Context 阶段的输入）
package contextdocs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// Document 一份背景文档
type Document struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	Priority int    `json:"priority"`
	Body     string `json:"body"`
}

type frontMatter struct {
	Title    string `yaml:"title"`
	Priority int    `yaml:"priority"`
}

// Store 背景文档的内存快照
type Store struct {
	dir string

	mu   sync.RWMutex
	docs []Document
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string {
	return s.dir
}

// Documents 返回快照副本
func (s *Store) Documents() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Document(nil), s.docs...)
}

// Load 并发读取目录下的 .md/.txt 文件，目录不存在时视为空
func (s *Store) Load(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.set(nil)
			return nil
		}
		return fmt.Errorf("read context dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !isContextFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}

	docs := make([]Document, len(names))
	ok := make([]bool, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// 单个文件坏了只跳过它，其他文档照常可用
			data, err := os.ReadFile(filepath.Join(s.dir, name))
			if err != nil {
				klog.Warningf("跳过背景文档: file=%s, error=%v", name, err)
				return nil
			}
			doc, err := Parse(name, string(data))
			if err != nil {
				klog.Warningf("跳过背景文档: file=%s, error=%v", name, err)
				return nil
			}
			docs[i], ok[i] = doc, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	loaded := docs[:0]
	for i, doc := range docs {
		if ok[i] {
			loaded = append(loaded, doc)
		}
	}
	docs = loaded

	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Priority != docs[j].Priority {
			return docs[i].Priority > docs[j].Priority
		}
		return docs[i].Name < docs[j].Name
	})
	s.set(docs)
	klog.V(6).Infof("加载背景文档完成: dir=%s, count=%d", s.dir, len(docs))
	return nil
}

func (s *Store) set(docs []Document) {
	s.mu.Lock()
	s.docs = docs
	s.mu.Unlock()
}

// Parse 解析可选的 YAML front matter
func Parse(name, content string) (Document, error) {
	doc := Document{Name: name, Body: strings.TrimSpace(content)}
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	if strings.HasPrefix(normalized, "---\n") {
		rest := normalized[len("---\n"):]
		if end := strings.Index(rest, "\n---"); end >= 0 {
			var fm frontMatter
			if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
				return Document{}, fmt.Errorf("parse front matter of %s: %w", name, err)
			}
			doc.Title = fm.Title
			doc.Priority = fm.Priority
			body := rest[end+len("\n---"):]
			doc.Body = strings.TrimSpace(body)
		}
	}
	if doc.Title == "" {
		doc.Title = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return doc, nil
}

func isContextFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".txt":
		return true
	}
	return false
}

package cost

import (
	"sync"

	"github.com/blogforge/backend/internal/model"
	"k8s.io/klog/v2"
)

// Sink 账本追加后的外部落地（日志文件、数据库）
type Sink interface {
	WriteEntry(entry model.CostEntry) error
}

// Ledger 只追加的计费账本，并发安全
type Ledger struct {
	mu      sync.Mutex
	entries []model.CostEntry
	total   float64
	sinks   []Sink
}

func NewLedger(sinks ...Sink) *Ledger {
	return &Ledger{sinks: sinks}
}

// Append 设置累计费用后追加，sink 在锁内调用以保持行顺序与追加顺序一致
func (l *Ledger) Append(entry model.CostEntry) model.CostEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		entry.CumulativeCost = entry.Cost
	} else {
		entry.CumulativeCost = l.entries[len(l.entries)-1].CumulativeCost + entry.Cost
	}
	l.total = entry.CumulativeCost
	l.entries = append(l.entries, entry)

	for _, s := range l.sinks {
		if err := s.WriteEntry(entry); err != nil {
			klog.Warningf("写入计费 sink 失败: operation=%s, error=%v", entry.Operation, err)
		}
	}
	return entry
}

// Entries 返回条目副本
func (l *Ledger) Entries() []model.CostEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.CostEntry(nil), l.entries...)
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Ledger) Total() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Summary 按 provider / model / operation 汇总
func (l *Ledger) Summary() Summary {
	return Summarize(l.Entries())
}

package monitor

import (
	"sync"
	"time"

	"github.com/kasuganosora/sqlsession/pkg/api"
)

// SlowStatement 慢语句日志项
type SlowStatement struct {
	ID        int64
	SessionID string
	SQL       string
	Kind      string
	Duration  time.Duration
	Timestamp time.Time
	RowCount  int64
	Error     string
}

// SlowLog 保存最近执行时间不低于阈值的语句，阈值为 0 时不记录
type SlowLog struct {
	mu         sync.RWMutex
	entries    []*SlowStatement
	threshold  time.Duration
	maxEntries int
	nextID     int64
}

// NewSlowLog 创建慢语句日志
func NewSlowLog(threshold time.Duration, maxEntries int) *SlowLog {
	if maxEntries <= 0 {
		maxEntries = DefaultSlowLogSize
	}
	return &SlowLog{
		entries:    make([]*SlowStatement, 0, maxEntries),
		threshold:  threshold,
		maxEntries: maxEntries,
		nextID:     1,
	}
}

// IsSlow 检查是否为慢语句
func (s *SlowLog) IsSlow(d time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold > 0 && d >= s.threshold
}

// Record 记录慢语句并返回其编号，非慢语句返回 0。
// 日志满时丢弃最早的条目
func (s *SlowLog) Record(ev api.StatementEvent) int64 {
	if !s.IsSlow(ev.Duration) {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &SlowStatement{
		ID:        s.nextID,
		SessionID: ev.SessionID,
		SQL:       ev.SQL,
		Kind:      ev.Kind.String(),
		Duration:  ev.Duration,
		Timestamp: time.Now(),
		RowCount:  ev.RowCount,
	}
	if ev.Err != nil {
		entry.Error = ev.Err.Error()
	}
	s.nextID++

	s.entries = append(s.entries, entry)
	if len(s.entries) > s.maxEntries {
		s.entries[0] = nil
		s.entries = s.entries[1:]
	}
	return entry.ID
}

// Entries 按时间先后返回所有慢语句
func (s *SlowLog) Entries() []*SlowStatement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*SlowStatement, len(s.entries))
	copy(result, s.entries)
	return result
}

func (s *SlowLog) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear 清空所有慢语句
func (s *SlowLog) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make([]*SlowStatement, 0, s.maxEntries)
	s.nextID = 1
}

// SetThreshold 设置慢语句阈值
func (s *SlowLog) SetThreshold(threshold time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = threshold
}

// Threshold 获取慢语句阈值
func (s *SlowLog) Threshold() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold
}

// SlowAnalysis 慢语句分析结果
type SlowAnalysis struct {
	Count         int
	ErrorCount    int
	AvgDuration   time.Duration
	MaxDuration   time.Duration
	MinDuration   time.Duration
	TotalDuration time.Duration
	ByKind        map[string]int
}

// Analyze 分析慢语句
func (s *SlowLog) Analyze() SlowAnalysis {
	s.mu.RLock()
	defer s.mu.RUnlock()

	analysis := SlowAnalysis{ByKind: make(map[string]int)}
	if len(s.entries) == 0 {
		return analysis
	}

	analysis.Count = len(s.entries)
	analysis.MaxDuration = s.entries[0].Duration
	analysis.MinDuration = s.entries[0].Duration
	for _, e := range s.entries {
		analysis.TotalDuration += e.Duration
		analysis.MaxDuration = max(analysis.MaxDuration, e.Duration)
		analysis.MinDuration = min(analysis.MinDuration, e.Duration)
		if e.Error != "" {
			analysis.ErrorCount++
		}
		analysis.ByKind[e.Kind]++
	}
	analysis.AvgDuration = analysis.TotalDuration / time.Duration(analysis.Count)
	return analysis
}

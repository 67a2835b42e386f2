package monitor

import (
	"sync"
	"time"

	"github.com/kasuganosora/sqlsession/pkg/api"
)

// Metrics 语句执行指标收集器
type Metrics struct {
	mu            sync.RWMutex
	statements    int64
	failed        int64
	slow          int64
	rowsChanged   int64
	totalDuration time.Duration
	byKind        map[string]int64
	errorCount    map[string]int64
	startTime     time.Time
}

// NewMetrics 创建指标收集器
func NewMetrics() *Metrics {
	return &Metrics{
		byKind:     make(map[string]int64),
		errorCount: make(map[string]int64),
		startTime:  time.Now(),
	}
}

// Record 记录一条已执行语句，失败按错误类别计数，
// 非 *api.Error 的错误计为 "error"
func (m *Metrics) Record(ev api.StatementEvent, slow bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.statements++
	m.totalDuration += ev.Duration
	m.byKind[ev.Kind.String()]++
	if slow {
		m.slow++
	}

	if ev.Err != nil {
		m.failed++
		code := string(api.GetErrorCode(ev.Err))
		if code == "" {
			code = "error"
		}
		m.errorCount[code]++
		return
	}
	if ev.RowCount > 0 {
		m.rowsChanged += ev.RowCount
	}
}

// Reset 重置所有指标
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.statements = 0
	m.failed = 0
	m.slow = 0
	m.rowsChanged = 0
	m.totalDuration = 0
	m.byKind = make(map[string]int64)
	m.errorCount = make(map[string]int64)
	m.startTime = time.Now()
}

// Snapshot 指标快照
type Snapshot struct {
	Statements     int64
	Failed         int64
	SuccessRate    float64 // 百分比
	AvgDuration    time.Duration
	SlowStatements int64
	RowsChanged    int64
	ByKind         map[string]int64
	Errors         map[string]int64
	Uptime         time.Duration
}

// Snapshot 获取指标快照
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Statements:     m.statements,
		Failed:         m.failed,
		SlowStatements: m.slow,
		RowsChanged:    m.rowsChanged,
		ByKind:         make(map[string]int64, len(m.byKind)),
		Errors:         make(map[string]int64, len(m.errorCount)),
		Uptime:         time.Since(m.startTime),
	}
	if m.statements > 0 {
		snap.SuccessRate = float64(m.statements-m.failed) / float64(m.statements) * 100
		snap.AvgDuration = m.totalDuration / time.Duration(m.statements)
	}
	for k, v := range m.byKind {
		snap.ByKind[k] = v
	}
	for k, v := range m.errorCount {
		snap.Errors[k] = v
	}
	return snap
}

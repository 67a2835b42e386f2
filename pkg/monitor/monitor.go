// Package monitor collects statement metrics and a slow statement log from
// sessions opened with api.WithObserver.
package monitor

import (
	"strings"
	"time"

	"github.com/kasuganosora/sqlsession/pkg/api"
)

const (
	DefaultSlowThreshold = time.Second
	DefaultSlowLogSize   = 100
)

// maxLoggedSQL bounds the statement text written to the log.
const maxLoggedSQL = 200

// Monitor is an api.Observer. It is safe to share between sessions.
type Monitor struct {
	Metrics *Metrics
	SlowLog *SlowLog
	logger  api.Logger
}

var _ api.Observer = (*Monitor)(nil)

// New returns a monitor whose slow log keeps up to maxEntries statements
// that took at least threshold. Slow statements are also logged as
// warnings when logger is not nil.
func New(threshold time.Duration, maxEntries int, logger api.Logger) *Monitor {
	return &Monitor{
		Metrics: NewMetrics(),
		SlowLog: NewSlowLog(threshold, maxEntries),
		logger:  logger,
	}
}

func (m *Monitor) ObserveStatement(ev api.StatementEvent) {
	slow := m.SlowLog.Record(ev) != 0
	m.Metrics.Record(ev, slow)
	if slow && m.logger != nil {
		m.logger.Warn("slow statement (%s): %s", ev.Duration.Round(time.Millisecond), compact(ev.SQL))
	}
}

// compact folds whitespace and truncates sql for a single log line.
func compact(sql string) string {
	s := strings.Join(strings.Fields(sql), " ")
	if len(s) > maxLoggedSQL {
		s = s[:maxLoggedSQL] + "..."
	}
	return s
}

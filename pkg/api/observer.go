package api

import (
	"time"

	"github.com/kasuganosora/sqlsession/pkg/sqltext"
)

// StatementEvent describes one executed statement.
type StatementEvent struct {
	SessionID string
	SQL       string
	Kind      sqltext.Kind
	Duration  time.Duration
	RowCount  int64 // -1 when the statement changes no rows
	Err       error
}

// Observer receives an event for every statement a session runs. Events
// are delivered on the session's goroutine; an observer shared between
// sessions must be safe for concurrent use.
type Observer interface {
	ObserveStatement(ev StatementEvent)
}

// WithObserver reports executed statements to o.
func WithObserver(o Observer) Option {
	return func(opts *SessionOptions) { opts.Observer = o }
}

func (s *Session) observe(sql string, start time.Time, rowCount int64, err error) {
	if s.options.Observer == nil || sqltext.IsBlank(sql) {
		return
	}
	s.options.Observer.ObserveStatement(StatementEvent{
		SessionID: s.id,
		SQL:       sql,
		Kind:      sqltext.Classify(sql),
		Duration:  time.Since(start),
		RowCount:  rowCount,
		Err:       err,
	})
}

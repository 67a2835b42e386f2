package api

import (
	"slices"

	"github.com/kasuganosora/sqlsession/pkg/engine"
	"github.com/kasuganosora/sqlsession/pkg/sqltext"
)

// TxState is the session's view of the engine transaction.
type TxState int

const (
	TxNone TxState = iota
	TxImplicitOpen
)

func (s TxState) String() string {
	if s == TxImplicitOpen {
		return "OPEN"
	}
	return "NONE"
}

// txMachine opens transactions ahead of modifying statements, since the
// engine itself runs every statement in autocommit mode, and keeps the
// tracked state in step with explicit transaction SQL.
type txMachine struct {
	conn   engine.Conn
	cache  *StatementCache
	logger Logger
	state  TxState
}

// before runs once a statement is prepared and bound, ahead of its first step.
func (m *txMachine) before(level IsolationLevel, kind sqltext.Kind, sql string, current *Statement) error {
	if kind == sqltext.KindTransaction {
		if isRollback(sql) {
			m.cache.InvalidateAll(current)
		}
		return nil
	}
	if level == IsolationAutocommit {
		return nil
	}

	switch kind {
	case sqltext.KindDML:
		if m.state == TxNone {
			return m.begin(level)
		}
	case sqltext.KindDDL:
		if m.state == TxImplicitOpen {
			if err := m.commit(); err != nil {
				return err
			}
		}
		return m.begin(level)
	case sqltext.KindOther:
		if m.state == TxImplicitOpen && sqltext.Keyword(sql) == "vacuum" {
			return m.commit()
		}
	}
	return nil
}

// after runs once a statement has stepped successfully. Transaction SQL is
// read back from the engine where it reports its state, since SAVEPOINT and
// RELEASE can open or end a transaction depending on the savepoint stack.
func (m *txMachine) after(kind sqltext.Kind, sql string) {
	if kind != sqltext.KindTransaction {
		return
	}
	if _, ok := m.conn.(engine.TxReporter); ok {
		m.sync()
		return
	}
	switch sqltext.Keyword(sql) {
	case "begin", "savepoint":
		m.state = TxImplicitOpen
	case "commit", "end":
		m.state = TxNone
	case "rollback":
		if isRollback(sql) {
			m.state = TxNone
		}
	}
}

// sync re-reads the engine's transaction state where the engine reports it.
func (m *txMachine) sync() {
	if r, ok := m.conn.(engine.TxReporter); ok {
		if r.InTransaction() {
			m.state = TxImplicitOpen
		} else {
			m.state = TxNone
		}
	}
}

func (m *txMachine) begin(level IsolationLevel) error {
	if err := m.conn.Begin(level.beginMode()); err != nil {
		return engineError(err)
	}
	m.state = TxImplicitOpen
	m.logger.Debug("BEGIN %s", level.beginMode())
	return nil
}

// commit ends an open transaction. A failed commit leaves it open.
func (m *txMachine) commit() error {
	if m.state == TxNone {
		if m.sync(); m.state == TxNone {
			return nil
		}
	}
	if err := m.conn.Commit(); err != nil {
		m.sync()
		return engineError(err)
	}
	m.state = TxNone
	m.logger.Debug("COMMIT")
	return nil
}

// rollback resets every statement and ends an open transaction.
func (m *txMachine) rollback() error {
	if m.state == TxNone {
		if m.sync(); m.state == TxNone {
			return nil
		}
	}
	m.cache.InvalidateAll(nil)
	err := m.conn.Rollback()
	m.state = TxNone
	m.logger.Debug("ROLLBACK")
	return engineError(err)
}

// isRollback reports whether sql ends the transaction: ROLLBACK, but not
// ROLLBACK TO a savepoint.
func isRollback(sql string) bool {
	words := sqltext.Keywords(sql, 3)
	if len(words) == 0 || words[0] != "rollback" {
		return false
	}
	return !slices.Contains(words[1:], "to")
}

package api

import (
	"time"

	"github.com/kasuganosora/sqlsession/pkg/engine"
	"github.com/kasuganosora/sqlsession/pkg/registry"
	"github.com/kasuganosora/sqlsession/pkg/sqltext"
)

// Execute runs one statement with one parameter set. Arguments are either
// positional values, a single Named (or map[string]any), or sql.NamedArg
// values. Rows of a query are fetched afterwards.
func (c *Cursor) Execute(sql string, args ...any) (err error) {
	if err := c.check(); err != nil {
		return err
	}
	c.reset()
	start := time.Now()
	defer func() { c.session.observe(sql, start, c.rowCount, err) }()

	p, err := normalizeArgs(args)
	if err != nil {
		return err
	}

	s := c.session
	if err := s.syncCollations(); err != nil {
		return err
	}
	kind := sqltext.Classify(sql)

	st, err := s.cache.Acquire(sql)
	if err != nil || st == nil {
		return err
	}
	c.st = st

	if err := bindParams(st.stmt, s.registry, p); err != nil {
		c.release()
		return err
	}
	if err := s.tx.before(s.options.Isolation, kind, sql, st); err != nil {
		c.release()
		return err
	}

	more, err := st.stmt.Step()
	if err != nil {
		c.release()
		s.tx.sync()
		return engineError(err)
	}
	s.tx.after(kind, sql)

	c.describe(st.stmt.Columns())
	if kind == sqltext.KindDML {
		c.rowCount = s.conn.Changes()
		if kw := sqltext.Keyword(sql); kw == "insert" || kw == "replace" {
			c.lastRowID = s.conn.LastInsertRowID()
		}
	}

	if more {
		c.pending, c.hasPending = st.stmt.Row(), true
	} else {
		c.release()
	}
	return nil
}

// ExecuteMany runs one DML statement once per parameter set of seq, reusing
// the prepared statement. seq is consumed lazily and may be an
// iter.Seq[[]any], iter.Seq[Named], iter.Seq[map[string]any],
// iter.Seq2[[]any, error], a slice of parameter sets or a receive channel.
func (c *Cursor) ExecuteMany(sql string, seq any) (err error) {
	if err := c.check(); err != nil {
		return err
	}
	c.reset()
	start := time.Now()
	defer func() { c.session.observe(sql, start, c.rowCount, err) }()

	kind := sqltext.Classify(sql)
	if kind == sqltext.KindSelect {
		return NewError(ErrCodeProgramming, "You cannot execute SELECT statements in executemany()", nil)
	}
	sets, err := paramSets(seq)
	if err != nil {
		return err
	}

	s := c.session
	if err := s.syncCollations(); err != nil {
		return err
	}
	st, err := s.cache.Acquire(sql)
	if err != nil || st == nil {
		return err
	}
	c.st = st
	defer c.release()

	var total int64
	for p, err := range sets {
		if err != nil {
			return err
		}
		_ = st.stmt.Reset()
		if err := bindParams(st.stmt, s.registry, p); err != nil {
			return err
		}
		if err := s.tx.before(s.options.Isolation, kind, sql, st); err != nil {
			return err
		}

		more, err := st.stmt.Step()
		if err != nil {
			s.tx.sync()
			return engineError(err)
		}
		s.tx.after(kind, sql)
		if more {
			return NewError(ErrCodeProgramming, "executemany() can only execute DML statements.", nil)
		}
		if kind == sqltext.KindDML {
			total += s.conn.Changes()
		}
	}

	if kind == sqltext.KindDML {
		c.rowCount = total
		if kw := sqltext.Keyword(sql); kw == "insert" || kw == "replace" {
			c.lastRowID = s.conn.LastInsertRowID()
		}
	}
	return nil
}

// ExecuteScript commits any pending transaction, then runs each statement
// of script in turn without parameters. Statements outside an explicit
// BEGIN run in autocommit mode.
func (c *Cursor) ExecuteScript(script string) error {
	if err := c.check(); err != nil {
		return err
	}
	c.reset()

	s := c.session
	if err := s.tx.commit(); err != nil {
		return err
	}
	if err := s.syncCollations(); err != nil {
		return err
	}

	rest := script
	for !sqltext.IsBlank(rest) {
		stmt, tail, err := s.conn.Prepare(rest)
		if err != nil {
			return engineError(err)
		}
		text := rest[:len(rest)-len(tail)]
		if stmt != nil {
			if err := c.runScriptStatement(stmt, text); err != nil {
				return err
			}
		}
		if len(tail) >= len(rest) {
			break
		}
		rest = tail
	}
	return nil
}

func (c *Cursor) runScriptStatement(stmt engine.Stmt, text string) (err error) {
	s := c.session
	start := time.Now()
	defer func() { s.observe(text, start, -1, err) }()
	kind := sqltext.Classify(text)
	if kind == sqltext.KindTransaction && isRollback(text) {
		s.cache.InvalidateAll(nil)
	}

	for {
		more, err := stmt.Step()
		if err != nil {
			_ = stmt.Finalize()
			s.tx.sync()
			return engineError(err)
		}
		if !more {
			break
		}
	}
	s.tx.after(kind, text)
	return engineError(stmt.Finalize())
}

// reset forgets the previous execution.
func (c *Cursor) reset() {
	c.release()
	c.desc = nil
	c.converters = nil
	c.rowCount = -1
	c.cur, c.err = nil, nil
}

// describe records the result columns and picks a converter per column.
// A converter named by the declared type wins over one named by a
// "name [type]" alias.
func (c *Cursor) describe(cols []engine.Column) {
	if len(cols) == 0 {
		return
	}
	opts := c.session.options
	reg := c.session.registry

	c.desc = make([]ColumnDesc, len(cols))
	c.converters = make([]registry.Converter, len(cols))
	for i, col := range cols {
		name := col.Name
		var conv registry.Converter
		if opts.DeclTypes {
			conv, _ = reg.Converter(registry.DeclTypeKey(col.DeclType))
		}
		if opts.ColNames {
			if conv == nil {
				conv, _ = reg.Converter(registry.ColumnHintKey(name))
			}
			name = registry.ColumnName(name)
		}
		c.desc[i] = ColumnDesc{Name: name, DeclType: col.DeclType}
		c.converters[i] = conv
	}
}

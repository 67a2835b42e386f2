package api

import (
	"strings"

	"github.com/kasuganosora/sqlsession/pkg/engine"
	"github.com/kasuganosora/sqlsession/pkg/sqltext"
)

// fakeConn is an in-memory engine.Conn that records what the session asks
// of it. Queries starting with SELECT yield fakeConn.rows rows of one
// column; everything else yields none.
type fakeConn struct {
	rows       int
	prepares   int
	finalizes  int
	log        []string // transaction calls and Exec text
	stepErr    error
	commitErr  error
	changes    int64
	collations map[string]bool
	closed     bool
	open       map[*fakeStmt]bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		rows:       1,
		collations: make(map[string]bool),
		open:       make(map[*fakeStmt]bool),
	}
}

func (c *fakeConn) driver() engine.Driver {
	return engine.DriverFunc(func(path string, opts engine.Options) (engine.Conn, error) {
		return c, nil
	})
}

func (c *fakeConn) Prepare(sql string) (engine.Stmt, string, error) {
	first, tail := sqltext.Split(sql)
	if sqltext.IsBlank(first) {
		return nil, tail, nil
	}
	c.prepares++
	st := &fakeStmt{c: c, sql: first, params: sqltext.Parameters(first)}
	st.bound = make([]engine.Value, len(st.params))
	c.open[st] = true
	return st, tail, nil
}

func (c *fakeConn) Exec(sql string) error {
	c.log = append(c.log, sql)
	return nil
}

func (c *fakeConn) Begin(mode string) error {
	c.log = append(c.log, strings.TrimSpace("BEGIN "+mode))
	return nil
}

func (c *fakeConn) Commit() error {
	if c.commitErr != nil {
		return c.commitErr
	}
	c.log = append(c.log, "COMMIT")
	return nil
}

func (c *fakeConn) Rollback() error {
	c.log = append(c.log, "ROLLBACK")
	return nil
}

func (c *fakeConn) Changes() int64         { return c.changes }
func (c *fakeConn) TotalChanges() int64    { return c.changes }
func (c *fakeConn) LastInsertRowID() int64 { return 0 }

func (c *fakeConn) CreateCollation(name string, cmp func(a, b string) int) error {
	if cmp == nil {
		delete(c.collations, name)
	} else {
		c.collations[name] = true
	}
	return nil
}

func (c *fakeConn) CreateFunction(name string, nArg int, fn engine.Function) error {
	return engine.ErrNotSupported
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type fakeStmt struct {
	c      *fakeConn
	sql    string
	params []string
	bound  []engine.Value
	step   int
	resets int
}

func (s *fakeStmt) BindCount() int { return len(s.params) }

func (s *fakeStmt) BindName(i int) string { return s.params[i-1] }

func (s *fakeStmt) Bind(i int, v engine.Value) error {
	s.bound[i-1] = v
	return nil
}

func (s *fakeStmt) ClearBindings() error {
	clear(s.bound)
	return nil
}

func (s *fakeStmt) Columns() []engine.Column {
	if sqltext.Classify(s.sql) != sqltext.KindSelect {
		return nil
	}
	return []engine.Column{{Name: "n", DeclType: "INTEGER"}}
}

func (s *fakeStmt) Step() (bool, error) {
	if s.c.stepErr != nil {
		return false, s.c.stepErr
	}
	if sqltext.Classify(s.sql) != sqltext.KindSelect {
		return false, nil
	}
	s.step++
	return s.step <= s.c.rows, nil
}

func (s *fakeStmt) Row() []engine.Value {
	return []engine.Value{int64(s.step)}
}

func (s *fakeStmt) Reset() error {
	s.step = 0
	s.resets++
	return nil
}

func (s *fakeStmt) Finalize() error {
	s.c.finalizes++
	delete(s.c.open, s)
	return nil
}

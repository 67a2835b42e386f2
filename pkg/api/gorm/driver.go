package gorm

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kasuganosora/sqlsession/pkg/api"
	"github.com/kasuganosora/sqlsession/pkg/registry"
)

// ---------------------------------------------------------------------------
// database/sql/driver implementation over api.Session
//
// This lets GORM (and plain database/sql users) run SQL on a session and
// share its statement cache and implicit transaction:
//
//   connector  → wraps *api.Session
//   conn       → QueryerContext / ExecerContext dispatching to Session
//   resultRows → rows fetched from a cursor, as driver.Value
//   execResult → RowsAffected / LastInsertID
//   sessionTx  → Commit/Rollback routed to Session.Commit/Rollback
//
// Usage:
//   sqlDB := sql.OpenDB(NewConnector(session))
//
// The session keeps its goroutine check, so the *sql.DB must be used from
// the goroutine that opened the session.
// ---------------------------------------------------------------------------

// sessionDriver is a minimal driver.Driver. Use NewConnector instead of Open.
type sessionDriver struct{}

func (d *sessionDriver) Open(_ string) (driver.Conn, error) {
	return nil, errors.New("sqlsession: use sql.OpenDB(NewConnector(session)) instead of sql.Open")
}

// NewConnector creates a driver.Connector that routes all SQL through the
// given session. The resulting connector can be used with sql.OpenDB.
func NewConnector(session *api.Session) driver.Connector {
	return &connector{session: session}
}

type connector struct {
	session *api.Session
}

func (c *connector) Connect(_ context.Context) (driver.Conn, error) {
	return &conn{session: c.session}, nil
}

func (c *connector) Driver() driver.Driver {
	return &sessionDriver{}
}

// conn implements driver.Conn, driver.QueryerContext and driver.ExecerContext.
// By implementing the Context variants, database/sql skips the Prepare path.
// Closing it leaves the session open.
type conn struct {
	session *api.Session
}

// Prepare is required by driver.Conn but is not used when QueryerContext and
// ExecerContext are implemented.
func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return &stmt{session: c.session, query: query}, nil
}

func (c *conn) Close() error {
	return nil
}

// Begin hands out the session's implicit transaction: the first modifying
// statement opens it and the returned Tx ends it.
func (c *conn) Begin() (driver.Tx, error) {
	return &sessionTx{session: c.session}, nil
}

// CheckNamedValue keeps values database/sql cannot convert, so the session's
// registry adapters see them.
func (c *conn) CheckNamedValue(nv *driver.NamedValue) error {
	if v, err := driver.DefaultParameterConverter.ConvertValue(nv.Value); err == nil {
		nv.Value = v
	}
	return nil
}

func (c *conn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	return runQuery(c.session, query, namedValuesToArgs(args))
}

func (c *conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	return runExec(c.session, query, namedValuesToArgs(args))
}

// ---------------------------------------------------------------------------
// stmt — fallback prepared-statement path (rarely used)
// ---------------------------------------------------------------------------

type stmt struct {
	session *api.Session
	query   string
}

func (s *stmt) Close() error  { return nil }
func (s *stmt) NumInput() int { return -1 }

func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return runExec(s.session, s.query, valuesToArgs(args))
}

func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return runQuery(s.session, s.query, valuesToArgs(args))
}

func runExec(session *api.Session, query string, args []any) (driver.Result, error) {
	r, err := session.Exec(query, args...)
	if err != nil {
		return nil, err
	}
	return &execResult{affected: r.RowsAffected, insertID: r.LastInsertID}, nil
}

// runQuery fetches every row up front, so closing the rows never touches the
// session from database/sql's context goroutine.
func runQuery(session *api.Session, query string, args []any) (driver.Rows, error) {
	c, err := session.Execute(query, args...)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	data, err := c.FetchAll()
	if err != nil {
		return nil, err
	}
	return &resultRows{columns: c.Description(), data: data}, nil
}

// ---------------------------------------------------------------------------
// resultRows — driver.Rows over fetched cursor rows
// ---------------------------------------------------------------------------

type resultRows struct {
	columns []api.ColumnDesc
	data    []api.Row
	index   int
}

func (r *resultRows) Columns() []string {
	names := make([]string, len(r.columns))
	for i, col := range r.columns {
		names[i] = col.Name
	}
	return names
}

func (r *resultRows) Close() error { return nil }

// ColumnTypeDatabaseTypeName reports the declared column type.
func (r *resultRows) ColumnTypeDatabaseTypeName(index int) string {
	return strings.ToUpper(r.columns[index].DeclType)
}

func (r *resultRows) Next(dest []driver.Value) error {
	if r.index >= len(r.data) {
		return io.EOF
	}
	row := r.data[r.index]
	for i := range dest {
		if i < len(row) {
			dest[i] = toDriverValue(row[i], r.columns[i].DeclType)
		}
	}
	r.index++
	return nil
}

// ---------------------------------------------------------------------------
// execResult — driver.Result
// ---------------------------------------------------------------------------

type execResult struct {
	affected int64
	insertID int64
}

func (r *execResult) LastInsertId() (int64, error) { return r.insertID, nil }

// RowsAffected reports 0 for statements that modify no rows, where the
// session reports -1.
func (r *execResult) RowsAffected() (int64, error) { return max(r.affected, 0), nil }

// ---------------------------------------------------------------------------
// sessionTx
// ---------------------------------------------------------------------------

type sessionTx struct {
	session *api.Session
}

func (t *sessionTx) Commit() error   { return t.session.Commit() }
func (t *sessionTx) Rollback() error { return t.session.Rollback() }

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// OpenDB is a convenience wrapper: creates a *sql.DB routed through the
// session. The pool holds a single connection, as the session is one.
func OpenDB(session *api.Session) *sql.DB {
	db := sql.OpenDB(NewConnector(session))
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db
}

func namedValuesToArgs(named []driver.NamedValue) []any {
	args := make([]any, len(named))
	for i, nv := range named {
		if nv.Name != "" {
			args[i] = sql.Named(nv.Name, nv.Value)
			continue
		}
		args[i] = nv.Value
	}
	return args
}

func valuesToArgs(vals []driver.Value) []any {
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	return args
}

// toDriverValue converts a fetched value to a valid driver.Value. Text in
// DATE and TIMESTAMP columns is parsed, since database/sql cannot scan a
// string into a time.Time.
func toDriverValue(v any, declType string) driver.Value {
	switch val := v.(type) {
	case nil, int64, float64, bool, []byte, time.Time:
		return val
	case string:
		switch registry.DeclTypeKey(declType) {
		case "DATE", "DATETIME", "TIMESTAMP":
			if t, err := registry.ParseTimestamp(val); err == nil {
				return t
			}
		}
		return val
	case registry.Date:
		return val.In(time.UTC)
	case driver.Valuer:
		if dv, err := val.Value(); err == nil {
			return dv
		}
	}
	if dv, err := driver.DefaultParameterConverter.ConvertValue(v); err == nil {
		return dv
	}
	return fmt.Sprint(v)
}

// Package sqldriver runs the engine contract over any database/sql driver
// that speaks the SQLite dialect. The default is the pure-Go
// modernc.org/sqlite driver, registered as "sqlite".
//
// Connections are pinned: every call goes through one *sql.Conn, so
// transaction state and in-memory databases behave as they do on a raw
// engine connection. Collations and Go functions cannot be installed through
// database/sql and are reported as engine.ErrNotSupported.
package sqldriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
	_ "modernc.org/sqlite"

	"github.com/kasuganosora/sqlsession/pkg/engine"
	"github.com/kasuganosora/sqlsession/pkg/sqltext"
)

// DefaultDriverName is the database/sql name of the modernc driver.
const DefaultDriverName = "sqlite"

// Driver opens connections through a registered database/sql driver.
type Driver struct {
	Name string
}

// New returns a Driver for the named database/sql driver. An empty name
// selects DefaultDriverName.
func New(name string) Driver {
	if name == "" {
		name = DefaultDriverName
	}
	return Driver{Name: name}
}

// Open opens path as the driver's data source name.
func (d Driver) Open(path string, opts engine.Options) (engine.Conn, error) {
	db, err := sql.Open(d.Name, path)
	if err != nil {
		return nil, translate(err)
	}
	c, err := OpenDB(db, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// OpenDB pins one connection of db and serves the engine contract over it.
// Closing the returned Conn closes db.
func OpenDB(db *sql.DB, opts engine.Options) (engine.Conn, error) {
	ctx := context.Background()
	db.SetMaxOpenConns(1)

	sc, err := db.Conn(ctx)
	if err != nil {
		return nil, translate(err)
	}
	c := &conn{db: db, sc: sc, ctx: ctx}

	if opts.Timeout > 0 {
		pragma := fmt.Sprintf("PRAGMA busy_timeout = %d", opts.Timeout.Milliseconds())
		if _, err := sc.ExecContext(ctx, pragma); err != nil {
			_ = sc.Close()
			return nil, translate(err)
		}
	}
	return c, nil
}

type conn struct {
	db  *sql.DB
	sc  *sql.Conn
	ctx context.Context
}

func (c *conn) Prepare(query string) (engine.Stmt, string, error) {
	first, tail := sqltext.Split(query)
	if sqltext.IsBlank(first) {
		if sqltext.IsBlank(tail) {
			return nil, "", nil
		}
		return nil, tail, nil
	}

	ps, err := c.sc.PrepareContext(c.ctx, first)
	if err != nil {
		return nil, "", translate(err)
	}
	params := sqltext.Parameters(first)
	return &stmt{
		c:      c,
		ps:     ps,
		params: params,
		args:   make([]any, len(params)),
	}, tail, nil
}

func (c *conn) Exec(query string) error {
	_, err := c.sc.ExecContext(c.ctx, query)
	return translate(err)
}

func (c *conn) Begin(mode string) error {
	if mode == "" {
		return c.Exec("BEGIN")
	}
	return c.Exec("BEGIN " + mode)
}

func (c *conn) Commit() error {
	return c.Exec("COMMIT")
}

func (c *conn) Rollback() error {
	return c.Exec("ROLLBACK")
}

func (c *conn) Changes() int64 {
	return c.queryInt("SELECT changes()")
}

func (c *conn) TotalChanges() int64 {
	return c.queryInt("SELECT total_changes()")
}

func (c *conn) LastInsertRowID() int64 {
	return c.queryInt("SELECT last_insert_rowid()")
}

func (c *conn) queryInt(query string) int64 {
	var n int64
	if err := c.sc.QueryRowContext(c.ctx, query).Scan(&n); err != nil {
		return 0
	}
	return n
}

func (c *conn) CreateCollation(name string, cmp func(a, b string) int) error {
	if cmp == nil {
		return nil
	}
	return engine.ErrNotSupported
}

func (c *conn) CreateFunction(name string, nArg int, fn engine.Function) error {
	return engine.ErrNotSupported
}

func (c *conn) Close() error {
	return multierr.Combine(translate(c.sc.Close()), translate(c.db.Close()))
}

// translate maps driver errors to engine errors. Drivers that expose a
// numeric SQLite result code through a Code() method keep it; anything else
// is reported as a generic engine error.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var ee *engine.Error
	if errors.As(err, &ee) {
		return err
	}
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		ext := coded.Code()
		return &engine.Error{
			Code:         engine.Code(ext & 0xff),
			ExtendedCode: ext,
			Message:      strings.TrimSpace(err.Error()),
		}
	}
	return &engine.Error{Code: engine.CodeError, ExtendedCode: int(engine.CodeError), Message: err.Error()}
}

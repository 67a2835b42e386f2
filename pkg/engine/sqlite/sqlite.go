// Package sqlite is the default engine backend: SQLite compiled to
// WebAssembly and driven through github.com/ncruces/go-sqlite3.
package sqlite

import (
	"errors"
	"strings"

	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/kasuganosora/sqlsession/pkg/engine"
)

// Driver opens SQLite connections.
type Driver struct{}

// New returns the SQLite driver.
func New() Driver {
	return Driver{}
}

// Open opens path, creating it if needed, and installs the busy timeout.
func (Driver) Open(path string, opts engine.Options) (engine.Conn, error) {
	c, err := sqlite3.Open(path)
	if err != nil {
		return nil, translate(err)
	}
	if opts.Timeout > 0 {
		if err := c.BusyTimeout(opts.Timeout); err != nil {
			_ = c.Close()
			return nil, translate(err)
		}
	}
	return &conn{c: c}, nil
}

type conn struct {
	c *sqlite3.Conn
}

func (c *conn) Prepare(query string) (engine.Stmt, string, error) {
	s, tail, err := c.c.Prepare(query)
	if err != nil {
		return nil, "", translate(err)
	}
	if s == nil {
		return nil, tail, nil
	}
	return &stmt{s: s}, tail, nil
}

func (c *conn) Exec(query string) error {
	return translate(c.c.Exec(query))
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
	return c.c.Changes()
}

func (c *conn) TotalChanges() int64 {
	return c.c.TotalChanges()
}

func (c *conn) LastInsertRowID() int64 {
	return c.c.LastInsertRowID()
}

func (c *conn) InTransaction() bool {
	return !c.c.GetAutocommit()
}

// CreateCollation installs cmp under name. A nil cmp removes the collation;
// statements naming it then fail to prepare with "no such collation sequence".
func (c *conn) CreateCollation(name string, cmp func(a, b string) int) error {
	if cmp == nil {
		return translate(c.c.CreateCollation(name, nil))
	}
	return translate(c.c.CreateCollation(name, func(a, b []byte) int {
		return cmp(string(a), string(b))
	}))
}

func (c *conn) CreateFunction(name string, nArg int, fn engine.Function) error {
	if fn == nil {
		return translate(c.c.CreateFunction(name, nArg, 0, nil))
	}
	return translate(c.c.CreateFunction(name, nArg, 0, func(ctx sqlite3.Context, args ...sqlite3.Value) {
		in := make([]engine.Value, len(args))
		for i, a := range args {
			in[i] = valueOf(a)
		}
		out, err := fn(in)
		if err != nil {
			ctx.ResultError(err)
			return
		}
		setResult(ctx, out)
	}))
}

func (c *conn) Close() error {
	return translate(c.c.Close())
}

func valueOf(v sqlite3.Value) engine.Value {
	switch v.Type() {
	case sqlite3.INTEGER:
		return v.Int64()
	case sqlite3.FLOAT:
		return v.Float()
	case sqlite3.TEXT:
		return v.Text()
	case sqlite3.BLOB:
		return v.Blob(nil)
	default:
		return nil
	}
}

func setResult(ctx sqlite3.Context, v engine.Value) {
	switch x := v.(type) {
	case nil:
		ctx.ResultNull()
	case int64:
		ctx.ResultInt64(x)
	case float64:
		ctx.ResultFloat(x)
	case string:
		ctx.ResultText(x)
	case []byte:
		ctx.ResultBlob(x)
	default:
		ctx.ResultError(engine.Errorf(engine.CodeMismatch, "unsupported function result type %T", v))
	}
}

// translate maps driver errors to engine errors.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var serr *sqlite3.Error
	if errors.As(err, &serr) {
		return &engine.Error{
			Code:         engine.Code(serr.Code()),
			ExtendedCode: int(serr.ExtendedCode()),
			Message:      strings.TrimPrefix(serr.Error(), "sqlite3: "),
		}
	}
	return &engine.Error{Code: engine.CodeError, ExtendedCode: int(engine.CodeError), Message: err.Error()}
}

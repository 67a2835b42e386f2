// Package engine describes the primitive surface of an embedded SQL engine
// as seen by the session layer: prepare, bind, step, reset and finalize over
// a single connection, plus the few connection-level calls the session needs
// to manage implicit transactions.
//
// Implementations live in sub-packages. A Conn and the Stmts it produces are
// not safe for concurrent use.
package engine

import "time"

// Value is a primitive wire value: nil, int64, float64, string or []byte.
type Value = any

// Column is the metadata of one result column.
type Column struct {
	Name     string
	DeclType string // empty when the engine does not know it
}

// Options are applied when a connection is opened.
type Options struct {
	// Timeout bounds how long the engine waits on a locked resource before
	// reporting a busy error.
	Timeout time.Duration
}

// Function is a scalar SQL function implemented in Go.
type Function func(args []Value) (Value, error)

// Driver opens engine connections. The path ":memory:" denotes a transient
// in-memory database.
type Driver interface {
	Open(path string, opts Options) (Conn, error)
}

// DriverFunc adapts a function to the Driver interface.
type DriverFunc func(path string, opts Options) (Conn, error)

// Open calls f.
func (f DriverFunc) Open(path string, opts Options) (Conn, error) {
	return f(path, opts)
}

// Conn is a single engine connection.
type Conn interface {
	// Prepare compiles the first statement in sql and returns the unparsed
	// remainder. A nil Stmt with a nil error means sql held no statement.
	Prepare(sql string) (Stmt, string, error)
	// Exec runs one or more statements without binding.
	Exec(sql string) error

	Begin(mode string) error
	Commit() error
	Rollback() error

	Changes() int64
	TotalChanges() int64
	LastInsertRowID() int64

	// CreateCollation registers cmp under name; a nil cmp removes it.
	CreateCollation(name string, cmp func(a, b string) int) error
	// CreateFunction registers fn under name; a nil fn removes it.
	CreateFunction(name string, nArg int, fn Function) error

	Close() error
}

// TxReporter is implemented by connections that can report whether the
// engine has a transaction open. Sessions use it to notice transactions the
// engine ended on its own, such as after an ON CONFLICT ROLLBACK.
type TxReporter interface {
	InTransaction() bool
}

// Stmt is a prepared statement. Parameter indexes are 1-based, column
// indexes 0-based.
type Stmt interface {
	BindCount() int
	// BindName returns the placeholder text for the parameter, including its
	// prefix (":a", "@a", "$a", "?3"), or "" for an anonymous "?".
	BindName(i int) string
	Bind(i int, v Value) error
	ClearBindings() error

	// Columns describes the result columns. It is valid once the statement
	// has been stepped at least once.
	Columns() []Column
	// Step advances to the next row, reporting false when the statement is
	// done.
	Step() (bool, error)
	// Row copies the current row.
	Row() []Value

	Reset() error
	Finalize() error
}

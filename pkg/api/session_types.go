package api

import (
	"fmt"
	"strings"
	"time"
	"weak"

	"github.com/kasuganosora/sqlsession/pkg/engine"
	"github.com/kasuganosora/sqlsession/pkg/engine/sqlite"
	"github.com/kasuganosora/sqlsession/pkg/registry"
)

// IsolationLevel selects how implicit transactions are opened.
type IsolationLevel int

const (
	// IsolationDefault opens implicit transactions with a plain BEGIN.
	IsolationDefault IsolationLevel = iota
	IsolationDeferred
	IsolationImmediate
	IsolationExclusive
	// IsolationAutocommit never opens implicit transactions.
	IsolationAutocommit
)

func (l IsolationLevel) String() string {
	switch l {
	case IsolationDefault:
		return "DEFAULT"
	case IsolationDeferred:
		return "DEFERRED"
	case IsolationImmediate:
		return "IMMEDIATE"
	case IsolationExclusive:
		return "EXCLUSIVE"
	case IsolationAutocommit:
		return "AUTOCOMMIT"
	default:
		return "UNKNOWN"
	}
}

// beginMode is the BEGIN qualifier for the level.
func (l IsolationLevel) beginMode() string {
	switch l {
	case IsolationDeferred, IsolationImmediate, IsolationExclusive:
		return l.String()
	}
	return ""
}

// ParseIsolationLevel parses "autocommit" (or "none"), "" (or "default"),
// "deferred", "immediate" and "exclusive", in any case.
func ParseIsolationLevel(s string) (IsolationLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return IsolationDefault, nil
	case "deferred":
		return IsolationDeferred, nil
	case "immediate":
		return IsolationImmediate, nil
	case "exclusive":
		return IsolationExclusive, nil
	case "autocommit", "none":
		return IsolationAutocommit, nil
	}
	return IsolationDefault, fmt.Errorf("unknown isolation level %q", s)
}

// SessionOptions contains configuration options for opening a session
type SessionOptions struct {
	Isolation          IsolationLevel
	CacheSize          int
	DeclTypes          bool          // pick converters by declared column type
	ColNames           bool          // pick converters by "name [type]" column aliases
	Timeout            time.Duration // engine busy timeout
	CheckSameGoroutine bool
	Registry           *registry.Registry
	Logger             Logger
	Driver             engine.Driver
	Observer           Observer
}

func defaultSessionOptions() SessionOptions {
	return SessionOptions{
		Isolation:          IsolationDefault,
		CacheSize:          DefaultCacheSize,
		Timeout:            5 * time.Second,
		CheckSameGoroutine: true,
	}
}

// Option configures Connect.
type Option func(*SessionOptions)

// WithIsolationLevel sets how implicit transactions begin.
func WithIsolationLevel(level IsolationLevel) Option {
	return func(o *SessionOptions) { o.Isolation = level }
}

// WithCacheSize sets the statement cache capacity. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(o *SessionOptions) { o.CacheSize = n }
}

func WithDeclTypes(on bool) Option {
	return func(o *SessionOptions) { o.DeclTypes = on }
}

func WithColNames(on bool) Option {
	return func(o *SessionOptions) { o.ColNames = on }
}

// WithTimeout bounds how long a statement waits on a locked database.
func WithTimeout(d time.Duration) Option {
	return func(o *SessionOptions) { o.Timeout = d }
}

// WithRegistry shares reg instead of giving the session its own registry.
func WithRegistry(reg *registry.Registry) Option {
	return func(o *SessionOptions) { o.Registry = reg }
}

func WithLogger(logger Logger) Option {
	return func(o *SessionOptions) { o.Logger = logger }
}

// WithDriver selects the engine backend. The default is the sqlite package.
func WithDriver(d engine.Driver) Option {
	return func(o *SessionOptions) { o.Driver = d }
}

// WithCheckSameGoroutine turns the owner-goroutine check on or off.
func WithCheckSameGoroutine(on bool) Option {
	return func(o *SessionOptions) { o.CheckSameGoroutine = on }
}

// Session is one connection to a database file. A session and its cursors
// belong to the goroutine that opened it.
type Session struct {
	id       string
	path     string
	conn     engine.Conn
	options  SessionOptions
	registry *registry.Registry
	cache    *StatementCache
	tx       *txMachine
	guard    guard
	logger   Logger
	closed   bool

	// collation versions applied to conn, and the registry generation they
	// reflect
	collations   map[string]uint64
	collationGen uint64

	cursors []weak.Pointer[Cursor]
}

var defaultDriver engine.Driver = sqlite.New()

package api

import (
	"container/list"
	"fmt"

	"go.uber.org/multierr"

	"github.com/kasuganosora/sqlsession/pkg/engine"
	"github.com/kasuganosora/sqlsession/pkg/sqltext"
)

// DefaultCacheSize is the statement cache capacity used by Connect.
const DefaultCacheSize = 100

// Statement is a prepared engine statement checked out of a StatementCache.
type Statement struct {
	sql         string
	stmt        engine.Stmt
	inUse       bool
	invalidated bool // reset under a running cursor by commit/rollback
}

// SQL returns the statement text.
func (st *Statement) SQL() string {
	return st.sql
}

// StatementCache is a bounded LRU of idle prepared statements keyed by their
// exact SQL text. Statements handed out by Acquire are tracked separately
// until they are released, so a handle is never finalized while a cursor
// still steps it.
//
// A StatementCache belongs to one Session and is not safe for concurrent use.
type StatementCache struct {
	conn     engine.Conn
	capacity int
	logger   Logger

	idle   map[string]*list.Element
	lru    *list.List // front is most recently used; values are *Statement
	active map[*Statement]struct{}
	closed bool

	hits      int64
	misses    int64
	evictions int64
}

// NewStatementCache returns a cache of at most capacity idle statements.
func NewStatementCache(conn engine.Conn, capacity int, logger Logger) *StatementCache {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	return &StatementCache{
		conn:     conn,
		capacity: capacity,
		logger:   logger,
		idle:     make(map[string]*list.Element),
		lru:      list.New(),
		active:   make(map[*Statement]struct{}),
	}
}

// Acquire returns a prepared statement for sql, reusing an idle one when
// possible. It returns nil when sql holds no statement, and a Warning when
// it holds more than one.
func (c *StatementCache) Acquire(sql string) (*Statement, error) {
	if elem, ok := c.idle[sql]; ok {
		st := c.lru.Remove(elem).(*Statement)
		delete(c.idle, sql)
		c.hits++
		st.inUse = true
		c.active[st] = struct{}{}
		return st, nil
	}

	c.misses++
	stmt, tail, err := c.conn.Prepare(sql)
	if err != nil {
		return nil, engineError(err)
	}
	if !sqltext.IsBlank(tail) {
		if stmt != nil {
			_ = stmt.Finalize()
		}
		return nil, NewError(ErrCodeWarning, "You can only execute one statement at a time.", nil)
	}
	if stmt == nil {
		return nil, nil
	}

	st := &Statement{sql: sql, stmt: stmt, inUse: true}
	c.active[st] = struct{}{}
	return st, nil
}

// Release resets st and returns it to the pool, finalizing it instead when
// caching is disabled or an idle twin is already pooled. Idle statements
// beyond capacity are evicted from the least recently used end.
func (c *StatementCache) Release(st *Statement) {
	if st == nil || !st.inUse {
		return
	}
	delete(c.active, st)
	st.inUse = false
	st.invalidated = false
	if c.closed {
		return
	}

	_ = st.stmt.Reset()
	_ = st.stmt.ClearBindings()

	if c.capacity == 0 {
		c.finalize(st)
		return
	}
	if _, dup := c.idle[st.sql]; dup {
		c.finalize(st)
		return
	}

	c.idle[st.sql] = c.lru.PushFront(st)
	for c.lru.Len() > c.capacity {
		victim := c.lru.Remove(c.lru.Back()).(*Statement)
		delete(c.idle, victim.sql)
		_ = victim.stmt.Reset()
		c.finalize(victim)
		c.evictions++
		c.logger.Debug("statement cache evicted %q", victim.sql)
	}
}

// InvalidateAll resets every statement. Statements still held by a cursor
// are flagged so the cursor reports the reset on its next fetch. except is
// left untouched.
func (c *StatementCache) InvalidateAll(except *Statement) {
	for e := c.lru.Front(); e != nil; e = e.Next() {
		_ = e.Value.(*Statement).stmt.Reset()
	}
	for st := range c.active {
		if st == except {
			continue
		}
		_ = st.stmt.Reset()
		st.invalidated = true
	}
}

// Close finalizes every statement, idle or in use.
func (c *StatementCache) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var errs error
	for e := c.lru.Front(); e != nil; e = e.Next() {
		errs = multierr.Append(errs, engineError(e.Value.(*Statement).stmt.Finalize()))
	}
	for st := range c.active {
		errs = multierr.Append(errs, engineError(st.stmt.Finalize()))
	}
	c.lru.Init()
	clear(c.idle)
	clear(c.active)
	return errs
}

func (c *StatementCache) finalize(st *Statement) {
	if err := st.stmt.Finalize(); err != nil {
		c.logger.Warn("finalize %q: %v", st.sql, err)
	}
}

// Stats returns a snapshot of the counters.
func (c *StatementCache) Stats() CacheStats {
	return CacheStats{
		Size:      c.lru.Len(),
		InUse:     len(c.active),
		MaxSize:   c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// CacheStats counts statement cache activity.
type CacheStats struct {
	Size      int // idle statements
	InUse     int // statements held by cursors
	MaxSize   int
	Hits      int64
	Misses    int64
	Evictions int64
}

// String formats the counters on one line.
func (s CacheStats) String() string {
	return fmt.Sprintf("Size: %d/%d, InUse: %d, Hits: %d, Misses: %d, Evictions: %d",
		s.Size, s.MaxSize, s.InUse, s.Hits, s.Misses, s.Evictions)
}

package api

import (
	"github.com/google/uuid"

	"github.com/kasuganosora/sqlsession/pkg/engine"
	"github.com/kasuganosora/sqlsession/pkg/registry"
)

// Connect opens the database at path, creating it if needed. The path
// ":memory:" opens a private in-memory database.
func Connect(path string, opts ...Option) (*Session, error) {
	o := defaultSessionOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if o.CacheSize < 0 {
		return nil, NewError(ErrCodeInterface, "statement cache size must not be negative", nil)
	}
	if o.Registry == nil {
		o.Registry = registry.New()
	}
	if o.Logger == nil {
		o.Logger = NewNoOpLogger()
	}
	if o.Driver == nil {
		o.Driver = defaultDriver
	}

	conn, err := o.Driver.Open(path, engine.Options{Timeout: o.Timeout})
	if err != nil {
		return nil, engineError(err)
	}

	id := uuid.NewString()
	logger := o.Logger
	if dl, ok := logger.(*DefaultLogger); ok {
		logger = dl.WithPrefix("session " + id[:8])
	}

	cache := NewStatementCache(conn, o.CacheSize, logger)
	s := &Session{
		id:         id,
		path:       path,
		conn:       conn,
		options:    o,
		registry:   o.Registry,
		cache:      cache,
		tx:         &txMachine{conn: conn, cache: cache, logger: logger},
		guard:      newGuard(o.CheckSameGoroutine),
		logger:     logger,
		collations: make(map[string]uint64),
	}

	if err := s.syncCollations(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	logger.Debug("opened %s (isolation %s, cache %d)", path, o.Isolation, o.CacheSize)
	return s, nil
}

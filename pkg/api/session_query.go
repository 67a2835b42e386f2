package api

import (
	"errors"
	"reflect"

	"github.com/kasuganosora/sqlsession/pkg/engine"
	"github.com/kasuganosora/sqlsession/pkg/registry"
)

// Execute runs sql on a new cursor and returns the cursor.
func (s *Session) Execute(sql string, args ...any) (*Cursor, error) {
	c, err := s.Cursor()
	if err != nil {
		return nil, err
	}
	if err := c.Execute(sql, args...); err != nil {
		return nil, err
	}
	return c, nil
}

// ExecuteMany runs sql once per parameter set on a new cursor.
func (s *Session) ExecuteMany(sql string, seq any) (*Cursor, error) {
	c, err := s.Cursor()
	if err != nil {
		return nil, err
	}
	if err := c.ExecuteMany(sql, seq); err != nil {
		return nil, err
	}
	return c, nil
}

// ExecuteScript commits any pending transaction and runs every statement
// of script on a new cursor.
func (s *Session) ExecuteScript(script string) (*Cursor, error) {
	c, err := s.Cursor()
	if err != nil {
		return nil, err
	}
	if err := c.ExecuteScript(script); err != nil {
		return nil, err
	}
	return c, nil
}

// Exec runs a statement that returns no rows and reports its effect.
func (s *Session) Exec(sql string, args ...any) (*Result, error) {
	c, err := s.Execute(sql, args...)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return NewResult(c.RowCount(), c.LastRowID()), nil
}

// QueryAll executes a query and returns all rows at once
func (s *Session) QueryAll(sql string, args ...any) ([]Row, error) {
	c, err := s.Execute(sql, args...)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.FetchAll()
}

// QueryOne executes a query and returns first row only. It returns nil
// when the query yields no rows.
func (s *Session) QueryOne(sql string, args ...any) (Row, error) {
	c, err := s.Execute(sql, args...)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.FetchOne()
}

// RegisterAdapter registers fn for values of typ, which is either a
// reflect.Type or a sample value of the type. A nil fn removes it.
func (s *Session) RegisterAdapter(typ any, fn registry.Adapter) error {
	if err := s.check(); err != nil {
		return err
	}
	t, ok := typ.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(typ)
	}
	if t == nil {
		return NewError(ErrCodeProgramming, "adapter type must not be nil", nil)
	}
	s.registry.RegisterAdapter(t, fn)
	return nil
}

// RegisterConverter registers fn for the type name. A nil fn removes it.
func (s *Session) RegisterConverter(name string, fn registry.Converter) error {
	if err := s.check(); err != nil {
		return err
	}
	s.registry.RegisterConverter(name, fn)
	return nil
}

// CreateCollation registers fn under name in the session's registry and
// applies it to the engine. A nil fn removes the collation.
func (s *Session) CreateCollation(name string, fn registry.Collation) error {
	if err := s.check(); err != nil {
		return err
	}
	if _, err := s.registry.CreateCollation(name, fn); err != nil {
		if errors.Is(err, registry.ErrInvalidCollationName) {
			return WrapError(err, ErrCodeProgramming, "invalid character in collation name")
		}
		return WrapError(err, ErrCodeProgramming, err.Error())
	}
	return s.syncCollations()
}

// CreateFunction registers a scalar SQL function. Arguments arrive as
// engine primitives; the result is adapted through the registry. nArg -1
// accepts any number of arguments, and a nil fn removes the function.
func (s *Session) CreateFunction(name string, nArg int, fn func(args ...any) (any, error)) error {
	if err := s.check(); err != nil {
		return err
	}
	if fn == nil {
		return engineError(s.conn.CreateFunction(name, nArg, nil))
	}
	reg := s.registry
	return engineError(s.conn.CreateFunction(name, nArg, func(args []engine.Value) (engine.Value, error) {
		out, err := fn(args...)
		if err != nil {
			return nil, err
		}
		return reg.Adapt(out)
	}))
}

// TotalChanges returns the number of rows modified since the session opened.
func (s *Session) TotalChanges() (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return s.conn.TotalChanges(), nil
}

// CacheStats reports statement cache counters.
func (s *Session) CacheStats() (CacheStats, error) {
	if err := s.check(); err != nil {
		return CacheStats{}, err
	}
	return s.cache.Stats(), nil
}

// Registry returns the session's type registry.
func (s *Session) Registry() *registry.Registry {
	return s.registry
}

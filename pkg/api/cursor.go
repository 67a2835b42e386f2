package api

import (
	"fmt"
	"iter"
	"reflect"

	"github.com/kasuganosora/sqlsession/pkg/engine"
	"github.com/kasuganosora/sqlsession/pkg/registry"
)

// Row is one fetched result row, converted through the registry.
type Row []any

// ColumnDesc describes one result column.
type ColumnDesc struct {
	Name     string
	DeclType string
}

// Cursor executes statements on its session and iterates their rows. Like
// its session, a cursor belongs to the session's goroutine.
type Cursor struct {
	// ArraySize is the default FetchMany batch size.
	ArraySize int

	session    *Session
	st         *Statement
	pending    []engine.Value // next raw row, already stepped
	hasPending bool
	desc       []ColumnDesc
	converters []registry.Converter
	rowCount   int64
	lastRowID  int64
	closed     bool

	// Next/Row/Err iteration state
	cur Row
	err error
}

// check runs ahead of every cursor call.
func (c *Cursor) check() error {
	if err := c.session.guard.check(); err != nil {
		return err
	}
	if c.session.closed {
		return closedSessionError()
	}
	if c.closed {
		return closedCursorError()
	}
	return nil
}

// Description returns the result columns of the last statement, or nil
// when it produced no result set.
func (c *Cursor) Description() []ColumnDesc {
	return c.desc
}

// RowCount returns the rows modified by the last DML statement, or -1.
func (c *Cursor) RowCount() int64 {
	return c.rowCount
}

// LastRowID returns the rowid of the last row inserted through this cursor.
func (c *Cursor) LastRowID() int64 {
	return c.lastRowID
}

// Session returns the session that created the cursor.
func (c *Cursor) Session() *Session {
	return c.session
}

// SetInputSizes is accepted for interface compatibility and does nothing.
func (c *Cursor) SetInputSizes(sizes ...any) error {
	return c.check()
}

// SetOutputSize is accepted for interface compatibility and does nothing.
func (c *Cursor) SetOutputSize(size int, column ...int) error {
	return c.check()
}

// FetchOne returns the next row, or nil once the result set is exhausted.
func (c *Cursor) FetchOne() (Row, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	return c.fetch()
}

// FetchMany returns up to n rows. n <= 0 uses ArraySize.
func (c *Cursor) FetchMany(n int) ([]Row, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if n <= 0 {
		n = c.ArraySize
	}
	rows := make([]Row, 0, max(n, 0))
	for len(rows) < n {
		r, err := c.fetch()
		if err != nil {
			return rows, err
		}
		if r == nil {
			break
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// FetchAll returns every remaining row.
func (c *Cursor) FetchAll() ([]Row, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	rows := []Row{}
	for {
		r, err := c.fetch()
		if err != nil {
			return rows, err
		}
		if r == nil {
			return rows, nil
		}
		rows = append(rows, r)
	}
}

func (c *Cursor) fetch() (Row, error) {
	if !c.hasPending {
		return nil, nil
	}
	if c.st.invalidated {
		return nil, NewError(ErrCodeInterface,
			"Cursor needed to be reset because of commit/rollback and can no longer be fetched from.", nil)
	}

	raw := c.pending
	c.pending, c.hasPending = nil, false

	more, err := c.st.stmt.Step()
	if err != nil {
		c.release()
		return nil, engineError(err)
	}
	if more {
		c.pending, c.hasPending = c.st.stmt.Row(), true
	} else {
		c.release()
	}
	return c.convert(raw)
}

func (c *Cursor) convert(raw []engine.Value) (Row, error) {
	row := make(Row, len(raw))
	for i, v := range raw {
		if i >= len(c.converters) || c.converters[i] == nil {
			row[i] = v
			continue
		}
		out, err := registry.Convert(c.converters[i], v)
		if err != nil {
			return nil, WrapError(err, ErrCodeInterface,
				fmt.Sprintf("converting column %q: %v", c.desc[i].Name, err))
		}
		row[i] = out
	}
	return row, nil
}

// Next advances to the next row.
func (c *Cursor) Next() bool {
	r, err := c.FetchOne()
	if err != nil {
		c.err = err
		c.cur = nil
		return false
	}
	c.cur = r
	return r != nil
}

// Row returns the row read by the last call to Next.
func (c *Cursor) Row() Row {
	return c.cur
}

// Err returns the error that stopped Next.
func (c *Cursor) Err() error {
	return c.err
}

// Scan copies the current row into dest.
func (c *Cursor) Scan(dest ...any) error {
	if err := c.check(); err != nil {
		return err
	}
	if c.cur == nil {
		return NewError(ErrCodeProgramming, "Next() must be called before Scan()", nil)
	}
	if len(dest) > len(c.cur) {
		return NewError(ErrCodeProgramming, fmt.Sprintf(
			"too many destination variables (%d), have %d columns", len(dest), len(c.cur)), nil)
	}

	for i := range dest {
		if err := setValue(dest[i], c.cur[i]); err != nil {
			return WrapError(err, ErrCodeInterface, fmt.Sprintf("failed to scan column %s: %v", c.desc[i].Name, err))
		}
	}
	return nil
}

// All iterates the remaining rows. Iteration stops at the first error,
// which is yielded with a nil row.
func (c *Cursor) All() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for {
			r, err := c.FetchOne()
			if err != nil {
				yield(nil, err)
				return
			}
			if r == nil || !yield(r, nil) {
				return
			}
		}
	}
}

// Iter calls fn for each remaining row.
func (c *Cursor) Iter(fn func(row Row) error) error {
	defer c.Close()

	for r, err := range c.All() {
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the cursor's statement. Later calls other than Close fail.
func (c *Cursor) Close() error {
	if err := c.session.guard.check(); err != nil {
		return err
	}
	if c.closed {
		return nil
	}
	c.release()
	c.closed = true
	return nil
}

// release returns the current statement to the cache.
func (c *Cursor) release() {
	c.pending, c.hasPending = nil, false
	if c.st != nil {
		c.session.cache.Release(c.st)
		c.st = nil
	}
}

// detach drops the cursor's statement without touching the engine. The
// session calls it while closing.
func (c *Cursor) detach() {
	c.pending, c.hasPending = nil, false
	c.st = nil
}

// setValue stores value into the pointer dest.
func setValue(dest any, value any) error {
	if dest == nil {
		return fmt.Errorf("destination is nil")
	}

	destValue := reflect.ValueOf(dest)
	if destValue.Kind() != reflect.Ptr {
		return fmt.Errorf("destination must be a pointer")
	}

	destValue = destValue.Elem()
	if !destValue.CanSet() {
		return fmt.Errorf("destination cannot be set")
	}

	// nil stores the zero value
	if value == nil {
		destValue.Set(reflect.Zero(destValue.Type()))
		return nil
	}

	converted, err := convertValue(value, destValue.Type())
	if err != nil {
		return err
	}
	destValue.Set(reflect.ValueOf(converted))
	return nil
}

// convertValue converts value to targetType.
func convertValue(value any, targetType reflect.Type) (any, error) {
	if value == nil {
		return reflect.Zero(targetType).Interface(), nil
	}

	valueType := reflect.TypeOf(value)
	if valueType == targetType {
		return value, nil
	}
	if targetType.Kind() == reflect.Interface && valueType.Implements(targetType) {
		v := reflect.New(targetType).Elem()
		v.Set(reflect.ValueOf(value))
		return v.Interface(), nil
	}

	// pointer target: convert to the element type and take its address
	if targetType.Kind() == reflect.Ptr {
		converted, err := convertValue(value, targetType.Elem())
		if err != nil {
			return nil, err
		}
		ptr := reflect.New(targetType.Elem())
		ptr.Elem().Set(reflect.ValueOf(converted))
		return ptr.Interface(), nil
	}

	switch v := value.(type) {
	case int64:
		switch targetType.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out := reflect.New(targetType).Elem()
			if out.OverflowInt(v) {
				return nil, fmt.Errorf("value %d overflows %s", v, targetType)
			}
			out.SetInt(v)
			return out.Interface(), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			out := reflect.New(targetType).Elem()
			if v < 0 || out.OverflowUint(uint64(v)) {
				return nil, fmt.Errorf("value %d overflows %s", v, targetType)
			}
			out.SetUint(uint64(v))
			return out.Interface(), nil
		case reflect.Float32, reflect.Float64:
			out := reflect.New(targetType).Elem()
			out.SetFloat(float64(v))
			return out.Interface(), nil
		case reflect.Bool:
			return v != 0, nil
		}
	case float64:
		if targetType.Kind() == reflect.Float32 || targetType.Kind() == reflect.Float64 {
			out := reflect.New(targetType).Elem()
			out.SetFloat(v)
			return out.Interface(), nil
		}
	case string:
		switch {
		case targetType.Kind() == reflect.String:
			return reflect.ValueOf(v).Convert(targetType).Interface(), nil
		case targetType.Kind() == reflect.Slice && targetType.Elem().Kind() == reflect.Uint8:
			return []byte(v), nil
		}
	case []byte:
		if targetType.Kind() == reflect.String {
			return reflect.ValueOf(string(v)).Convert(targetType).Interface(), nil
		}
	}

	if valueType.ConvertibleTo(targetType) && valueType.Kind() == targetType.Kind() {
		return reflect.ValueOf(value).Convert(targetType).Interface(), nil
	}
	return nil, fmt.Errorf("cannot convert %T to %s", value, targetType)
}

package sqldriver

import (
	"database/sql"
	"time"

	"github.com/kasuganosora/sqlsession/pkg/engine"
)

const timeLayout = "2006-01-02 15:04:05.999999999"

type stmt struct {
	c      *conn
	ps     *sql.Stmt
	params []string
	args   []any

	rows *sql.Rows
	cols []engine.Column
	cur  []engine.Value
}

func (s *stmt) BindCount() int {
	return len(s.params)
}

func (s *stmt) BindName(i int) string {
	if i < 1 || i > len(s.params) {
		return ""
	}
	return s.params[i-1]
}

func (s *stmt) Bind(i int, v engine.Value) error {
	if i < 1 || i > len(s.args) {
		return engine.Errorf(engine.CodeRange, "bind index %d out of range", i)
	}
	switch v.(type) {
	case nil, int64, float64, string, []byte:
	default:
		return engine.Errorf(engine.CodeMismatch, "cannot bind value of type %T", v)
	}
	s.args[i-1] = v
	return nil
}

func (s *stmt) ClearBindings() error {
	clear(s.args)
	return nil
}

func (s *stmt) Columns() []engine.Column {
	return s.cols
}

func (s *stmt) Step() (bool, error) {
	if s.rows == nil {
		if err := s.query(); err != nil {
			return false, err
		}
	}

	if !s.rows.Next() {
		err := s.rows.Err()
		s.closeRows()
		return false, translate(err)
	}

	dest := make([]any, len(s.cols))
	ptrs := make([]any, len(dest))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := s.rows.Scan(ptrs...); err != nil {
		s.closeRows()
		return false, translate(err)
	}
	for i, v := range dest {
		dest[i] = normalize(v)
	}
	s.cur = dest
	return true, nil
}

func (s *stmt) query() error {
	args := make([]any, len(s.args))
	for i, v := range s.args {
		name := s.params[i]
		if name != "" && name[0] != '?' {
			args[i] = sql.Named(name[1:], v)
			continue
		}
		args[i] = v
	}

	rows, err := s.ps.QueryContext(s.c.ctx, args...)
	if err != nil {
		return translate(err)
	}
	s.rows = rows

	names, err := rows.Columns()
	if err != nil {
		s.closeRows()
		return translate(err)
	}
	s.cols = nil
	if len(names) == 0 {
		return nil
	}
	s.cols = make([]engine.Column, len(names))
	types, err := rows.ColumnTypes()
	for i, name := range names {
		s.cols[i].Name = name
		if err == nil && i < len(types) {
			s.cols[i].DeclType = types[i].DatabaseTypeName()
		}
	}
	return nil
}

func (s *stmt) Row() []engine.Value {
	row := make([]engine.Value, len(s.cur))
	copy(row, s.cur)
	return row
}

func (s *stmt) closeRows() {
	if s.rows != nil {
		_ = s.rows.Close()
		s.rows = nil
	}
	s.cur = nil
}

func (s *stmt) Reset() error {
	s.closeRows()
	return nil
}

func (s *stmt) Finalize() error {
	s.closeRows()
	return translate(s.ps.Close())
}

// normalize folds the richer values some drivers return back into engine
// primitives. Times are written in their stored text form.
func normalize(v any) engine.Value {
	switch x := v.(type) {
	case nil, int64, float64, string:
		return x
	case []byte:
		b := make([]byte, len(x))
		copy(b, x)
		return b
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case time.Time:
		if x.Location() != time.UTC {
			return x.Format(timeLayout + "-07:00")
		}
		h, m, sec := x.Clock()
		if h == 0 && m == 0 && sec == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format(timeLayout)
	default:
		return v
	}
}

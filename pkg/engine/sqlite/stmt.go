package sqlite

import (
	"github.com/ncruces/go-sqlite3"

	"github.com/kasuganosora/sqlsession/pkg/engine"
)

type stmt struct {
	s *sqlite3.Stmt
}

func (s *stmt) BindCount() int {
	return s.s.BindCount()
}

func (s *stmt) BindName(i int) string {
	return s.s.BindName(i)
}

func (s *stmt) Bind(i int, v engine.Value) error {
	var err error
	switch x := v.(type) {
	case nil:
		err = s.s.BindNull(i)
	case int64:
		err = s.s.BindInt64(i, x)
	case float64:
		err = s.s.BindFloat(i, x)
	case string:
		err = s.s.BindText(i, x)
	case []byte:
		err = s.s.BindBlob(i, x)
	default:
		return engine.Errorf(engine.CodeMismatch, "cannot bind value of type %T", v)
	}
	return translate(err)
}

func (s *stmt) ClearBindings() error {
	return translate(s.s.ClearBindings())
}

func (s *stmt) Columns() []engine.Column {
	n := s.s.ColumnCount()
	if n == 0 {
		return nil
	}
	cols := make([]engine.Column, n)
	for i := range cols {
		cols[i] = engine.Column{
			Name:     s.s.ColumnName(i),
			DeclType: s.s.ColumnDeclType(i),
		}
	}
	return cols
}

func (s *stmt) Step() (bool, error) {
	if s.s.Step() {
		return true, nil
	}
	return false, translate(s.s.Err())
}

func (s *stmt) Row() []engine.Value {
	row := make([]engine.Value, s.s.ColumnCount())
	for i := range row {
		switch s.s.ColumnType(i) {
		case sqlite3.INTEGER:
			row[i] = s.s.ColumnInt64(i)
		case sqlite3.FLOAT:
			row[i] = s.s.ColumnFloat(i)
		case sqlite3.TEXT:
			row[i] = s.s.ColumnText(i)
		case sqlite3.BLOB:
			b := s.s.ColumnBlob(i, nil)
			if b == nil {
				b = []byte{}
			}
			row[i] = b
		default:
			row[i] = nil
		}
	}
	return row
}

func (s *stmt) Reset() error {
	return translate(s.s.Reset())
}

func (s *stmt) Finalize() error {
	return translate(s.s.Close())
}

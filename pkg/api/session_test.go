package api

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/sqlsession/pkg/registry"
)

func openSession(t *testing.T, path string, opts ...Option) *Session {
	t.Helper()
	s, err := Connect(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func tempDB(t *testing.T) string {
	return filepath.Join(t.TempDir(), "test.db")
}

func count(t *testing.T, s *Session, table string) int64 {
	t.Helper()
	row, err := s.QueryOne("select count(*) from " + table)
	require.NoError(t, err)
	return row[0].(int64)
}

func TestSession_ImplicitTransactionIsPrivate(t *testing.T) {
	path := tempDB(t)
	s1 := openSession(t, path)
	s2 := openSession(t, path)

	_, err := s1.Exec("create table t (a integer)")
	require.NoError(t, err)
	require.NoError(t, s1.Commit())

	res, err := s1.Exec("insert into t values (?)", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)
	assert.Equal(t, int64(1), res.LastInsertID)
	assert.True(t, s1.InTransaction())

	assert.Equal(t, int64(1), count(t, s1, "t"))
	assert.Equal(t, int64(0), count(t, s2, "t"))

	require.NoError(t, s1.Commit())
	assert.Equal(t, int64(1), count(t, s2, "t"))
}

func TestSession_DDLCommitsPendingWork(t *testing.T) {
	path := tempDB(t)
	s1 := openSession(t, path)
	s2 := openSession(t, path)

	_, err := s1.ExecuteScript("create table t (a integer);")
	require.NoError(t, err)

	_, err = s1.Exec("insert into t values (1)")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count(t, s2, "t"))

	_, err = s1.Exec("create table u (b text)")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count(t, s2, "t"))
}

func TestSession_Autocommit(t *testing.T) {
	path := tempDB(t)
	s1 := openSession(t, path, WithIsolationLevel(IsolationAutocommit))
	s2 := openSession(t, path)

	_, err := s1.Exec("create table t (a integer)")
	require.NoError(t, err)
	_, err = s1.Exec("insert into t values (1)")
	require.NoError(t, err)
	assert.False(t, s1.InTransaction())
	assert.Equal(t, int64(1), count(t, s2, "t"))

	// explicit transactions are still tracked
	_, err = s1.Exec("begin")
	require.NoError(t, err)
	assert.True(t, s1.InTransaction())
	_, err = s1.Exec("insert into t values (2)")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count(t, s2, "t"))
	_, err = s1.Exec("commit")
	require.NoError(t, err)
	assert.False(t, s1.InTransaction())
	assert.Equal(t, int64(2), count(t, s2, "t"))
}

func TestSession_Savepoint(t *testing.T) {
	for _, level := range []IsolationLevel{IsolationDefault, IsolationAutocommit} {
		t.Run(level.String(), func(t *testing.T) {
			path := tempDB(t)
			s1 := openSession(t, path, WithIsolationLevel(level))
			s2 := openSession(t, path)

			_, err := s1.ExecuteScript("create table t (a integer);")
			require.NoError(t, err)

			_, err = s1.Exec("savepoint sp")
			require.NoError(t, err)
			assert.True(t, s1.InTransaction())

			_, err = s1.Exec("insert into t values (1)")
			require.NoError(t, err)
			assert.True(t, s1.InTransaction())
			assert.Equal(t, int64(0), count(t, s2, "t"))

			require.NoError(t, s1.Commit())
			assert.False(t, s1.InTransaction())
			assert.Equal(t, int64(1), count(t, s2, "t"))

			// releasing the outermost savepoint ends the transaction
			_, err = s1.Exec("savepoint sp2")
			require.NoError(t, err)
			_, err = s1.Exec("insert into t values (2)")
			require.NoError(t, err)
			_, err = s1.Exec("release sp2")
			require.NoError(t, err)
			assert.False(t, s1.InTransaction())
			assert.Equal(t, int64(2), count(t, s2, "t"))
		})
	}
}

func TestSession_RoundTrip(t *testing.T) {
	s := openSession(t, ":memory:", WithDeclTypes(true))

	_, err := s.Exec("create table t (d date, ts timestamp, n integer, r real, b blob, s text)")
	require.NoError(t, err)

	day := registry.Date{Year: 2024, Month: time.February, Day: 29}
	ts := time.Date(2024, 3, 1, 12, 30, 45, 123456000, time.UTC)
	_, err = s.Exec("insert into t values (?, ?, ?, ?, ?, ?)",
		day, ts, int64(math.MaxInt64), 0.5, []byte{0, 1, 2}, "héllo")
	require.NoError(t, err)

	row, err := s.QueryOne("select d, ts, n, r, b, s from t")
	require.NoError(t, err)
	require.Len(t, row, 6)
	assert.Equal(t, day, row[0])
	got, ok := row[1].(time.Time)
	require.True(t, ok, "%T", row[1])
	assert.True(t, ts.Equal(got), got.String())
	assert.Equal(t, int64(math.MaxInt64), row[2])
	assert.Equal(t, 0.5, row[3])
	assert.Equal(t, []byte{0, 1, 2}, row[4])
	assert.Equal(t, "héllo", row[5])

	// NULL never reaches a converter
	_, err = s.Exec("insert into t (d) values (null)")
	require.NoError(t, err)
	rows, err := s.QueryAll("select d from t where d is null")
	require.NoError(t, err)
	assert.Equal(t, []Row{{nil}}, rows)

	// overflowing unsigned values are rejected before binding
	_, err = s.Exec("insert into t (n) values (?)", uint64(math.MaxUint64))
	assert.True(t, IsErrorCode(err, ErrCodeInterface))
}

type point struct{ X, Y float64 }

func TestSession_AdaptersAndConverters(t *testing.T) {
	s := openSession(t, ":memory:", WithDeclTypes(true))

	require.NoError(t, s.RegisterAdapter(point{}, func(v any) (any, error) {
		p := v.(point)
		return fmt.Sprintf("%g;%g", p.X, p.Y), nil
	}))
	require.NoError(t, s.RegisterConverter("point", func(raw []byte) (any, error) {
		x, y, _ := strings.Cut(string(raw), ";")
		fx, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return nil, err
		}
		fy, err := strconv.ParseFloat(y, 64)
		if err != nil {
			return nil, err
		}
		return point{fx, fy}, nil
	}))

	_, err := s.Exec("create table t (p point)")
	require.NoError(t, err)
	_, err = s.Exec("insert into t values (?)", point{4, -3.2})
	require.NoError(t, err)

	row, err := s.QueryOne("select p from t")
	require.NoError(t, err)
	assert.Equal(t, point{4, -3.2}, row[0])

	// a converter error surfaces on fetch
	_, err = s.Exec("insert into t values ('garbage')")
	require.NoError(t, err)
	_, err = s.QueryAll("select p from t")
	assert.True(t, IsErrorCode(err, ErrCodeInterface))

	// without an adapter the value cannot be bound
	require.NoError(t, s.RegisterAdapter(reflect.TypeOf(point{}), nil))
	_, err = s.Exec("insert into t values (?)", point{1, 1})
	assert.True(t, IsErrorCode(err, ErrCodeInterface))
	assert.Contains(t, err.Error(), "Error binding parameter 1")
}

func TestSession_ConverterPrecedence(t *testing.T) {
	s := openSession(t, ":memory:", WithDeclTypes(true), WithColNames(true))

	require.NoError(t, s.RegisterConverter("upper", func(raw []byte) (any, error) {
		return strings.ToUpper(string(raw)), nil
	}))

	_, err := s.Exec("create table t (d date, name text)")
	require.NoError(t, err)
	_, err = s.Exec("insert into t values ('2020-01-02', 'ann')")
	require.NoError(t, err)

	c, err := s.Execute(`select d as "d [upper]", name as "n [upper]", name from t`)
	require.NoError(t, err)
	row, err := c.FetchOne()
	require.NoError(t, err)

	// the declared type wins over the alias hint
	assert.Equal(t, registry.Date{Year: 2020, Month: time.January, Day: 2}, row[0])
	// TEXT has no converter, so the hint applies
	assert.Equal(t, "ANN", row[1])
	assert.Equal(t, "ann", row[2])

	desc := c.Description()
	require.Len(t, desc, 3)
	assert.Equal(t, "d", desc[0].Name)
	assert.Equal(t, "n", desc[1].Name)
	assert.Equal(t, "DATE", strings.ToUpper(desc[0].DeclType))
	require.NoError(t, c.Close())

	// with hints off, names keep their suffix
	plain := openSession(t, ":memory:")
	c, err = plain.Execute(`select 'x' as "v [upper]"`)
	require.NoError(t, err)
	assert.Equal(t, "v [upper]", c.Description()[0].Name)
	row, err = c.FetchOne()
	require.NoError(t, err)
	assert.Equal(t, "x", row[0])
}

func TestSession_Collations(t *testing.T) {
	s := openSession(t, ":memory:")

	_, err := s.ExecuteScript(`
		create table t (x text);
		insert into t values ('a');
		insert into t values ('c');
		insert into t values ('b');
	`)
	require.NoError(t, err)

	reverse := func(a, b string) int { return -strings.Compare(a, b) }
	require.NoError(t, s.CreateCollation("rev", reverse))

	query := "select x from t order by x collate rev"
	rows, err := s.QueryAll(query)
	require.NoError(t, err)
	assert.Equal(t, []Row{{"c"}, {"b"}, {"a"}}, rows)

	// replacing the collation takes effect
	require.NoError(t, s.CreateCollation("REV", strings.Compare))
	rows, err = s.QueryAll(query)
	require.NoError(t, err)
	assert.Equal(t, []Row{{"a"}, {"b"}, {"c"}}, rows)

	// removing it makes the query fail
	require.NoError(t, s.CreateCollation("rev", nil))
	_, err = s.QueryAll(query)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOperational))
	assert.Contains(t, strings.ToLower(err.Error()), "rev")

	err = s.CreateCollation("bad-name", reverse)
	assert.True(t, IsErrorCode(err, ErrCodeProgramming))
	assert.Contains(t, err.Error(), "invalid character in collation name")
}

func TestSession_CreateFunction(t *testing.T) {
	s := openSession(t, ":memory:")

	require.NoError(t, s.CreateFunction("twice", 1, func(args ...any) (any, error) {
		n, ok := args[0].(int64)
		if !ok {
			return nil, errors.New("twice wants an integer")
		}
		return n * 2, nil
	}))

	row, err := s.QueryOne("select twice(21)")
	require.NoError(t, err)
	assert.Equal(t, Row{int64(42)}, row)

	_, err = s.QueryOne("select twice('x')")
	assert.Error(t, err)
}

func TestSession_CacheAndRollback(t *testing.T) {
	path := tempDB(t)
	s1 := openSession(t, path, WithCacheSize(5))
	s2 := openSession(t, path, WithTimeout(200*time.Millisecond))

	_, err := s1.ExecuteScript(`
		create table t (x integer);
		insert into t values (1);
		insert into t values (2);
		insert into t values (3);
	`)
	require.NoError(t, err)

	var cursors []*Cursor
	for i := 0; i < 10; i++ {
		c, err := s1.Execute(fmt.Sprintf("select x, %d from t", i))
		require.NoError(t, err)
		row, err := c.FetchOne()
		require.NoError(t, err)
		require.NotNil(t, row)
		cursors = append(cursors, c)
	}

	_, err = s1.Exec("insert into t values (4)")
	require.NoError(t, err)
	require.NoError(t, s1.Rollback())

	// no statement of s1 still holds a read lock
	_, err = s2.Exec("insert into t values (5)")
	require.NoError(t, err)
	require.NoError(t, s2.Commit())

	for _, c := range cursors {
		_, err := c.FetchOne()
		assert.True(t, IsErrorCode(err, ErrCodeInterface))
		require.NoError(t, c.Close())
	}

	stats, err := s1.CacheStats()
	require.NoError(t, err)
	assert.LessOrEqual(t, stats.Size, 5)
	assert.Equal(t, 0, stats.InUse)
	assert.Equal(t, int64(4), count(t, s1, "t"))
}

func TestSession_ExecuteMany(t *testing.T) {
	s := openSession(t, ":memory:")

	_, err := s.Exec("create table t (a integer, b text)")
	require.NoError(t, err)

	c, err := s.ExecuteMany("insert into t values (?, ?)", [][]any{{1, "a"}, {2, "b"}, {3, "c"}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.RowCount())
	assert.Equal(t, int64(3), c.LastRowID())

	c, err = s.ExecuteMany("update t set b = :b where a = :a", []Named{{"a": 1, "b": "x"}, {"a": 2, "b": "y"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.RowCount())

	_, err = s.ExecuteMany("select * from t", [][]any{{}})
	assert.True(t, IsErrorCode(err, ErrCodeProgramming))
	assert.Contains(t, err.Error(), "You cannot execute SELECT statements in executemany()")

	_, err = s.ExecuteMany("insert into t values (?, ?)", 42)
	assert.True(t, IsErrorCode(err, ErrCodeType))

	// a failing set stops the batch; earlier sets stay applied
	_, err = s.ExecuteMany("insert into t values (?, ?)", [][]any{{4, "d"}, {5}})
	assert.True(t, IsErrorCode(err, ErrCodeProgramming))
	assert.Equal(t, int64(4), count(t, s, "t"))
}

func TestSession_ExecuteScript(t *testing.T) {
	path := tempDB(t)
	s1 := openSession(t, path)
	s2 := openSession(t, path)

	_, err := s1.ExecuteScript(`
		create table t (a integer);
		create table log (a integer);
		create trigger tr after insert on t begin
			insert into log values (new.a);
		end;
		insert into t values (1);
		-- a comment between statements
		insert into t values (2)
	`)
	require.NoError(t, err)
	assert.False(t, s1.InTransaction())
	assert.Equal(t, int64(2), count(t, s2, "log"))

	// a pending implicit transaction is committed first
	_, err = s1.Exec("insert into t values (3)")
	require.NoError(t, err)
	_, err = s1.ExecuteScript("select 1;")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count(t, s2, "t"))

	_, err = s1.ExecuteScript("insert into t values (4); insert into nope values (1);")
	require.Error(t, err)
	assert.Equal(t, int64(4), count(t, s2, "t"))
}

func TestSession_SingleStatement(t *testing.T) {
	s := openSession(t, ":memory:")

	_, err := s.Execute("select 1; select 2")
	assert.True(t, errors.Is(err, ErrWarning))

	c, err := s.Execute("  -- nothing here\n")
	require.NoError(t, err)
	assert.Nil(t, c.Description())
	row, err := c.FetchOne()
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestSession_FetchMany(t *testing.T) {
	s := openSession(t, ":memory:")

	_, err := s.ExecuteScript(`
		create table t (a integer);
		insert into t values (1);
		insert into t values (2);
		insert into t values (3);
		insert into t values (4);
		insert into t values (5);
	`)
	require.NoError(t, err)

	c, err := s.Execute("select a from t order by a")
	require.NoError(t, err)

	rows, err := c.FetchMany(0)
	require.NoError(t, err)
	assert.Equal(t, []Row{{int64(1)}}, rows)

	c.ArraySize = 2
	rows, err = c.FetchMany(0)
	require.NoError(t, err)
	assert.Equal(t, []Row{{int64(2)}, {int64(3)}}, rows)

	rows, err = c.FetchMany(10)
	require.NoError(t, err)
	assert.Equal(t, []Row{{int64(4)}, {int64(5)}}, rows)

	rows, err = c.FetchMany(0)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = c.FetchAll()
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestSession_IterateAndScan(t *testing.T) {
	s := openSession(t, ":memory:")

	_, err := s.ExecuteScript(`
		create table t (id integer, name text);
		insert into t values (1, 'a');
		insert into t values (2, 'b');
	`)
	require.NoError(t, err)

	c, err := s.Execute("select id, name from t order by id")
	require.NoError(t, err)
	var ids []int
	var names []string
	for c.Next() {
		var id int
		var name string
		require.NoError(t, c.Scan(&id, &name))
		ids = append(ids, id)
		names = append(names, name)
	}
	require.NoError(t, c.Err())
	assert.Equal(t, []int{1, 2}, ids)
	assert.Equal(t, []string{"a", "b"}, names)

	c, err = s.Execute("select id from t order by id")
	require.NoError(t, err)
	var seen []Row
	for row, err := range c.All() {
		require.NoError(t, err)
		seen = append(seen, row)
	}
	assert.Equal(t, []Row{{int64(1)}, {int64(2)}}, seen)

	c, err = s.Execute("select id from t")
	require.NoError(t, err)
	n := 0
	require.NoError(t, c.Iter(func(Row) error { n++; return nil }))
	assert.Equal(t, 2, n)
	_, err = c.FetchOne()
	assert.Contains(t, err.Error(), "Cannot operate on a closed cursor.")
}

func TestSession_BusyTimeout(t *testing.T) {
	path := tempDB(t)
	s1 := openSession(t, path)
	s2 := openSession(t, path, WithTimeout(100*time.Millisecond))

	_, err := s1.ExecuteScript("create table t (a integer);")
	require.NoError(t, err)
	_, err = s1.Exec("insert into t values (1)")
	require.NoError(t, err)

	start := time.Now()
	_, err = s2.Exec("insert into t values (2)")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOperational), err.Error())
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestSession_ErrorClasses(t *testing.T) {
	s := openSession(t, ":memory:")

	_, err := s.Exec("create table t (a integer primary key, b text not null)")
	require.NoError(t, err)

	_, err = s.Exec("insert into t values (1, null)")
	assert.True(t, errors.Is(err, ErrIntegrity))

	_, err = s.Exec("select * from missing")
	assert.True(t, errors.Is(err, ErrOperational))
	assert.True(t, errors.Is(err, ErrDatabase))

	_, err = s.Exec("selec 1")
	assert.True(t, errors.Is(err, ErrDatabase))

	_, err = s.Exec("insert into t (a) values (?)", 1, 2)
	assert.True(t, IsErrorCode(err, ErrCodeProgramming))
}

func TestSession_GoroutineGuard(t *testing.T) {
	s := openSession(t, ":memory:")
	c, err := s.Cursor()
	require.NoError(t, err)

	errs := make(chan error, 4)
	go func() {
		_, err := s.Execute("select 1")
		errs <- err
		errs <- c.Execute("select 1")
		_, err = s.CacheStats()
		errs <- err
		errs <- s.Close()
	}()
	for i := 0; i < 4; i++ {
		err := <-errs
		require.Error(t, err)
		assert.True(t, IsErrorCode(err, ErrCodeProgramming))
		assert.Contains(t, err.Error(), "SQLite objects created in a goroutine can only be used in that same goroutine.")
	}

	free := openSession(t, ":memory:", WithCheckSameGoroutine(false))
	done := make(chan error, 1)
	go func() {
		_, err := free.QueryOne("select 1")
		done <- err
	}()
	assert.NoError(t, <-done)
}

func TestSession_Closed(t *testing.T) {
	s, err := Connect(":memory:")
	require.NoError(t, err)

	c, err := s.Execute("select 1 union all select 2")
	require.NoError(t, err)
	closedCursor, err := s.Cursor()
	require.NoError(t, err)
	require.NoError(t, closedCursor.Close())
	require.NoError(t, closedCursor.Close())

	_, err = closedCursor.FetchOne()
	assert.EqualError(t, err, "[ProgrammingError] Cannot operate on a closed cursor.")

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Execute("select 1")
	assert.EqualError(t, err, "[ProgrammingError] Cannot operate on a closed database.")
	_, err = c.FetchOne()
	assert.EqualError(t, err, "[ProgrammingError] Cannot operate on a closed database.")
	assert.Error(t, s.Commit())
	_, err = s.TotalChanges()
	assert.Error(t, err)
	_, err = s.CacheStats()
	assert.EqualError(t, err, "[ProgrammingError] Cannot operate on a closed database.")
	assert.NoError(t, c.Close())
}

func TestConnect_Options(t *testing.T) {
	_, err := Connect(":memory:", WithCacheSize(-1))
	assert.True(t, IsErrorCode(err, ErrCodeInterface))

	_, err = Connect(filepath.Join(t.TempDir(), "missing", "dir", "x.db"))
	assert.True(t, errors.Is(err, ErrOperational))

	reg := registry.New()
	s := openSession(t, ":memory:", WithRegistry(reg), WithCacheSize(0))
	assert.Same(t, reg, s.Registry())
	assert.Equal(t, ":memory:", s.Path())
	assert.NotEmpty(t, s.ID())

	_, err = s.Exec("create table t (a)")
	require.NoError(t, err)
	_, err = s.Exec("insert into t values (1)")
	require.NoError(t, err)
	n, err := s.TotalChanges()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	stats, err := s.CacheStats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Size)
}

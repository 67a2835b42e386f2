package monitor

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/sqlsession/pkg/api"
	"github.com/kasuganosora/sqlsession/pkg/sqltext"
)

func TestSlowLog_Threshold(t *testing.T) {
	tests := []struct {
		name      string
		threshold time.Duration
		duration  time.Duration
		slow      bool
	}{
		{"below", 100 * time.Millisecond, 99 * time.Millisecond, false},
		{"equal", 100 * time.Millisecond, 100 * time.Millisecond, true},
		{"above", 100 * time.Millisecond, time.Second, true},
		{"disabled", 0, time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := NewSlowLog(tt.threshold, 10)
			assert.Equal(t, tt.slow, log.IsSlow(tt.duration))

			id := log.Record(event(sqltext.KindSelect, tt.duration, -1, nil))
			if tt.slow {
				assert.Equal(t, int64(1), id)
				assert.Equal(t, 1, log.Len())
			} else {
				assert.Zero(t, id)
				assert.Zero(t, log.Len())
			}
		})
	}
}

func TestSlowLog_DropsOldest(t *testing.T) {
	log := NewSlowLog(time.Millisecond, 3)
	for i := range 5 {
		ev := event(sqltext.KindDML, time.Duration(i+1)*time.Millisecond, int64(i), nil)
		ev.SQL = fmt.Sprintf("update t set a = %d", i)
		log.Record(ev)
	}

	entries := log.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, int64(3), entries[0].ID)
	assert.Equal(t, "update t set a = 2", entries[0].SQL)
	assert.Equal(t, int64(5), entries[2].ID)

	log.Clear()
	assert.Zero(t, log.Len())
	assert.Equal(t, int64(1), log.Record(event(sqltext.KindDML, time.Second, 0, nil)))
}

func TestSlowLog_Analyze(t *testing.T) {
	log := NewSlowLog(time.Millisecond, 0)
	assert.Zero(t, log.Analyze().Count)

	log.Record(event(sqltext.KindSelect, 10*time.Millisecond, -1, nil))
	log.Record(event(sqltext.KindSelect, 30*time.Millisecond, -1, nil))
	log.Record(event(sqltext.KindDML, 20*time.Millisecond, 1, errors.New("database is locked")))

	a := log.Analyze()
	assert.Equal(t, 3, a.Count)
	assert.Equal(t, 1, a.ErrorCount)
	assert.Equal(t, 10*time.Millisecond, a.MinDuration)
	assert.Equal(t, 30*time.Millisecond, a.MaxDuration)
	assert.Equal(t, 20*time.Millisecond, a.AvgDuration)
	assert.Equal(t, map[string]int{"SELECT": 2, "DML": 1}, a.ByKind)
	assert.Equal(t, "database is locked", log.Entries()[2].Error)
}

func TestMonitor_Session(t *testing.T) {
	var logged bytes.Buffer
	mon := New(time.Nanosecond, 10, api.NewDefaultLoggerWithOutput(api.LogWarn, &logged))

	s, err := api.Connect(":memory:", api.WithObserver(mon))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Execute("create table t (a integer not null)")
	require.NoError(t, err)
	_, err = s.ExecuteMany("insert into t values (?)", [][]any{{1}, {2}, {3}})
	require.NoError(t, err)
	_, err = s.Execute("insert into t values (null)")
	require.Error(t, err)
	_, err = s.ExecuteScript("update t set a = a + 1; delete from t where a = 4;")
	require.NoError(t, err)
	_, err = s.Execute("   ")
	require.NoError(t, err)

	snap := mon.Metrics.Snapshot()
	assert.Equal(t, int64(5), snap.Statements, "blank statements are not reported")
	assert.Equal(t, int64(1), snap.Failed)
	assert.Equal(t, int64(3), snap.RowsChanged)
	assert.Equal(t, map[string]int64{"DDL": 1, "DML": 4}, snap.ByKind)
	assert.Equal(t, map[string]int64{"IntegrityError": 1}, snap.Errors)

	entries := mon.SlowLog.Entries()
	require.Len(t, entries, 5)
	assert.Equal(t, s.ID(), entries[0].SessionID)
	assert.Equal(t, int64(3), entries[1].RowCount)
	assert.Contains(t, entries[2].Error, "NOT NULL")

	assert.Equal(t, 5, strings.Count(logged.String(), "slow statement"))
	assert.Contains(t, logged.String(), "slow statement (")
}

func TestCompact(t *testing.T) {
	assert.Equal(t, "select * from t where a = 1", compact("select *\n\tfrom t\n where a = 1"))

	long := strings.Repeat("x", maxLoggedSQL+10)
	assert.Equal(t, strings.Repeat("x", maxLoggedSQL)+"...", compact(long))
}

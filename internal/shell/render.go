package shell

import (
	"encoding/hex"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/kasuganosora/sqlsession/pkg/api"
	"github.com/kasuganosora/sqlsession/pkg/monitor"
	"github.com/kasuganosora/sqlsession/pkg/registry"
)

// Render writes rows in format: table, csv or markdown.
func Render(w io.Writer, desc []api.ColumnDesc, rows []api.Row, format string) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	// keep column names as the engine reports them
	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	t.SetStyle(style)

	header := make(table.Row, len(desc))
	for i, col := range desc {
		header[i] = col.Name
	}
	t.AppendHeader(header)

	for _, r := range rows {
		row := make(table.Row, len(r))
		for i, v := range r {
			row[i] = formatValue(v)
		}
		t.AppendRow(row)
	}

	switch format {
	case "csv":
		t.RenderCSV()
	case "markdown":
		t.RenderMarkdown()
	case "table", "":
		t.Render()
		_, _ = fmt.Fprintf(w, "(%d rows)\n", len(rows))
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
	return nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return "X'" + strings.ToUpper(hex.EncodeToString(x)) + "'"
	case time.Time:
		return x.Format(registry.TimestampLayout)
	case float64:
		return fmt.Sprintf("%g", x)
	}
	return fmt.Sprintf("%v", v)
}

// RenderStats writes cache statistics and, when snap is not nil, statement
// metrics as a two-column table.
func RenderStats(w io.Writer, cache api.CacheStats, snap *monitor.Snapshot, slow []*monitor.SlowStatement) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Statistic", "Value"})

	t.AppendRows([]table.Row{
		{"cached statements", fmt.Sprintf("%d/%d", cache.Size, cache.MaxSize)},
		{"statements in use", cache.InUse},
		{"cache hits", cache.Hits},
		{"cache misses", cache.Misses},
		{"cache evictions", cache.Evictions},
	})

	if snap != nil {
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"statements", snap.Statements},
			{"failed", snap.Failed},
			{"rows changed", snap.RowsChanged},
			{"average duration", snap.AvgDuration.Round(time.Microsecond)},
			{"slow statements", snap.SlowStatements},
		})
		for _, kind := range slices.Sorted(maps.Keys(snap.ByKind)) {
			t.AppendRow(table.Row{"  " + kind, snap.ByKind[kind]})
		}
		for _, code := range slices.Sorted(maps.Keys(snap.Errors)) {
			t.AppendRow(table.Row{"  " + code, snap.Errors[code]})
		}
	}
	t.Render()

	for _, e := range slow {
		_, _ = fmt.Fprintf(w, "slow #%d %s %s\n", e.ID, e.Duration.Round(time.Microsecond), e.SQL)
	}
}

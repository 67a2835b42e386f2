package registry

import (
	"math"
	"strconv"
	"strings"
)

// DeclTypeKey extracts the converter key from a declared column type: the
// first word, cut at whitespace or "(", uppercased. "timestamp with time
// zone" and "DECIMAL(10,2)" give "TIMESTAMP" and "DECIMAL".
func DeclTypeKey(declType string) string {
	declType = strings.TrimSpace(declType)
	end := strings.IndexAny(declType, " \t\n\r(")
	if end >= 0 {
		declType = declType[:end]
	}
	return strings.ToUpper(declType)
}

// ColumnHintKey extracts the converter key from a column alias of the form
// "name [hint]", uppercased. It returns "" when there is no hint.
func ColumnHintKey(name string) string {
	open := strings.IndexByte(name, '[')
	if open < 0 {
		return ""
	}
	end := strings.IndexByte(name[open+1:], ']')
	if end < 0 {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(name[open+1 : open+1+end]))
}

// ColumnName strips a " [hint]" suffix from a column alias.
func ColumnName(name string) string {
	if i := strings.Index(name, " ["); i >= 0 {
		return name[:i]
	}
	return name
}

// RawBytes renders a primitive column value the way the engine exposes it as
// bytes: text and blobs as-is, numbers in their decimal text form.
func RawBytes(v any) []byte {
	switch x := v.(type) {
	case []byte:
		return x
	case string:
		return []byte(x)
	case int64:
		return strconv.AppendInt(nil, x, 10)
	case float64:
		return []byte(formatReal(x))
	}
	return nil
}

// formatReal follows the engine's "%!.15g" rendering of REAL values, which
// always keeps a decimal point.
func formatReal(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	case math.IsNaN(f):
		return "NaN"
	}
	s := strconv.FormatFloat(f, 'g', 15, 64)
	if strings.ContainsAny(s, ".") {
		return s
	}
	if i := strings.IndexByte(s, 'e'); i >= 0 {
		return s[:i] + ".0" + s[i:]
	}
	return s + ".0"
}

// Convert applies fn to a column value. NULL is returned untouched.
func Convert(fn Converter, v any) (any, error) {
	if v == nil || fn == nil {
		return v, nil
	}
	return fn(RawBytes(v))
}

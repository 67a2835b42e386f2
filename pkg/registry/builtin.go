package registry

import (
	"fmt"
	"reflect"
	"time"
)

const (
	// DateLayout is the stored form of a Date.
	DateLayout = "2006-01-02"
	// TimestampLayout is the stored form of a time.Time, always in UTC.
	TimestampLayout = "2006-01-02 15:04:05.999999"
)

// Date is a calendar date without a time of day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses an ISO 8601 calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// ParseTimestamp parses the stored timestamp form. A fractional second part
// is optional, and a bare date is read as midnight. The stored form carries
// no zone, so the result is always in UTC: a value written from another
// location reads back Equal to the original but not ==, and callers wanting
// local time use In.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func registerBuiltins(r *Registry) {
	r.RegisterAdapter(reflect.TypeOf(Date{}), func(v any) (any, error) {
		return v.(Date).String(), nil
	})
	r.RegisterAdapter(reflect.TypeOf(time.Time{}), func(v any) (any, error) {
		return v.(time.Time).UTC().Format(TimestampLayout), nil
	})

	r.RegisterConverter("DATE", func(raw []byte) (any, error) {
		return ParseDate(string(raw))
	})
	// TIMESTAMP values come back in UTC; see ParseTimestamp.
	r.RegisterConverter("TIMESTAMP", func(raw []byte) (any, error) {
		return ParseTimestamp(string(raw))
	})
}

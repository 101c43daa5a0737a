package store

import (
	"fmt"
	"time"
)

type rowScanner interface {
	Scan(dest ...any) error
}

var timeLayouts = []string{
	sqliteTimeLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02",
}

// dbTime scans TIMESTAMPTZ values and SQLite text timestamps alike.
type dbTime struct {
	Time time.Time
}

func (d *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		d.Time = time.Time{}
		return nil
	case time.Time:
		d.Time = v.UTC()
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("scan timestamp: unsupported type %T", src)
	}
}

func (d *dbTime) parse(value string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			d.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("scan timestamp: unrecognized value %q", value)
}

// dbDate scans DATE columns and SQLite text dates into YYYY-MM-DD.
type dbDate struct {
	Value *string
}

func (d *dbDate) Scan(src any) error {
	var formatted string
	switch v := src.(type) {
	case nil:
		d.Value = nil
		return nil
	case time.Time:
		formatted = v.Format("2006-01-02")
	case string:
		formatted = v
	case []byte:
		formatted = string(v)
	default:
		return fmt.Errorf("scan date: unsupported type %T", src)
	}
	if len(formatted) > len("2006-01-02") {
		formatted = formatted[:len("2006-01-02")]
	}
	d.Value = &formatted
	return nil
}

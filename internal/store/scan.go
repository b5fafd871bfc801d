package store

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"time"
)

// These shims let the reflection-based scanner in store.go populate
// struct fields typed as time.Time, *string, *int, *int64, and
// *time.Time directly from SQLite TEXT/INTEGER/NULL columns, without
// requiring every model field to implement sql.Scanner itself.

type timeScanner struct{ dst reflect.Value }

func (t *timeScanner) Scan(src interface{}) error {
	if src == nil {
		t.dst.Set(reflect.ValueOf(time.Time{}))
		return nil
	}
	parsed, err := parseTime(src)
	if err != nil {
		return err
	}
	t.dst.Set(reflect.ValueOf(parsed))
	return nil
}

type nullTimeScanner struct{ dst reflect.Value }

func (t *nullTimeScanner) Scan(src interface{}) error {
	if src == nil {
		t.dst.Set(reflect.Zero(t.dst.Type()))
		return nil
	}
	parsed, err := parseTime(src)
	if err != nil {
		return err
	}
	t.dst.Set(reflect.ValueOf(&parsed))
	return nil
}

type nullStringScanner struct{ dst reflect.Value }

func (s *nullStringScanner) Scan(src interface{}) error {
	if src == nil {
		s.dst.Set(reflect.Zero(s.dst.Type()))
		return nil
	}
	str, err := driverToString(src)
	if err != nil {
		return err
	}
	s.dst.Set(reflect.ValueOf(&str))
	return nil
}

type nullInt64Scanner struct{ dst reflect.Value }

func (s *nullInt64Scanner) Scan(src interface{}) error {
	if src == nil {
		s.dst.Set(reflect.Zero(s.dst.Type()))
		return nil
	}
	n, err := driverToInt64(src)
	if err != nil {
		return err
	}
	s.dst.Set(reflect.ValueOf(&n))
	return nil
}

type nullIntScanner struct{ dst reflect.Value }

func (s *nullIntScanner) Scan(src interface{}) error {
	if src == nil {
		s.dst.Set(reflect.Zero(s.dst.Type()))
		return nil
	}
	n, err := driverToInt64(src)
	if err != nil {
		return err
	}
	i := int(n)
	s.dst.Set(reflect.ValueOf(&i))
	return nil
}

func parseTime(src interface{}) (time.Time, error) {
	switch v := src.(type) {
	case time.Time:
		return v, nil
	case string:
		return time.Parse(time.RFC3339Nano, v)
	case []byte:
		return time.Parse(time.RFC3339Nano, string(v))
	default:
		return time.Time{}, fmt.Errorf("cannot parse time from %T", src)
	}
}

func driverToString(src interface{}) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case driver.Valuer:
		val, err := v.Value()
		if err != nil {
			return "", err
		}
		return driverToString(val)
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

func driverToInt64(src interface{}) (int64, error) {
	switch v := src.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case []byte:
		var n int64
		_, err := fmt.Sscanf(string(v), "%d", &n)
		return n, err
	default:
		return 0, fmt.Errorf("cannot parse int64 from %T", src)
	}
}

package events

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Record is one stream entry as a consumer sees it. Deliveries counts how
// many times the group has been handed this record; it is populated on the
// claim path only.
type Record struct {
	ID         string
	Deliveries int64
	Values     map[string]string
}

// EventType returns the record's event type, empty when absent.
func (r Record) EventType() string {
	return r.Values["EventType"]
}

// String returns the named field, empty when absent.
func (r Record) String(key string) string {
	return r.Values[key]
}

// Int returns the named field parsed as an integer.
func (r Record) Int(key string) (int64, error) {
	v, ok := r.Values[key]
	if !ok {
		return 0, fmt.Errorf("field %q missing", key)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", key, err)
	}
	return n, nil
}

// Bool returns the named field parsed as a boolean.
func (r Record) Bool(key string) (bool, error) {
	v, ok := r.Values[key]
	if !ok {
		return false, fmt.Errorf("field %q missing", key)
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("field %q: %w", key, err)
	}
	return b, nil
}

// UUID returns the named field parsed as a UUID.
func (r Record) UUID(key string) (uuid.UUID, error) {
	v, ok := r.Values[key]
	if !ok {
		return uuid.Nil, fmt.Errorf("field %q missing", key)
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, fmt.Errorf("field %q: %w", key, err)
	}
	return id, nil
}

// Time returns the named field parsed as RFC3339Nano.
func (r Record) Time(key string) (time.Time, error) {
	v, ok := r.Values[key]
	if !ok {
		return time.Time{}, fmt.Errorf("field %q missing", key)
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %q: %w", key, err)
	}
	return t, nil
}

package store

import (
	"reflect"

	"github.com/heysubinoy/pyazwatch/pkg/kv"
)

// record holds the live state of one key.
type record struct {
	data kv.Record
}

func newRecord(key string, value any) *record {
	return &record{data: kv.Record{Key: key, Value: value}}
}

// setValue applies value and reports whether the record changed.
// Composite values are never compared: they always bump the revision.
func (r *record) setValue(value any) bool {
	if isScalar(value) && isScalar(r.data.Value) && r.data.Value == value {
		return false
	}
	r.data.Revision++
	r.data.Value = value
	return true
}

// isScalar reports whether v is nil or of a bool, numeric or string kind.
// Such values are comparable with ==.
func isScalar(v any) bool {
	if v == nil {
		return true
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	default:
		return false
	}
}

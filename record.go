package tabcsv

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Field is one named value of a Record.
type Field struct {
	Key   string
	Value any
}

// Record is one tick of named scalar values submitted to an Output.
//
// Fields returns the values in the order their keys were first recorded.
// Mark is called by the Output for every key it wrote, so the producer can
// tell which fields no sink consumed.
type Record interface {
	Fields() []Field
	Mark(key string)
}

// Tabular is an ordered, reusable Record. Values persist between ticks until
// Clear is called.
type Tabular struct {
	keys     []string
	values   map[string]any
	marked   map[string]struct{}
	prefixes []string
	prefix   string
}

// NewTabular returns an empty Tabular.
func NewTabular() *Tabular {
	return &Tabular{
		values: make(map[string]any),
		marked: make(map[string]struct{}),
	}
}

// Record sets key (under the current prefix) to value. A key keeps the
// position of its first Record call.
func (t *Tabular) Record(key string, value any) {
	t.init()
	key = t.prefix + key
	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.values[key] = value
	delete(t.marked, key)
}

// PushPrefix prepends p to every key recorded until the matching PopPrefix.
func (t *Tabular) PushPrefix(p string) {
	t.prefixes = append(t.prefixes, p)
	t.prefix = strings.Join(t.prefixes, "")
}

// PopPrefix removes the most recently pushed prefix.
func (t *Tabular) PopPrefix() {
	if len(t.prefixes) == 0 {
		return
	}
	t.prefixes = t.prefixes[:len(t.prefixes)-1]
	t.prefix = strings.Join(t.prefixes, "")
}

// Fields returns the keys holding primitive values, in insertion order.
// Keys holding nil or non-scalar values are left out.
func (t *Tabular) Fields() []Field {
	if t == nil {
		return nil
	}
	fields := make([]Field, 0, len(t.keys))
	for _, k := range t.keys {
		v := t.values[k]
		if IsPrimitive(v) {
			fields = append(fields, Field{Key: k, Value: v})
		}
	}
	return fields
}

// Mark records that key was consumed by an output.
func (t *Tabular) Mark(key string) {
	if t == nil {
		return
	}
	t.init()
	if _, ok := t.values[key]; ok {
		t.marked[key] = struct{}{}
	}
}

// MarkAll marks every recorded key.
func (t *Tabular) MarkAll() {
	for _, k := range t.keys {
		t.Mark(k)
	}
}

// Marked reports whether key has been consumed.
func (t *Tabular) Marked(key string) bool {
	_, ok := t.marked[key]
	return ok
}

// Unmarked returns the recorded keys no output consumed, in insertion order.
func (t *Tabular) Unmarked() []string {
	var out []string
	for _, k := range t.keys {
		if _, ok := t.marked[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// Keys returns every recorded key in insertion order.
func (t *Tabular) Keys() []string {
	return append([]string(nil), t.keys...)
}

// Value returns the value stored for key.
func (t *Tabular) Value(key string) (any, bool) {
	v, ok := t.values[key]
	return v, ok
}

// Len reports the number of recorded keys.
func (t *Tabular) Len() int {
	return len(t.keys)
}

// Clear drops all values and marks. The prefix stack is kept.
func (t *Tabular) Clear() {
	t.keys = t.keys[:0]
	t.values = make(map[string]any)
	t.marked = make(map[string]struct{})
}

// String renders the recorded values as a two-column table.
func (t *Tabular) String() string {
	width := 0
	for _, k := range t.keys {
		if len(k) > width {
			width = len(k)
		}
	}
	var b strings.Builder
	for _, k := range t.keys {
		fmt.Fprintf(&b, "%-*s  %v\n", width, k, t.values[k])
	}
	return b.String()
}

func (t *Tabular) init() {
	if t.values == nil {
		t.values = make(map[string]any)
	}
	if t.marked == nil {
		t.marked = make(map[string]struct{})
	}
}

// IsPrimitive reports whether v is a scalar that can be written as a single
// CSV cell: a string, bool, integer, or float (including named types of those kinds).
func IsPrimitive(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// FormatValue renders a primitive value as cell text. Anything else renders
// as the empty string and ok is false.
func FormatValue(v any) (s string, ok bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), true
	}
	if !IsPrimitive(v) {
		return "", false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 32), true
	default:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64), true
	}
}

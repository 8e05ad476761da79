package tables

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

// Predicate is a filter value tested against a row attribute.
type Predicate func(value any) bool

// Filter maps attribute names to literals or predicates.
type Filter map[string]any

// Names returns the filter names in sorted order.
func (f Filter) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func AsPredicate(value any) (Predicate, bool) {
	switch p := value.(type) {
	case Predicate:
		return p, p != nil
	case func(any) bool:
		return p, p != nil
	}
	return nil, false
}

// Normalize maps every Go number to float64, the representation numbers
// have once decoded from storage.
func Normalize(value any) any {
	switch v := value.(type) {
	case int:
		return float64(v)
	case int8:
		return float64(v)
	case int16:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint8:
		return float64(v)
	case uint16:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case float32:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return value
}

// Equal is strict equality: same dynamic type and ==, after number
// normalization. Maps, slices and other non-comparable values never match.
func Equal(a, b any) bool {
	a, b = Normalize(a), Normalize(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() || ta.Kind() == reflect.Struct {
		return false
	}
	return a == b
}

// IDString renders a row id as a storage key component.
func IDString(id any) string {
	switch v := Normalize(id).(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

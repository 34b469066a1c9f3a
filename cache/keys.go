package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = ":"

// ViewCountPrefix namespaces the view counters kept next to cached entries.
const ViewCountPrefix = "viewCount"

// Arg is one named argument of a wrapped call. Args keep declaration order
// so the same logical call always yields the same key.
type Arg struct {
	Name  string
	Value any
}

// Args is the ordered argument list of a wrapped call.
type Args []Arg

// A is shorthand for building an Arg.
func A(name string, value any) Arg {
	return Arg{Name: name, Value: value}
}

// Lookup returns the value of the first argument called name.
func (a Args) Lookup(name string) (any, bool) {
	for _, arg := range a {
		if arg.Name == name {
			return arg.Value, true
		}
	}
	return nil, false
}

// BuildKey composes prefix[:key][:discriminatorValue]. When discriminator is
// empty or not among args, every argument value is appended in order.
// It never fails; unusable values still render to a stable string.
func BuildKey(prefix, key, discriminator string, args Args) string {
	var b strings.Builder
	b.WriteString(prefix)
	if key != "" {
		b.WriteString(KeySeparator)
		b.WriteString(key)
	}

	if discriminator != "" {
		if v, ok := args.Lookup(discriminator); ok {
			b.WriteString(KeySeparator)
			b.WriteString(FormatValue(v))
			return b.String()
		}
	}

	for _, arg := range args {
		b.WriteString(KeySeparator)
		b.WriteString(FormatValue(arg.Value))
	}
	return b.String()
}

// ViewCountKey is the counter key kept for a cached entry.
func ViewCountKey(cacheKey string) string {
	return ViewCountPrefix + KeySeparator + cacheKey
}

// RateLimitKey is the marker that suppresses repeated counting by actor.
func RateLimitKey(cacheKey, actor string) string {
	return cacheKey + KeySeparator + "user" + KeySeparator + actor
}

// PendingSetKey lists counters of prefix waiting to be flushed.
func PendingSetKey(prefix string) string {
	return prefix + KeySeparator + "update"
}

// HistorySetKey lists entries of prefix accessed since the last daily reset.
func HistorySetKey(prefix string) string {
	return prefix + KeySeparator + "history"
}

// EntityID resolves the numeric id trailing a cache or counter key built
// from base, e.g. EntityID("viewCount:post:postid:42", "post:postid") is 42.
func EntityID(key, base string) (int64, bool) {
	key = strings.TrimPrefix(key, ViewCountPrefix+KeySeparator)
	rest, ok := strings.CutPrefix(key, base+KeySeparator)
	if !ok || rest == "" || strings.Contains(rest, KeySeparator) {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// FormatValue renders a single key segment. Basic values use %v; composite
// values are rendered by reflection with sorted map keys so the output does
// not depend on iteration order.
func FormatValue(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)
	rt := rv.Type()

	switch rt.Kind() {
	case reflect.Func:
		return fmt.Sprintf("func:%p", v)
	case reflect.Chan:
		return fmt.Sprintf("chan:%p", v)
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return FormatValue(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return "nil"
		}
		return formatList(rv)
	case reflect.Array:
		return formatList(rv)
	case reflect.Map:
		if rv.IsNil() {
			return "nil"
		}
		return formatMap(rv)
	case reflect.Struct:
		if s, ok := v.(fmt.Stringer); ok {
			return s.String()
		}
		return formatStruct(rv, rt)
	}

	if isBasicKind(rt.Kind()) {
		return fmt.Sprintf("%v", v)
	}

	return jsonFallback(v)
}

func formatList(rv reflect.Value) string {
	parts := make([]string, rv.Len())
	for i := range parts {
		parts[i] = FormatValue(rv.Index(i).Interface())
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func formatMap(rv reflect.Value) string {
	type pair struct{ k, v string }
	pairs := make([]pair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, pair{
			k: FormatValue(iter.Key().Interface()),
			v: FormatValue(iter.Value().Interface()),
		})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].k < pairs[j].k })

	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.k + "=" + p.v
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func formatStruct(rv reflect.Value, rt reflect.Type) string {
	parts := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		parts = append(parts, field.Name+"="+FormatValue(rv.Field(i).Interface()))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func isBasicKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128,
		reflect.String:
		return true
	default:
		return false
	}
}

func jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "fallback:" + reflect.TypeOf(v).String()
	}
	return string(data)
}

// Package vars is the context store threaded through fragment execution.
// A Map is the only channel by which fragments communicate with each other
// and with the caller.
package vars

import (
	"fmt"
	"sort"
	"strconv"
)

// Reserved keys written by executors.
const (
	// KeyOutput holds the combined stdout+stderr of a shell fragment.
	KeyOutput = "output"
	// KeyResult holds the return value of a script fragment (nil if none).
	KeyResult = "result"
)

// Seed keys written by directory traversal.
const (
	KeyAbsolutePath = "absolute_path"
	KeySourceTree   = "source_tree"
	KeyFilesArray   = "files_array"
)

// Map is a string-keyed variable space.
type Map map[string]any

// Clone returns a shallow copy. Nil clones to an empty map.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge returns a new map holding old overlaid with partial. On key
// collision the value from partial wins. Neither argument is modified.
func Merge(old, partial Map) Map {
	out := make(Map, len(old)+len(partial))
	for k, v := range old {
		out[k] = v
	}
	for k, v := range partial {
		out[k] = v
	}
	return out
}

// Keys returns the keys in sorted order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Scalar reports whether v is a primitive that may be exported to a process
// environment, and its string form. Strings, booleans and every integer kind
// qualify; floats, slices, maps, structs and nil do not.
func Scalar(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x), true
	default:
		return "", false
	}
}

// Scalars returns the entries of m that Scalar accepts, stringified.
func (m Map) Scalars() map[string]string {
	out := make(map[string]string)
	for k, v := range m {
		if s, ok := Scalar(v); ok {
			out[k] = s
		}
	}
	return out
}

// Lookup resolves a dotted path ("a.b.c") through nested maps.
func (m Map) Lookup(path string) (any, bool) {
	var cur any = m
	start := 0
	for i := 0; i <= len(path); i++ {
		if i < len(path) && path[i] != '.' {
			continue
		}
		key := path[start:i]
		start = i + 1
		switch node := cur.(type) {
		case Map:
			v, ok := node[key]
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]any:
			v, ok := node[key]
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]string:
			v, ok := node[key]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}

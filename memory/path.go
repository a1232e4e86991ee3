package memory

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/hupe1980/dialogmesh/internal/util"
)

type segmentKind int

const (
	segmentKey segmentKind = iota
	segmentIndex
	segmentFunc
)

// segment is one step of a parsed path.
type segment struct {
	kind  segmentKind
	key   string
	index int
}

func (s segment) String() string {
	if s.kind == segmentIndex {
		return "[" + strconv.Itoa(s.index) + "]"
	}
	return s.key
}

// keyString is the map key a segment addresses.
func (s segment) keyString() string {
	if s.kind == segmentIndex {
		return strconv.Itoa(s.index)
	}
	return s.key
}

func nameSegment(name string) segment {
	switch strings.ToLower(name) {
	case "first()", "last()":
		return segment{kind: segmentFunc, key: strings.ToLower(name)}
	}
	return segment{kind: segmentKey, key: name}
}

func invalidPath(path, reason string) error {
	return fmt.Errorf("%w %q: %s", ErrInvalidPath, path, reason)
}

// parsePath splits a canonical path into segments.
func parsePath(path string) ([]segment, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, invalidPath(path, "empty path")
	}
	var segs []segment
	start := 0
	afterBracket := false

	flush := func(i int) error {
		name := strings.TrimSpace(path[start:i])
		if name == "" {
			if !afterBracket {
				return invalidPath(path, "empty segment")
			}
			return nil
		}
		segs = append(segs, nameSegment(name))
		return nil
	}

	for i := 0; i < len(path); {
		switch path[i] {
		case '.':
			if err := flush(i); err != nil {
				return nil, err
			}
			if i == len(path)-1 {
				return nil, invalidPath(path, "trailing dot")
			}
			afterBracket = false
			i++
			start = i
		case '[':
			if err := flush(i); err != nil {
				return nil, err
			}
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, invalidPath(path, "unterminated bracket")
			}
			seg, err := bracketSegment(path[i+1 : i+end])
			if err != nil {
				return nil, invalidPath(path, err.Error())
			}
			segs = append(segs, seg)
			afterBracket = true
			i += end + 1
			start = i
			if i < len(path) && path[i] != '.' && path[i] != '[' {
				return nil, invalidPath(path, "unexpected character after ']'")
			}
		case ']':
			return nil, invalidPath(path, "unexpected ']'")
		default:
			i++
		}
	}
	if err := flush(len(path)); err != nil {
		return nil, err
	}
	if len(segs) == 0 || segs[0].kind != segmentKey {
		return nil, invalidPath(path, "path must start with a scope name")
	}
	return segs, nil
}

func bracketSegment(inner string) (segment, error) {
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return segment{}, fmt.Errorf("empty brackets")
	}
	if len(inner) >= 2 && (inner[0] == '\'' || inner[0] == '"') && inner[len(inner)-1] == inner[0] {
		return segment{kind: segmentKey, key: inner[1 : len(inner)-1]}, nil
	}
	if n, err := strconv.Atoi(inner); err == nil {
		if n < 0 {
			return segment{}, fmt.Errorf("negative index %d", n)
		}
		return segment{kind: segmentIndex, index: n}, nil
	}
	return segment{kind: segmentKey, key: inner}, nil
}

// arrayLike reports whether m's keys are exactly "0".."n-1" and returns
// the values in order.
func arrayLike(m map[string]any) ([]any, bool) {
	if len(m) == 0 {
		return nil, false
	}
	out := make([]any, len(m))
	for i := range out {
		v, ok := m[strconv.Itoa(i)]
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// asList views v as a list: slices, arrays and array-like maps qualify.
func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case []any:
		return t, true
	case map[string]any:
		return arrayLike(t)
	case []byte, string:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// findKey returns the stored key matching key, preferring an exact match.
func findKey(m map[string]any, key string) (string, bool) {
	if _, ok := m[key]; ok {
		return key, true
	}
	for k := range m {
		if strings.EqualFold(k, key) {
			return k, true
		}
	}
	return "", false
}

func lookupKey(v any, key string) (any, bool) {
	switch m := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		k, ok := findKey(m, key)
		if !ok {
			return nil, false
		}
		return m[k], true
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		iter := rv.MapRange()
		for iter.Next() {
			if strings.EqualFold(iter.Key().String(), key) {
				return iter.Value().Interface(), true
			}
		}
		return nil, false
	case reflect.Struct:
		m, ok := util.ToMap(v)
		if !ok {
			return nil, false
		}
		return lookupKey(m, key)
	default:
		return nil, false
	}
}

func applyFunc(v any, name string) (any, bool) {
	list, ok := asList(v)
	if !ok || len(list) == 0 {
		return nil, false
	}
	if name == "last()" {
		return list[len(list)-1], true
	}
	return list[0], true
}

// getPath reads segs below root. The boolean is false when any segment is absent.
func getPath(root any, segs []segment) (any, bool) {
	current := root
	for _, seg := range segs {
		var ok bool
		switch seg.kind {
		case segmentFunc:
			current, ok = applyFunc(current, seg.key)
		case segmentIndex:
			if list, isList := asList(current); isList {
				if seg.index >= len(list) {
					return nil, false
				}
				current, ok = list[seg.index], true
			} else {
				current, ok = lookupKey(current, seg.keyString())
			}
		default:
			var next any
			next, ok = lookupKey(current, seg.key)
			if !ok {
				if list, isList := asList(current); isList {
					if n, err := strconv.Atoi(seg.key); err == nil && n >= 0 && n < len(list) {
						next, ok = list[n], true
					}
				}
			}
			current = next
		}
		if !ok {
			return nil, false
		}
	}
	return normalize(current), true
}

func normalize(v any) any {
	if m, ok := v.(map[string]any); ok {
		if list, ok := arrayLike(m); ok {
			return list
		}
	}
	return v
}

// setPath writes value at segs below container, creating intermediate maps
// and growing lists. It returns the container, which is new when a list grew
// or a nil container was materialized.
func setPath(container any, segs []segment, value any) (any, error) {
	seg := segs[0]
	last := len(segs) == 1

	switch seg.kind {
	case segmentFunc:
		return nil, fmt.Errorf("%w: cannot assign through %s", ErrInvalidPath, seg.key)
	case segmentIndex:
		if m, ok := container.(map[string]any); ok {
			return setKey(m, seg.keyString(), segs, value)
		}
		var list []any
		switch c := container.(type) {
		case nil:
		case []any:
			list = c
		default:
			return nil, fmt.Errorf("%w: cannot index into %T", ErrInvalidPath, container)
		}
		for len(list) <= seg.index {
			list = append(list, nil)
		}
		if last {
			list[seg.index] = value
			return list, nil
		}
		child, err := setPath(list[seg.index], segs[1:], value)
		if err != nil {
			return nil, err
		}
		list[seg.index] = child
		return list, nil
	default:
		if container == nil {
			container = map[string]any{}
		}
		if list, ok := container.([]any); ok {
			if n, err := strconv.Atoi(seg.key); err == nil && n >= 0 {
				return setPath(list, append([]segment{{kind: segmentIndex, index: n}}, segs[1:]...), value)
			}
		}
		m, ok := util.ToMap(container)
		if !ok {
			return nil, fmt.Errorf("%w: cannot set %q on %T", ErrInvalidPath, seg.key, container)
		}
		return setKey(m, seg.key, segs, value)
	}
}

func setKey(m map[string]any, key string, segs []segment, value any) (any, error) {
	if existing, ok := findKey(m, key); ok {
		key = existing
	}
	if len(segs) == 1 {
		m[key] = value
		return m, nil
	}
	child, err := setPath(m[key], segs[1:], value)
	if err != nil {
		return nil, err
	}
	m[key] = child
	return m, nil
}

// removePath deletes segs below container. Missing paths are left untouched.
func removePath(container any, segs []segment) any {
	seg := segs[0]
	last := len(segs) == 1

	switch c := container.(type) {
	case map[string]any:
		k, ok := findKey(c, seg.keyString())
		if !ok {
			return c
		}
		if last {
			delete(c, k)
			return c
		}
		c[k] = removePath(c[k], segs[1:])
		return c
	case []any:
		idx := seg.index
		if seg.kind != segmentIndex {
			n, err := strconv.Atoi(seg.key)
			if err != nil {
				return c
			}
			idx = n
		}
		if idx < 0 || idx >= len(c) {
			return c
		}
		if last {
			return append(c[:idx:idx], c[idx+1:]...)
		}
		c[idx] = removePath(c[idx], segs[1:])
		return c
	default:
		return container
	}
}

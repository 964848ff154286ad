// Package answers holds the working answer set of an application: a nested
// key-value structure addressed by dot/bracket paths ("estate.assets[2].marketValue").
// Values follow JSON decoding conventions (map[string]any, []any, float64,
// string, bool, nil).
package answers

import (
	"fmt"
	"strconv"
	"strings"
)

// Map is the root answer object.
type Map = map[string]any

// segment is one step of a parsed path: a map key, optionally followed by
// a slice index (key "" with index >= 0 means bare index).
type segment struct {
	key   string
	index int // -1 when the segment is a plain key
}

// parsePath splits "a.b[2].c" into segments. Bracket indices become their
// own segments so lookup code handles one step at a time.
func parsePath(path string) ([]segment, error) {
	if path == "" {
		return nil, fmt.Errorf("empty answer path")
	}
	var segs []segment
	for part := range strings.SplitSeq(path, ".") {
		key := part
		for {
			open := strings.IndexByte(key, '[')
			if open < 0 {
				if key != "" {
					segs = append(segs, segment{key: key, index: -1})
				}
				break
			}
			if open > 0 {
				segs = append(segs, segment{key: key[:open], index: -1})
			}
			rest := key[open+1:]
			closeIdx := strings.IndexByte(rest, ']')
			if closeIdx < 0 {
				return nil, fmt.Errorf("unterminated index in path %q", path)
			}
			idx, err := strconv.Atoi(rest[:closeIdx])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("invalid index in path %q", path)
			}
			segs = append(segs, segment{index: idx})
			key = rest[closeIdx+1:]
			if key == "" {
				break
			}
		}
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("empty answer path")
	}
	return segs, nil
}

// Get resolves a dot/bracket path against the answer map. The second return
// is false when any step of the path is absent or of the wrong shape.
func Get(m Map, path string) (any, bool) {
	segs, err := parsePath(path)
	if err != nil {
		return nil, false
	}
	var cur any = map[string]any(m)
	for _, seg := range segs {
		if seg.index >= 0 {
			slice, ok := cur.([]any)
			if !ok || seg.index >= len(slice) {
				return nil, false
			}
			cur = slice[seg.index]
			continue
		}
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[seg.key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// GetString resolves a path to a string, returning "" when absent or not a string.
func GetString(m Map, path string) string {
	v, ok := Get(m, path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// GetSlice resolves a path to a slice, returning nil when absent or not a slice.
func GetSlice(m Map, path string) []any {
	v, ok := Get(m, path)
	if !ok {
		return nil
	}
	s, _ := v.([]any)
	return s
}

// RepetitionCount returns the number of repetitions recorded for a repeater,
// i.e. the length of the slice stored under its id.
func RepetitionCount(m Map, repeaterID string) int {
	return len(GetSlice(m, repeaterID))
}

// Merge deep-merges src into dst and returns the result without mutating
// either input. Merge policy:
//   - maps merge key-wise, recursively;
//   - slices merge element-wise by index (a nil src element keeps the dst
//     element, src extends dst when longer, dst tail survives when src is
//     shorter) so an update to assets[2] never erases assets[0..1];
//   - anything else from src overwrites dst.
func Merge(dst, src Map) Map {
	merged := mergeValue(dst, src)
	out, _ := merged.(map[string]any)
	return out
}

func mergeValue(dst, src any) any {
	switch s := src.(type) {
	case map[string]any:
		d, ok := dst.(map[string]any)
		if !ok {
			return cloneValue(s)
		}
		out := make(map[string]any, len(d)+len(s))
		for k, v := range d {
			out[k] = cloneValue(v)
		}
		for k, v := range s {
			out[k] = mergeValue(d[k], v)
		}
		return out
	case []any:
		d, ok := dst.([]any)
		if !ok {
			return cloneValue(s)
		}
		n := max(len(d), len(s))
		out := make([]any, n)
		for i := range n {
			switch {
			case i >= len(s):
				out[i] = cloneValue(d[i])
			case s[i] == nil && i < len(d):
				out[i] = cloneValue(d[i])
			case i < len(d):
				out[i] = mergeValue(d[i], s[i])
			default:
				out[i] = cloneValue(s[i])
			}
		}
		return out
	default:
		return src
	}
}

// Clone returns an independent deep copy of the answer map.
func Clone(m Map) Map {
	out, _ := cloneValue(map[string]any(m)).(map[string]any)
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Prune removes the subtrees named by the given paths, returning a new map.
// Missing paths are ignored. Used by lifecycle exit actions to clear answer
// branches that a state change made irrelevant.
func Prune(m Map, paths ...string) Map {
	out := Clone(m)
	for _, path := range paths {
		segs, err := parsePath(path)
		if err != nil {
			continue
		}
		pruneSegments(out, segs)
	}
	return out
}

func pruneSegments(cur any, segs []segment) {
	last := segs[len(segs)-1]
	for _, seg := range segs[:len(segs)-1] {
		if seg.index >= 0 {
			slice, ok := cur.([]any)
			if !ok || seg.index >= len(slice) {
				return
			}
			cur = slice[seg.index]
			continue
		}
		obj, ok := cur.(map[string]any)
		if !ok {
			return
		}
		cur, ok = obj[seg.key]
		if !ok {
			return
		}
	}
	if last.index >= 0 {
		// Index leaves are nilled rather than spliced so sibling indices
		// keep their positions.
		if slice, ok := cur.([]any); ok && last.index < len(slice) {
			slice[last.index] = nil
		}
		return
	}
	if obj, ok := cur.(map[string]any); ok {
		delete(obj, last.key)
	}
}

package cleaner

// StringMapper is implemented by records that can apply a transform to every
// string they hold.
type StringMapper interface {
	MapStrings(fn func(string) string)
}

// MapStrings applies fn to every string leaf of a nested structure of maps and
// slices. Maps and slices are copied, other leaves are returned untouched.
// StringMapper values are transformed in place and returned.
func MapStrings(v any, fn func(string) string) any {
	switch t := v.(type) {
	case string:
		return fn(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = MapStrings(child, fn)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = MapStrings(child, fn)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, child := range t {
			out[k] = fn(child)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, child := range t {
			out[i] = fn(child)
		}
		return out
	case StringMapper:
		t.MapStrings(fn)
		return t
	}
	return v
}

// CleanURLs runs CleanURL over the value of every "url" key of a nested
// structure, other strings are left alone.
func CleanURLs(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			if s, ok := child.(string); ok && k == "url" {
				out[k] = CleanURL(s)
				continue
			}
			out[k] = CleanURLs(child)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, child := range t {
			if k == "url" {
				child = CleanURL(child)
			}
			out[k] = child
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = CleanURLs(child)
		}
		return out
	}
	return v
}

// CleanEscapedSlashes applies UnescapeSlashes to every string of v.
func CleanEscapedSlashes(v any) any {
	return MapStrings(v, UnescapeSlashes)
}

// CleanEncodingArtifacts applies StripEncodingArtifacts to every string of v.
func CleanEncodingArtifacts(v any) any {
	return MapStrings(v, StripEncodingArtifacts)
}

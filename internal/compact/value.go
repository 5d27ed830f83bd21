package compact

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind tags the JSON variant a field value belongs to, so hashing and
// comparison logic can switch exhaustively instead of duck typing.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

// KindOf classifies a decoded JSON value. Integer Go values produced by
// in-process construction (rather than json.Unmarshal) are treated as
// numbers too.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case float64, float32, int, int32, int64:
		return KindNumber
	case string:
		return KindString
	case []any:
		return KindList
	case map[string]any:
		return KindMap
	default:
		// Anything exotic degrades to its string form.
		return KindString
	}
}

// CanonicalKey renders a value into a stable hashable form: map keys are
// sorted, lists keep order, numbers are normalized so 3 and 3.0 collide.
// Two values share a canonical key iff they are equal for the purposes of
// duplicate-value abbreviation.
func CanonicalKey(v any) string {
	var sb strings.Builder
	writeCanonical(&sb, v)
	return sb.String()
}

func writeCanonical(sb *strings.Builder, v any) {
	switch KindOf(v) {
	case KindNull:
		sb.WriteString("z")
	case KindBool:
		if v.(bool) {
			sb.WriteString("b1")
		} else {
			sb.WriteString("b0")
		}
	case KindNumber:
		sb.WriteString("n")
		sb.WriteString(strconv.FormatFloat(asFloat(v), 'g', -1, 64))
	case KindString:
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprintf("%v", v)
		}
		sb.WriteString("s")
		sb.WriteString(strconv.Itoa(len(s)))
		sb.WriteString(":")
		sb.WriteString(s)
	case KindList:
		list := v.([]any)
		sb.WriteString("l[")
		for _, item := range list {
			writeCanonical(sb, item)
			sb.WriteString(",")
		}
		sb.WriteString("]")
	case KindMap:
		m := v.(map[string]any)
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("m{")
		for _, k := range keys {
			sb.WriteString(strconv.Itoa(len(k)))
			sb.WriteString(":")
			sb.WriteString(k)
			sb.WriteString("=")
			writeCanonical(sb, m[k])
			sb.WriteString(",")
		}
		sb.WriteString("}")
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

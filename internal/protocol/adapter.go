// Package protocol adapts canonical client records to and from the four
// SpacetimeDB server-language wire dialects: field renaming, case
// conversion, and timestamp-unit translation. Transformations are purely
// structural; an adapter is its own inverse on any record containing only
// fields it recognizes.
package protocol

// Adapter translates one record between the canonical client shape and one
// server-language wire shape. typeName selects the field-rename table
// (e.g. "entity", "player", "circle", "vector2"); record is a generic
// decoded JSON object so the adapter can recurse into nested objects and
// arrays without depending on the model package's concrete types.
type Adapter interface {
	ToServer(record map[string]any, typeName string) (map[string]any, error)
	FromServer(record map[string]any, typeName string) (map[string]any, error)
}

// TimestampUnit names the wire encoding of a "seconds" canonical field.
type TimestampUnit int

const (
	UnitSeconds TimestampUnit = iota
	UnitMilliseconds
	UnitNanoseconds
)

// timestampFields lists which fields of which type carry a seconds-valued
// timestamp and must run through adaptTimestamp instead of a plain rename.
var timestampFields = map[string][]string{
	"entity": {"created_at", "updated_at"},
	"player": {"created_at", "updated_at"},
	"circle": {"created_at", "updated_at", "respawn_time"},
}

// adaptTimestamp converts a canonical seconds-valued timestamp to its wire
// unit (toServer=true) or converts a wire value back to canonical seconds
// (toServer=false). Non-numeric or nil input passes through unchanged so a
// caller that sent no timestamp doesn't have one synthesized.
func adaptTimestamp(unit TimestampUnit, toServer bool, v any) any {
	f, ok := asFloat(v)
	if !ok {
		return v
	}
	switch unit {
	case UnitSeconds:
		return f
	case UnitMilliseconds:
		if toServer {
			return int64(f * 1000)
		}
		return f / 1000
	case UnitNanoseconds:
		if toServer {
			return int64(f * 1e9)
		}
		return f / 1e9
	default:
		return v
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// renameTable maps each direction's field renames and declares the casing
// function applied toward the server to any field not otherwise named in
// the table; from the server, such fields are converted back to snake_case.
type renameTable struct {
	// toServerRenames maps a canonical field name to its wire name.
	toServerRenames map[string]string
	// fromServerRenames maps a wire field name back to its canonical name;
	// the inverse of toServerRenames plus any wire-only aliases.
	fromServerRenames map[string]string
	unit              TimestampUnit
	caseConv          func(string) string
	enumConv          func(string) string
	enumConvInverse   func(string) string
}

// applyRecord walks one decoded JSON object, renaming and case-converting
// every field, recursing into nested objects and arrays of objects, and
// routing any field listed in timestampFields through adaptTimestamp.
func applyRecord(rt renameTable, record map[string]any, typeName string, toServer bool) map[string]any {
	renames := rt.toServerRenames
	if !toServer {
		renames = rt.fromServerRenames
	}
	// canonicalTS is keyed by canonical field name (toServer direction);
	// wireTS is keyed by that field's wire-side name (fromServer direction),
	// derived by running the same rename+case logic a normal field would get.
	canonicalTS, wireTS := timestampFieldSets(rt, typeName)

	out := make(map[string]any, len(record))
	for k, v := range record {
		newKey := k
		if renamed, ok := renames[k]; ok {
			newKey = renamed
		} else if !toServer {
			// The canonical shape is snake_case whatever the wire casing.
			newKey = toSnakeCase(k)
		} else if rt.caseConv != nil {
			newKey = rt.caseConv(k)
		}

		isTimestamp := canonicalTS[k]
		if !toServer {
			isTimestamp = wireTS[k]
		}
		if isTimestamp {
			out[newKey] = adaptTimestamp(rt.unit, toServer, v)
			continue
		}

		out[newKey] = convertValue(rt, v, toServer)
	}
	return out
}

// timestampFieldSets returns the set of canonical timestamp field names for
// typeName, and the set of those same fields' names as they appear on the
// wire under rt (the name the field has after rt.toServerRenames/caseConv).
func timestampFieldSets(rt renameTable, typeName string) (canonical, wire map[string]bool) {
	fields := timestampFields[typeName]
	canonical = make(map[string]bool, len(fields))
	wire = make(map[string]bool, len(fields))
	for _, f := range fields {
		canonical[f] = true
		wireName := f
		if renamed, ok := rt.toServerRenames[f]; ok {
			wireName = renamed
		} else if rt.caseConv != nil {
			wireName = rt.caseConv(f)
		}
		wire[wireName] = true
	}
	return canonical, wire
}

func convertValue(rt renameTable, v any, toServer bool) any {
	switch val := v.(type) {
	case map[string]any:
		return applyRecord(rt, val, "", toServer)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = convertValue(rt, item, toServer)
		}
		return out
	case string:
		if rt.enumConv == nil {
			return val
		}
		if toServer {
			return rt.enumConv(val)
		}
		if rt.enumConvInverse != nil {
			return rt.enumConvInverse(val)
		}
		return val
	default:
		return val
	}
}

package protocol

// langAdapter implements Adapter by driving applyRecord with a language's
// renameTable. All four server-language adapters share this shape; only
// the table differs.
type langAdapter struct {
	table renameTable
}

func (a langAdapter) ToServer(record map[string]any, typeName string) (map[string]any, error) {
	return applyRecord(a.table, record, typeName, true), nil
}

func (a langAdapter) FromServer(record map[string]any, typeName string) (map[string]any, error) {
	return applyRecord(a.table, record, typeName, false), nil
}

func invert(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// rustRenames: entity_id<->id, created_at<->created, updated_at<->updated.
// Rust keeps snake_case casing, so caseConv is a no-op identity beyond the
// explicit renames above (field names already arrive snake_case).
var rustToServer = map[string]string{
	"entity_id":  "id",
	"created_at": "created",
	"updated_at": "updated",
}

func newRustAdapter() Adapter {
	return langAdapter{table: renameTable{
		toServerRenames:   rustToServer,
		fromServerRenames: invert(rustToServer),
		unit:              UnitNanoseconds,
		caseConv:          toSnakeCase,
		enumConv:          toLowerEnum,
		enumConvInverse:   toLowerEnum,
	}}
}

// pythonAdapter performs no field renames and keeps seconds-granularity
// timestamps: the canonical shape already is the Python wire shape.
func newPythonAdapter() Adapter {
	return langAdapter{table: renameTable{
		toServerRenames:   map[string]string{},
		fromServerRenames: map[string]string{},
		unit:              UnitSeconds,
		caseConv:          toSnakeCase,
		enumConv:          toLowerEnum,
		enumConvInverse:   toLowerEnum,
	}}
}

// csharpAdapter: entity_id<->EntityId, PascalCase field casing (which also
// naturally renders Vector2.x/y as X/Y), milliseconds timestamps, and
// TitleCase enum variants.
var csharpToServer = map[string]string{
	"entity_id": "EntityId",
}

func newCSharpAdapter() Adapter {
	return langAdapter{table: renameTable{
		toServerRenames:   csharpToServer,
		fromServerRenames: invert(csharpToServer),
		unit:              UnitMilliseconds,
		caseConv:          toPascalCase,
		enumConv:          toTitleCaseEnum,
		enumConvInverse:   toLowerEnum,
	}}
}

// goAdapter: entity_id<->entityID, created_at<->createdAt, mixedCaps field
// casing with initialisms preserved, nanosecond timestamps.
var goToServer = map[string]string{
	"entity_id":  "entityID",
	"created_at": "createdAt",
}

func newGoAdapter() Adapter {
	return langAdapter{table: renameTable{
		toServerRenames:   goToServer,
		fromServerRenames: invert(goToServer),
		unit:              UnitNanoseconds,
		caseConv:          toMixedCaps,
		enumConv:          toLowerEnum,
		enumConvInverse:   toLowerEnum,
	}}
}

package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattsp1290/blackholio-go-client/model"
)

func TestValidateEntityOK(t *testing.T) {
	entity := map[string]any{
		"id":       "e1",
		"position": map[string]any{"x": 1.0, "y": 2.0},
		"velocity": map[string]any{"x": 0.0, "y": 0.0},
		"mass":     10.0,
		"radius":   1.0,
		"kind":     "player",
		"active":   true,
	}
	assert.NoError(t, Validate(entitySchema, entity, "Entity"))
}

func TestValidateEntityReportsPath(t *testing.T) {
	entity := map[string]any{
		"id":       "e1",
		"position": map[string]any{"x": "not-a-number", "y": 2.0},
		"velocity": map[string]any{"x": 0.0, "y": 0.0},
		"mass":     -1.0,
		"radius":   1.0,
		"kind":     "player",
		"active":   true,
	}
	err := Validate(entitySchema, entity, "Entity")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Entity.position.x")
	assert.Contains(t, err.Error(), "Entity.mass")
}

func TestValidateEnumRejectsUnknownKind(t *testing.T) {
	entity := map[string]any{
		"id":       "e1",
		"position": map[string]any{"x": 1.0, "y": 2.0},
		"velocity": map[string]any{"x": 0.0, "y": 0.0},
		"mass":     1.0,
		"radius":   1.0,
		"kind":     "ghost",
		"active":   true,
	}
	err := Validate(entitySchema, entity, "Entity")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enum")
}

func TestValidateSnapshotCrossRecordInvariants(t *testing.T) {
	entities := []model.Entity{{ID: "e1", Kind: model.EntityPlayer}}
	players := []model.Player{{Entity: model.Entity{ID: "e1", Kind: model.EntityPlayer}, PlayerID: "e1"}}
	circles := []model.Circle{{Entity: model.Entity{ID: "e2", Kind: model.EntityCircle}, CircleID: "e2"}}

	err := ValidateSnapshot(entities, players, circles)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circle_id")

	entities = append(entities, model.Entity{ID: "e2", Kind: model.EntityCircle})
	assert.NoError(t, ValidateSnapshot(entities, players, circles))

	dup := []model.Entity{{ID: "dup"}, {ID: "dup"}}
	err = ValidateSnapshot(dup, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

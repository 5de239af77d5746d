package schema

import (
	"fmt"

	"github.com/mattsp1290/blackholio-go-client/model"
)

func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool        { return &b }

var vector2Schema = &Schema{
	Type: "object",
	Properties: map[string]*Schema{
		"x": {Type: "number"},
		"y": {Type: "number"},
	},
	Required:             []string{"x", "y"},
	AdditionalProperties: boolPtr(false),
}

var entitySchema = &Schema{
	Type: "object",
	Properties: map[string]*Schema{
		"id":       {Type: "string"},
		"position": {Ref: "#/definitions/vector2"},
		"velocity": {Ref: "#/definitions/vector2"},
		"mass":     {Type: "number", Minimum: floatPtr(0)},
		"radius":   {Type: "number", Minimum: floatPtr(0)},
		"kind":     {Type: "string", Enum: []string{"player", "circle", "food", "obstacle", "unknown"}},
		"active":   {Type: "boolean"},
	},
	Required:    []string{"id", "position", "velocity", "mass", "radius", "kind", "active"},
	Definitions: map[string]*Schema{"vector2": vector2Schema},
}

var playerSchema = &Schema{
	Type: "object",
	Properties: map[string]*Schema{
		"id":               {Type: "string"},
		"player_id":        {Type: "string"},
		"name":             {Type: "string"},
		"position":         {Ref: "#/definitions/vector2"},
		"velocity":         {Ref: "#/definitions/vector2"},
		"direction":        {Ref: "#/definitions/vector2"},
		"input_direction":  {Ref: "#/definitions/vector2"},
		"mass":             {Type: "number", Minimum: floatPtr(0)},
		"radius":           {Type: "number", Minimum: floatPtr(0)},
		"score":            {Type: "integer", Minimum: floatPtr(0)},
		"state":            {Type: "string", Enum: []string{"active", "inactive", "spectating", "disconnected"}},
		"max_speed":        {Type: "number"},
		"acceleration":     {Type: "number"},
		"kind":             {Type: "string", Enum: []string{"player", "circle", "food", "obstacle", "unknown"}},
		"active":           {Type: "boolean"},
	},
	Required:    []string{"id", "player_id", "name", "position", "velocity", "mass", "radius", "score", "state"},
	Definitions: map[string]*Schema{"vector2": vector2Schema},
}

var circleSchema = &Schema{
	Type: "object",
	Properties: map[string]*Schema{
		"id":          {Type: "string"},
		"circle_id":   {Type: "string"},
		"position":    {Ref: "#/definitions/vector2"},
		"velocity":    {Ref: "#/definitions/vector2"},
		"mass":        {Type: "number", Minimum: floatPtr(0)},
		"radius":      {Type: "number", Minimum: floatPtr(0)},
		"value":       {Type: "integer", Minimum: floatPtr(0)},
		"circle_type": {Type: "string"},
		"kind":        {Type: "string", Enum: []string{"player", "circle", "food", "obstacle", "unknown"}},
		"active":      {Type: "boolean"},
	},
	Required:    []string{"id", "circle_id", "position", "velocity", "mass", "radius", "value", "circle_type"},
	Definitions: map[string]*Schema{"vector2": vector2Schema},
}

// CoreSchemas is the static schema table keyed by canonical type name.
var CoreSchemas = map[string]*Schema{
	"vector2": vector2Schema,
	"entity":  entitySchema,
	"player":  playerSchema,
	"circle":  circleSchema,
}

// ValidateSnapshot checks the cross-record invariants of a full game-state
// snapshot: entity ids pairwise unique, and every player_id/circle_id
// resolves to a known entity id.
func ValidateSnapshot(entities []model.Entity, players []model.Player, circles []model.Circle) error {
	seen := make(map[string]bool, len(entities))
	for _, e := range entities {
		if seen[e.ID] {
			return fmt.Errorf("schema: duplicate entity id %q", e.ID)
		}
		seen[e.ID] = true
	}
	for _, p := range players {
		if !seen[p.PlayerID] {
			return fmt.Errorf("schema: player_id %q does not resolve to a known entity", p.PlayerID)
		}
	}
	for _, c := range circles {
		if !seen[c.CircleID] {
			return fmt.Errorf("schema: circle_id %q does not resolve to a known entity", c.CircleID)
		}
	}
	return nil
}

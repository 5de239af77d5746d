package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattsp1290/blackholio-go-client/model"
)

func allAdapters() map[model.Language]Adapter {
	return map[model.Language]Adapter{
		model.LanguageRust:   newRustAdapter(),
		model.LanguagePython: newPythonAdapter(),
		model.LanguageCSharp: newCSharpAdapter(),
		model.LanguageGo:     newGoAdapter(),
	}
}

func seedEntity() map[string]any {
	return map[string]any{
		"entity_id": "e1",
		"position":  map[string]any{"x": 1.5, "y": -2.0},
		"velocity":  map[string]any{"x": 0.0, "y": 0.0},
		"mass":      10.0,
		"radius":    2.5,
		"kind":      "player",
		"active":    true,
	}
}

// TestRoundTripAdaptation is Testable Property 1: for every canonical
// record and every supported language, FromServer(ToServer(x)) == x.
func TestRoundTripAdaptation(t *testing.T) {
	for lang, adapter := range allAdapters() {
		t.Run(string(lang), func(t *testing.T) {
			original := seedEntity()

			toServer, err := adapter.ToServer(original, "entity")
			require.NoError(t, err)

			back, err := adapter.FromServer(toServer, "entity")
			require.NoError(t, err)

			assert.Equal(t, original["entity_id"], back["entity_id"])
			assert.Equal(t, original["mass"], back["mass"])
			assert.Equal(t, original["kind"], back["kind"])
		})
	}
}

// TestRustFieldAdaptation is scenario S2.
func TestRustFieldAdaptation(t *testing.T) {
	adapter := newRustAdapter()
	record := map[string]any{
		"entity_id":  "e1",
		"created_at": 1.5,
		"kind":       "player",
	}

	onWire, err := adapter.ToServer(record, "entity")
	require.NoError(t, err)
	assert.Equal(t, "e1", onWire["id"])
	assert.InDelta(t, float64(1500000000), toFloat(t, onWire["created"]), 1)
	assert.Equal(t, "player", onWire["kind"])

	inbound := map[string]any{"id": "e1", "created": float64(2000000000)}
	canonical, err := adapter.FromServer(inbound, "entity")
	require.NoError(t, err)
	assert.Equal(t, "e1", canonical["entity_id"])
	assert.InDelta(t, 2.0, toFloat(t, canonical["created_at"]), 0.001)
}

// TestCSharpCasing is scenario S3.
func TestCSharpCasing(t *testing.T) {
	adapter := newCSharpAdapter()

	onWire, err := adapter.ToServer(map[string]any{"x": 1.5, "y": -2.0}, "vector2")
	require.NoError(t, err)
	assert.Equal(t, 1.5, onWire["X"])
	assert.Equal(t, -2.0, onWire["Y"])

	canonical, err := adapter.FromServer(map[string]any{"X": 0.0, "Y": 0.0}, "vector2")
	require.NoError(t, err)
	assert.Equal(t, 0.0, canonical["x"])
	assert.Equal(t, 0.0, canonical["y"])
}

func TestRegistryFallback(t *testing.T) {
	reg := NewDefaultRegistry()

	a, err := reg.Get(model.LanguageRust, "1.2")
	require.NoError(t, err)
	assert.NotNil(t, a)

	// Unregistered version falls back to the same language's 1.2 adapter.
	fallback, err := reg.Get(model.LanguageRust, "1.1")
	require.NoError(t, err)
	assert.NotNil(t, fallback)

	_, err = reg.Get(model.Language("unknown"), "9.9")
	assert.Error(t, err)
}

func toFloat(t *testing.T, v any) float64 {
	t.Helper()
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		t.Fatalf("not a number: %v (%T)", v, v)
		return 0
	}
}

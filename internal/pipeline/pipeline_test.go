package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattsp1290/blackholio-go-client/internal/protocol"
	"github.com/mattsp1290/blackholio-go-client/model"
)

type entityDTO struct {
	ID       string        `json:"id"`
	Position model.Vector2 `json:"position"`
	Velocity model.Vector2 `json:"velocity"`
	Mass     float64       `json:"mass"`
	Radius   float64       `json:"radius"`
	Kind     string        `json:"kind"`
	Active   bool          `json:"active"`
}

func newTestPipeline(t *testing.T, lang model.Language) *Pipeline {
	t.Helper()
	cfg := Config{
		ServerLanguage:      lang,
		SerializationFormat: FormatJSON,
		ProtocolVersion:     model.DefaultProtocolVersion,
		Validation:          true,
		Adaptation:          true,
	}
	p, err := New(cfg, protocol.NewDefaultRegistry())
	require.NoError(t, err)
	return p
}

// TestPipelineRoundTrip is Testable Property 2.
func TestPipelineRoundTrip(t *testing.T) {
	for _, lang := range []model.Language{model.LanguageRust, model.LanguagePython, model.LanguageCSharp, model.LanguageGo} {
		t.Run(string(lang), func(t *testing.T) {
			p := newTestPipeline(t, lang)
			ctx := context.Background()

			original := entityDTO{
				ID:       "e1",
				Position: model.Vector2{X: 1.5, Y: -2.0},
				Velocity: model.Vector2{X: 0, Y: 0},
				Mass:     10,
				Radius:   2,
				Kind:     "player",
				Active:   true,
			}

			data, err := p.ProcessOutbound(ctx, "entity", original)
			require.NoError(t, err)

			var out entityDTO
			require.NoError(t, p.ProcessInbound(ctx, "entity", data, &out))

			assert.Equal(t, original.ID, out.ID)
			assert.Equal(t, original.Mass, out.Mass)
			assert.Equal(t, original.Kind, out.Kind)
			assert.Equal(t, original.Position, out.Position)
		})
	}
}

func TestPipelineListEnvelope(t *testing.T) {
	p := newTestPipeline(t, model.LanguagePython)
	ctx := context.Background()

	entities := []entityDTO{
		{ID: "e1", Kind: "player", Active: true},
		{ID: "e2", Kind: "food", Active: true},
	}

	data, err := p.ProcessOutbound(ctx, "entity", entities)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"items"`)
	assert.Contains(t, string(data), `"count":2`)

	var out []entityDTO
	require.NoError(t, p.ProcessInbound(ctx, "entity", data, &out))
	assert.Len(t, out, 2)
}

func TestPipelineMetricsAccumulate(t *testing.T) {
	p := newTestPipeline(t, model.LanguageRust)
	ctx := context.Background()

	_, err := p.ProcessOutbound(ctx, "entity", entityDTO{ID: "e1", Kind: "player", Active: true})
	require.NoError(t, err)

	snap := p.Metrics()
	assert.EqualValues(t, 1, snap["operations"])
	assert.EqualValues(t, 1, snap["successes"])
}

func TestPipelineValidationFailureIsTracked(t *testing.T) {
	p := newTestPipeline(t, model.LanguageRust)
	ctx := context.Background()

	_, err := p.ProcessOutbound(ctx, "entity", entityDTO{ID: "e1", Kind: "not-a-real-kind", Active: true})
	require.Error(t, err)

	snap := p.Metrics()
	assert.EqualValues(t, 1, snap["failures"])
	kinds, _ := snap["error_kinds"].(map[string]uint64)
	assert.NotZero(t, kinds[string(model.KindDataValidation)])
}

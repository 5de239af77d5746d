// Package pipeline composes the wire codec, protocol adapters, and schema
// validator into the two operations callers actually need: turning a typed
// record into bytes ready for the wire, and turning inbound bytes back into
// a typed record. It records per-call, per-stage metrics throughout.
package pipeline

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/mattsp1290/blackholio-go-client/internal/protocol"
	"github.com/mattsp1290/blackholio-go-client/internal/schema"
	"github.com/mattsp1290/blackholio-go-client/model"
)

// batchEnvelope is the wire shape a list input is wrapped in, per spec.md
// §4.4 ("Lists produce a {items, count, type, timestamp} envelope").
type batchEnvelope struct {
	Items     []json.RawMessage `json:"items"`
	Count     int               `json:"count"`
	Type      string            `json:"type"`
	Timestamp float64           `json:"timestamp"`
}

// nowSeconds is a seam so tests can freeze the envelope timestamp; defaults
// to wall-clock time.
var nowSeconds = func() float64 { return float64(time.Now().UnixNano()) / 1e9 }

// Pipeline composes one Config with a protocol Registry.
type Pipeline struct {
	cfg     Config
	adapter *protocol.Registry
	metrics *Metrics
}

// New builds a Pipeline, validating cfg first.
func New(cfg Config, adapters *protocol.Registry) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg, adapter: adapters, metrics: newMetrics()}, nil
}

// Metrics returns the pipeline's accumulated metrics as a plain map.
func (p *Pipeline) Metrics() map[string]any {
	return p.metrics.Snapshot()
}

// ProcessOutbound converts v (a single record, or a slice of records) into
// bytes ready to hand to the wire codec: convert to a generic map, validate,
// adapt to the configured server language, then serialize. typeName selects
// the schema and adapter field table ("entity", "player", "circle",
// "vector2"); the canonical shape has no runtime type tag of its own, so Go
// requires it be named explicitly rather than inferred the way a
// dynamically-typed client would.
func (p *Pipeline) ProcessOutbound(ctx context.Context, typeName string, v any) ([]byte, error) {
	start := time.Now()
	stages := make(map[string]time.Duration, 4)

	fail := func(kind model.Kind, op string, err error) ([]byte, error) {
		p.metrics.recordFailure(time.Since(start), stages, string(kind))
		return nil, model.NewError(kind, op, err)
	}

	if err := ctx.Err(); err != nil {
		return fail(model.KindTimeout, "pipeline.ProcessOutbound", err)
	}

	isList := reflect.ValueOf(v).Kind() == reflect.Slice

	t0 := time.Now()
	records, err := toRecords(v, isList)
	stages[stageConvert] = time.Since(t0)
	if err != nil {
		return fail(model.KindDataValidation, "pipeline.convert", err)
	}

	if p.cfg.Validation {
		t0 = time.Now()
		if s, ok := schema.CoreSchemas[typeName]; ok {
			for i, rec := range records {
				if verr := schema.Validate(s, rec, fmt.Sprintf("%s[%d]", typeName, i)); verr != nil {
					stages[stageValidate] = time.Since(t0)
					return fail(model.KindDataValidation, "pipeline.validate", verr)
				}
			}
		}
		stages[stageValidate] = time.Since(t0)
	}

	if p.cfg.Adaptation {
		t0 = time.Now()
		adapter, aerr := p.adapter.Get(p.cfg.ServerLanguage, p.cfg.ProtocolVersion)
		if aerr != nil {
			stages[stageAdapt] = time.Since(t0)
			return fail(model.KindProtocolError, "pipeline.adapt", aerr)
		}
		for i, rec := range records {
			adapted, aerr := adapter.ToServer(rec, typeName)
			if aerr != nil {
				stages[stageAdapt] = time.Since(t0)
				return fail(model.KindProtocolError, "pipeline.adapt", aerr)
			}
			records[i] = adapted
		}
		stages[stageAdapt] = time.Since(t0)
	}

	t0 = time.Now()
	var payload any = records[0]
	if isList {
		items := make([]json.RawMessage, len(records))
		for i, rec := range records {
			raw, merr := json.Marshal(rec)
			if merr != nil {
				stages[stageSerialize] = time.Since(t0)
				return fail(model.KindDataValidation, "pipeline.serialize", merr)
			}
			items[i] = raw
		}
		payload = batchEnvelope{Items: items, Count: len(items), Type: typeName, Timestamp: nowSeconds()}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		stages[stageSerialize] = time.Since(t0)
		return fail(model.KindDataValidation, "pipeline.serialize", err)
	}
	if p.cfg.Compression {
		compressed, cerr := gzipCompress(data)
		if cerr != nil {
			stages[stageSerialize] = time.Since(t0)
			return fail(model.KindDataValidation, "pipeline.serialize", cerr)
		}
		data = compressed
	}
	stages[stageSerialize] = time.Since(t0)

	p.metrics.recordSuccess(time.Since(start), stages, len(data), len(records))
	return data, nil
}

// ProcessInbound reverses ProcessOutbound: deserialize, detect batch
// envelope vs single object, adapt back to canonical field names, validate,
// and unmarshal into target (a pointer to the caller's typed destination).
func (p *Pipeline) ProcessInbound(ctx context.Context, typeName string, data []byte, target any) error {
	start := time.Now()
	stages := make(map[string]time.Duration, 4)

	fail := func(kind model.Kind, op string, err error) error {
		p.metrics.recordFailure(time.Since(start), stages, string(kind))
		return model.NewError(kind, op, err)
	}

	if err := ctx.Err(); err != nil {
		return fail(model.KindTimeout, "pipeline.ProcessInbound", err)
	}

	t0 := time.Now()
	if p.cfg.Compression {
		decompressed, derr := gzipDecompress(data)
		if derr != nil {
			return fail(model.KindDataValidation, "pipeline.deserialize", derr)
		}
		data = decompressed
	}

	records, err := deserializeRecords(data)
	stages[stageConvert] = time.Since(t0)
	if err != nil {
		return fail(model.KindDataValidation, "pipeline.deserialize", err)
	}

	if p.cfg.Adaptation {
		t0 = time.Now()
		adapter, aerr := p.adapter.Get(p.cfg.ServerLanguage, p.cfg.ProtocolVersion)
		if aerr != nil {
			stages[stageAdapt] = time.Since(t0)
			return fail(model.KindProtocolError, "pipeline.adapt", aerr)
		}
		for i, rec := range records {
			adapted, aerr := adapter.FromServer(rec, typeName)
			if aerr != nil {
				stages[stageAdapt] = time.Since(t0)
				return fail(model.KindProtocolError, "pipeline.adapt", aerr)
			}
			records[i] = adapted
		}
		stages[stageAdapt] = time.Since(t0)
	}

	if p.cfg.Validation {
		t0 = time.Now()
		if s, ok := schema.CoreSchemas[typeName]; ok {
			for i, rec := range records {
				if verr := schema.Validate(s, rec, fmt.Sprintf("%s[%d]", typeName, i)); verr != nil {
					stages[stageValidate] = time.Since(t0)
					return fail(model.KindDataValidation, "pipeline.validate", verr)
				}
			}
		}
		stages[stageValidate] = time.Since(t0)
	}

	t0 = time.Now()
	if err := convertInto(records, target); err != nil {
		stages[stageSerialize] = time.Since(t0)
		return fail(model.KindDataValidation, "pipeline.convert", err)
	}
	stages[stageSerialize] = time.Since(t0)

	p.metrics.recordSuccess(time.Since(start), stages, len(data), len(records))
	return nil
}

// toRecords converts v (a single struct/map or a slice of them) to
// []map[string]any via a JSON marshal/unmarshal round trip — the Go
// equivalent of the source's duck-typed "convert to dict" stage.
func toRecords(v any, isList bool) ([]map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("convert: %w", err)
	}
	if !isList {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("convert: %w", err)
		}
		return []map[string]any{m}, nil
	}
	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("convert: %w", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("convert: empty list input")
	}
	return list, nil
}

// deserializeRecords detects a batch envelope (presence of an "items" key)
// vs a bare single object, per spec.md §4.4 "detect envelope vs single".
func deserializeRecords(data []byte) ([]map[string]any, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if itemsRaw, ok := probe["items"]; ok {
		var items []map[string]any
		if err := json.Unmarshal(itemsRaw, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	var single map[string]any
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []map[string]any{single}, nil
}

// convertInto unmarshals records into target: a single record into a
// pointer to a struct, or multiple records into a pointer to a slice.
func convertInto(records []map[string]any, target any) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr {
		return fmt.Errorf("target must be a pointer, got %T", target)
	}
	if rv.Elem().Kind() == reflect.Slice {
		return json.Unmarshal(raw, target)
	}
	if len(records) != 1 {
		return fmt.Errorf("expected exactly one record for a non-slice target, got %d", len(records))
	}
	single, err := json.Marshal(records[0])
	if err != nil {
		return err
	}
	return json.Unmarshal(single, target)
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

package pipeline

import (
	"fmt"
	"time"

	"github.com/mattsp1290/blackholio-go-client/model"
)

// SerializationFormat names the on-wire byte encoding. Only json is
// implemented; binary is a recognized but unsupported configuration value,
// matching spec.md's "all recognized" phrasing — a caller that requests it
// gets an explicit ServerConfiguration error rather than a silent fallback.
type SerializationFormat string

const (
	FormatJSON   SerializationFormat = "json"
	FormatBinary SerializationFormat = "binary"
)

// Config mirrors the data pipeline's recognized configuration fields.
type Config struct {
	ServerLanguage      model.Language
	SerializationFormat SerializationFormat
	ProtocolVersion     string
	Validation          bool
	Adaptation          bool
	Compression         bool
	BatchSize           int
	Timeout             time.Duration
	Retries             int
	Async               bool
}

// Validate enforces the configuration is usable before a Pipeline is built
// from it.
func (c Config) Validate() error {
	if c.SerializationFormat != FormatJSON && c.SerializationFormat != FormatBinary {
		return fmt.Errorf("pipeline: unrecognized serialization_format %q", c.SerializationFormat)
	}
	if c.SerializationFormat == FormatBinary {
		return model.NewError(model.KindServerConfiguration, "pipeline.serialization_format",
			fmt.Errorf("serialization_format \"binary\" is recognized but not implemented"))
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("pipeline: batch_size must be >= 0, got %d", c.BatchSize)
	}
	if c.Retries < 0 {
		return fmt.Errorf("pipeline: retries must be >= 0, got %d", c.Retries)
	}
	return nil
}

// Package blackholio is the public entry point for the client library: it
// composes the pool manager, pipeline, and credential store described in
// SPEC_FULL.md into the single object the ML training agent and the
// rendering UI both embed.
package blackholio

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mattsp1290/blackholio-go-client/internal/config"
	"github.com/mattsp1290/blackholio-go-client/internal/credentials"
	"github.com/mattsp1290/blackholio-go-client/internal/pipeline"
	"github.com/mattsp1290/blackholio-go-client/internal/protocol"
	"github.com/mattsp1290/blackholio-go-client/model"
	"github.com/mattsp1290/blackholio-go-client/pool"
)

// Config configures a Client's pool and pipeline behavior for one
// SpacetimeDB endpoint.
type Config struct {
	Endpoint          model.Endpoint
	Pool              pool.Config
	Pipeline          pipeline.Config
	CredentialPath    string // empty uses credentials.DefaultPath()
	AcquireTimeout    time.Duration
	RequestTimeout    time.Duration
}

// Client is the composed root object: a pool manager keyed by endpoint, a
// data pipeline for one server-language dialect, and the on-disk
// credential store they share.
type Client struct {
	cfg      Config
	manager  *pool.Manager
	pipeline *pipeline.Pipeline
	store    *credentials.Store
}

// New builds a Client. It does not connect; the first CallReducer or
// Subscribe call acquires a session lazily and opens it.
func New(cfg Config) (*Client, error) {
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 10 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.Pipeline.ServerLanguage == "" {
		cfg.Pipeline.ServerLanguage = cfg.Endpoint.Language
	}

	credPath := cfg.CredentialPath
	if credPath == "" {
		p, err := credentials.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("blackholio: resolve credential path: %w", err)
		}
		credPath = p
	}
	store, err := credentials.NewStore(credPath)
	if err != nil {
		return nil, err
	}

	pl, err := pipeline.New(cfg.Pipeline, protocol.NewDefaultRegistry())
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:      cfg,
		manager:  pool.NewManager(cfg.Pool, store),
		pipeline: pl,
		store:    store,
	}, nil
}

// NewFromFile builds a Client the way the teacher's own agent builds its
// configuration: ambient pool/pipeline tuning loaded from an optional
// local YAML file (falling back to defaults and BLACKHOLIO_* env overrides
// if absent), combined with the endpoint the caller already resolved
// out-of-band. The file's session section is loaded but not applied to
// the sessions the pool opens. configPath may be empty to use
// config.DefaultConfigPath.
func NewFromFile(endpoint model.Endpoint, configPath, credentialPath string) (*Client, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	return New(Config{
		Endpoint:       endpoint,
		CredentialPath: credentialPath,
		AcquireTimeout: settings.Pool.RequestTimeout,
		RequestTimeout: settings.Pool.RequestTimeout,
		Pool: pool.Config{
			MinConns:            settings.Pool.MinConns,
			MaxConns:            settings.Pool.MaxConns,
			MaxIdle:             settings.Pool.MaxIdle,
			HealthCheckInterval: settings.Pool.HealthCheckInterval,
			ConnTimeout:         settings.Pool.ConnTimeout,
			RequestTimeout:      settings.Pool.RequestTimeout,
			Retries:             settings.Pool.Retries,
			BackoffFactor:       settings.Pool.BackoffFactor,
			MaxDelay:            settings.Pool.MaxDelay,
			BreakerThreshold:    settings.Pool.BreakerThreshold,
			BreakerTimeout:      settings.Pool.BreakerTimeout,
			HealthChecksOn:      settings.Pool.HealthChecksOn,
			MetricsOn:           settings.Pool.MetricsOn,
		},
		Pipeline: pipeline.Config{
			ServerLanguage:      endpoint.Language,
			SerializationFormat: pipeline.FormatJSON,
			ProtocolVersion:     endpoint.ProtocolVersion,
			Validation:          settings.Pipeline.Validation,
			Adaptation:          settings.Pipeline.Adaptation,
			Compression:         settings.Pipeline.Compression,
			BatchSize:           settings.Pipeline.BatchSize,
			Timeout:             settings.Pipeline.Timeout(),
			Retries:             settings.Pipeline.Retries,
		},
	})
}

// CallReducer invokes reducer with args (already in canonical client-model
// shape; the pipeline adapts it to the server dialect before it ever hits
// the wire) and returns the decoded response body.
func (c *Client) CallReducer(ctx context.Context, reducer string, args any) (json.RawMessage, error) {
	encoded, err := c.pipeline.ProcessOutbound(ctx, reducer, args)
	if err != nil {
		return nil, err
	}

	handle, err := c.manager.GetSession(ctx, c.cfg.Endpoint, c.cfg.AcquireTimeout)
	if err != nil {
		return nil, err
	}

	resp, sendErr := handle.Session().SendRequest(ctx, reducer, json.RawMessage(encoded), c.cfg.RequestTimeout)
	handle.Release(sendErr)
	return resp, sendErr
}

// Subscribe acquires a session for the endpoint and returns the pooled
// handle so the caller can read its event stream; the session's
// post-connect Subscribe frame already covers the default core table set
// (entity, player, circle, food, config) per spec.md §4.5 step 5. The
// caller owns the handle for the lifetime of its subscription and must
// call Release when done so the session returns to the pool.
func (c *Client) Subscribe(ctx context.Context) (*pool.PooledSession, error) {
	return c.manager.GetSession(ctx, c.cfg.Endpoint, c.cfg.AcquireTimeout)
}

// Metrics returns the aggregate pool metrics and the pipeline's stage
// timing/error-kind breakdown, per spec.md §4.8's aggregated-metrics
// contract.
func (c *Client) Metrics() (pool.AggregateStats, map[string]any) {
	return c.manager.AllStats(), c.pipeline.Metrics()
}

// Close drains and shuts down every pool the client has opened.
func (c *Client) Close(ctx context.Context) error {
	return c.manager.Shutdown(ctx)
}

package session

import (
	"fmt"
	"time"

	"github.com/mattsp1290/blackholio-go-client/model"
)

// defaultCoreTables is the fixed core table set subscribed to post-connect,
// per spec.md §4.5 step 5.
var defaultCoreTables = []string{"entity", "player", "circle", "food", "config"}

// Config configures one Session's connection target and tunables.
type Config struct {
	Endpoint model.Endpoint

	// CoreTables overrides the fixed core-table subscription list. Left
	// unset, it defaults to the five tables named in spec.md. Open
	// Question (b) resolves in favor of making this caller-supplied,
	// since every sibling config (pipeline.Config, pool.Config) already is.
	CoreTables []string

	ConnectionTimeout    time.Duration
	HeartbeatInterval    time.Duration
	BaseReconnectDelay   time.Duration
	MaxReconnectDelay    time.Duration
	MaxReconnectAttempts int
}

// WithDefaults returns a copy of cfg with zero-valued tunables filled in.
func (c Config) WithDefaults() Config {
	if len(c.CoreTables) == 0 {
		c.CoreTables = defaultCoreTables
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = 30 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.BaseReconnectDelay <= 0 {
		c.BaseReconnectDelay = 1 * time.Second
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = 60 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	c.Endpoint = c.Endpoint.WithDefaults()
	return c
}

// Validate enforces Config invariants beyond what Endpoint.Validate covers.
func (c Config) Validate() error {
	if err := c.Endpoint.Validate(); err != nil {
		return err
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("session: max_reconnect_attempts must be >= 0, got %d", c.MaxReconnectAttempts)
	}
	return nil
}

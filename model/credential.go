package model

import "time"

// CredentialTTL is how long a credential remains valid after IssuedAt.
const CredentialTTL = 24 * time.Hour

// Credential is one identity/token pair issued by a SpacetimeDB server for
// a given (host, database) pair, persisted on disk between process runs.
type Credential struct {
	Identity     string    `json:"identity"`
	Token        string    `json:"token"`
	Host         string    `json:"host"`
	DatabaseName string    `json:"database"`
	IssuedAt     time.Time `json:"-"`

	// Timestamp is IssuedAt encoded as epoch seconds, the wire/on-disk shape
	// named in the specification's credential store file format.
	Timestamp int64 `json:"timestamp"`
}

// Key returns the "<host>:<database>" credential-store lookup key.
func (c Credential) Key() string {
	return c.Host + ":" + c.DatabaseName
}

// Expired reports whether this credential is older than CredentialTTL.
func (c Credential) Expired() bool {
	issued := c.IssuedAt
	if issued.IsZero() {
		issued = time.Unix(c.Timestamp, 0)
	}
	return time.Since(issued) > CredentialTTL
}

package model

import "fmt"

// Language identifies which SpacetimeDB server-language dialect a session
// or pool talks to. The wire format, field casing, and timestamp encoding
// all vary by Language; see the protocol package.
type Language string

const (
	LanguageRust   Language = "rust"
	LanguagePython Language = "python"
	LanguageCSharp Language = "csharp"
	LanguageGo     Language = "go"
)

func (l Language) valid() bool {
	switch l {
	case LanguageRust, LanguagePython, LanguageCSharp, LanguageGo:
		return true
	default:
		return false
	}
}

// DefaultProtocolVersion is the protocol version an Endpoint gets when none
// is set and the version the adapter registry falls back to. It is not the
// WebSocket subprotocol; see Subprotocol.
const DefaultProtocolVersion = "1.2"

// Subprotocol is the single WebSocket subprotocol this client offers.
const Subprotocol = "v1.json.spacetimedb"

// Endpoint describes one SpacetimeDB server connection target. It is
// immutable after a Session is constructed from it.
type Endpoint struct {
	Language        Language
	Host            string
	Port            int
	DatabaseName    string
	ProtocolVersion string
	UseTLS          bool
}

// Validate enforces the Endpoint invariants named in the specification:
// a recognized language and a port in the valid TCP range.
func (e Endpoint) Validate() error {
	if !e.Language.valid() {
		return NewError(KindServerConfiguration, "endpoint.language",
			fmt.Errorf("unrecognized server language %q", e.Language))
	}
	if e.Host == "" {
		return NewError(KindServerConfiguration, "endpoint.host",
			fmt.Errorf("host must not be empty"))
	}
	if e.Port < 1 || e.Port > 65535 {
		return NewError(KindServerConfiguration, "endpoint.port",
			fmt.Errorf("port %d out of range [1, 65535]", e.Port))
	}
	if e.DatabaseName == "" {
		return NewError(KindServerConfiguration, "endpoint.database_name",
			fmt.Errorf("database_name must not be empty"))
	}
	return nil
}

// WithDefaults returns a copy of the endpoint with ProtocolVersion filled in
// if it was left blank.
func (e Endpoint) WithDefaults() Endpoint {
	if e.ProtocolVersion == "" {
		e.ProtocolVersion = DefaultProtocolVersion
	}
	return e
}

// URL builds the WebSocket URL this endpoint dials, per the external
// interface contract: ws[s]://<host>[:<port>]/v1/database/<database_name>/subscribe
func (e Endpoint) URL() string {
	scheme := "ws"
	if e.UseTLS {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d/v1/database/%s/subscribe", scheme, e.Host, e.Port, e.DatabaseName)
}

// CredentialKey returns the "<host>:<database>" key used to index the
// on-disk credential store for this endpoint.
func (e Endpoint) CredentialKey() string {
	return e.Host + ":" + e.DatabaseName
}

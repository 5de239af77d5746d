package protocol

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/mattsp1290/blackholio-go-client/model"
)

// fallbackVersion is the protocol version an unrecognized version falls
// back to, within the same language, per spec Design Note "Adapter
// registry ... versions other than 1.2 may fall back to the 1.2 adapter".
const fallbackVersion = model.DefaultProtocolVersion

type registryKey struct {
	language model.Language
	version  string
}

// Registry indexes Adapters by (language, protocol_version). It is an
// explicit, caller-constructed registry rather than a global singleton,
// though NewDefaultRegistry is provided as the one permitted process-wide
// convenience instance.
type Registry struct {
	mu       sync.RWMutex
	adapters map[registryKey]Adapter
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[registryKey]Adapter)}
}

// NewDefaultRegistry builds a registry pre-populated with the four
// recognized server-language adapters at protocol version 1.2.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(model.LanguageRust, fallbackVersion, newRustAdapter())
	r.Register(model.LanguagePython, fallbackVersion, newPythonAdapter())
	r.Register(model.LanguageCSharp, fallbackVersion, newCSharpAdapter())
	r.Register(model.LanguageGo, fallbackVersion, newGoAdapter())
	return r
}

// Register installs an adapter for the given (language, version) pair.
func (r *Registry) Register(language model.Language, version string, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[registryKey{language, version}] = adapter
}

// Get resolves an adapter for (language, version), falling back to version
// "1.2" of the same language when the exact version is not registered.
func (r *Registry) Get(language model.Language, version string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if a, ok := r.adapters[registryKey{language, version}]; ok {
		return a, nil
	}
	if version != fallbackVersion {
		if a, ok := r.adapters[registryKey{language, fallbackVersion}]; ok {
			slog.Debug("protocol: adapter version fallback", "language", language, "requested", version, "used", fallbackVersion)
			return a, nil
		}
	}
	return nil, fmt.Errorf("protocol: no adapter registered for %s/%s (nor fallback %s)", language, version, fallbackVersion)
}

// Package engine defines the opaque message handler handle that the wallet
// binding talks to, and the registry of transports able to open one.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

const (
	TransportLocal  = "local"
	TransportRemote = "remote"
)

var (
	ErrHandleClosed     = errors.New("message handler is closed")
	ErrUnknownTransport = errors.New("unknown engine transport")
	ErrCallbackRequired = errors.New("listener callback is required")
)

// Callback receives either an error or a serialized result.
type Callback func(err error, result string)

// Handle is the engine state behind a message handler.
type Handle interface {
	// SendMessage forwards one serialized envelope and returns the serialized response.
	SendMessage(ctx context.Context, message string) (string, error)
	// Listen registers callback for the given event types. An empty list selects all events.
	Listen(ctx context.Context, eventTypes []string, callback Callback) error
	// Close releases the handle. It is safe to call more than once.
	Close() error
}

// Options is the construction bundle handed to a transport.
type Options struct {
	StoragePath   string `json:"storagePath,omitempty"`
	ClientOptions string `json:"clientOptions,omitempty"`
	SecretManager string `json:"secretManager,omitempty"`
	// Endpoint addresses an out-of-process engine; in-process transports ignore it.
	Endpoint string `json:"-"`
	Token    string `json:"-"`
}

// Factory opens a handle for one transport.
type Factory func(ctx context.Context, opts Options) (Handle, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a transport available to Open. Registering a name twice panics.
func Register(name string, factory Factory) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || factory == nil {
		panic("engine: Register requires a name and a factory")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("engine: Register called twice for transport " + name)
	}
	registry[name] = factory
}

// Transports lists registered transport names.
func Transports() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Open constructs a handle with the named transport.
func Open(ctx context.Context, transport string, opts Options) (Handle, error) {
	name := strings.ToLower(strings.TrimSpace(transport))
	if name == "" {
		name = TransportLocal
	}
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransport, name)
	}
	return factory(ctx, opts)
}

// MatchesEventType reports whether eventType is selected by filter.
func MatchesEventType(filter []string, eventType string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, candidate := range filter {
		if candidate == eventType {
			return true
		}
	}
	return false
}

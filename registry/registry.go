// Package registry tracks live conversation sessions in etcd so that
// operational tooling can see which sessions exist, on which node they run,
// and when they started. Entries are lease-backed: a crashed process stops
// renewing and its sessions disappear on their own.
package registry

import (
	"context"
	"time"
)

// SessionInfo describes one live conversation session.
type SessionInfo struct {
	// SessionID uniquely identifies the session (UUID).
	SessionID string `json:"session_id"`

	// User is the owning user's identifier.
	User string `json:"user,omitempty"`

	// Node is the host running the session, "host:port" or a plain
	// hostname.
	Node string `json:"node,omitempty"`

	// Metadata carries custom key-value pairs (model name, channel).
	Metadata map[string]string `json:"metadata,omitempty"`

	// StartedAt is when the session opened.
	StartedAt time.Time `json:"started_at"`
}

// Registry is the session registration and discovery interface.
// Implementations must be safe for concurrent use.
type Registry interface {
	// Register adds a session. The entry is attached to a lease with the
	// configured TTL and renewed in the background; re-registering the
	// same SessionID updates the entry rather than duplicating it.
	Register(ctx context.Context, info SessionInfo) error

	// Deregister removes a session. Unknown sessions are a no-op.
	Deregister(ctx context.Context, sessionID string) error

	// List returns every live session.
	List(ctx context.Context) ([]SessionInfo, error)

	// Watch emits the full session list on every change. The initial
	// state is sent immediately; the channel closes when the context is
	// canceled or the registry is closed.
	Watch(ctx context.Context) (<-chan []SessionInfo, error)

	// Close stops background lease renewal and releases the connection.
	Close() error
}

// Config holds registry connection configuration.
type Config struct {
	// Endpoints is the list of etcd endpoints, e.g. ["host1:2379"].
	Endpoints []string `json:"endpoints"`

	// Namespace is the etcd key prefix. Sessions are stored under
	// /{namespace}/sessions/{session-id}. Default: "concierge".
	Namespace string `json:"namespace"`

	// TTL is the lease time-to-live in seconds. A session must renew
	// within this interval or be removed. Default: 30.
	TTL int `json:"ttl"`

	// TLS holds optional TLS configuration for secure etcd access.
	TLS *TLSConfig `json:"tls"`
}

// TLSConfig holds mutual-TLS certificate paths for etcd access.
type TLSConfig struct {
	// Enabled determines whether TLS is active.
	Enabled bool `json:"enabled"`

	// CertFile is the client certificate (PEM). Required when enabled.
	CertFile string `json:"cert_file"`

	// KeyFile is the client private key (PEM). Required when enabled.
	KeyFile string `json:"key_file"`

	// CAFile verifies the etcd server certificate. Required when enabled.
	CAFile string `json:"ca_file"`
}

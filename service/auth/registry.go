// Package auth implements pre-shared-key authentication between node
// services. Every RPC caller asserts a service identity and presents the
// secret configured for it; the registry is loaded once at startup and is
// read-only afterward.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ledgercore/ledgerd/service/ledger"
)

// ServiceEntry describes one configured peer service: where it lives and
// the secret it authenticates with.
type ServiceEntry struct {
	Address   string `json:"address"`
	Port      int    `json:"port"`
	SecretKey string `json:"secret_key"`
}

// Registry maps service identities to their configured entries.
type Registry struct {
	services map[string]ServiceEntry
}

// NewRegistry builds a registry from an identity -> entry map.
func NewRegistry(services map[string]ServiceEntry) (*Registry, error) {
	for identity, entry := range services {
		if identity == "" {
			return nil, fmt.Errorf("services registry contains an empty identity")
		}
		if entry.SecretKey == "" {
			return nil, fmt.Errorf("service %q has an empty secret_key", identity)
		}
	}
	// Copy so callers cannot mutate the registry after construction.
	owned := make(map[string]ServiceEntry, len(services))
	for identity, entry := range services {
		owned[identity] = entry
	}
	return &Registry{services: owned}, nil
}

// ParseRegistry decodes a registry from its JSON document form:
//
//	{"wallet": {"address": "10.0.0.5", "port": 9293, "secret_key": "..."}}
func ParseRegistry(data []byte) (*Registry, error) {
	var services map[string]ServiceEntry
	if err := json.Unmarshal(data, &services); err != nil {
		return nil, fmt.Errorf("failed to decode services registry: %w", err)
	}
	return NewRegistry(services)
}

// LoadRegistryFile reads and parses a registry JSON file.
func LoadRegistryFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read services registry %s: %w", path, err)
	}
	return ParseRegistry(data)
}

// Authenticate checks the caller-asserted identity and secret against the
// configured entry. Unknown identities and mismatched secrets both fail with
// ErrUnauthorized; the comparison is constant time so the two cases are not
// distinguishable by timing.
func (r *Registry) Authenticate(identity, secret string) error {
	entry, ok := r.services[identity]
	if !ok {
		// Burn a comparison anyway to keep unknown identities on the same
		// timing path as known ones.
		subtle.ConstantTimeCompare([]byte(secret), []byte(secret))
		return fmt.Errorf("%w: unknown service identity %q", ledger.ErrUnauthorized, identity)
	}
	if subtle.ConstantTimeCompare([]byte(entry.SecretKey), []byte(secret)) != 1 {
		return fmt.Errorf("%w: secret mismatch for service %q", ledger.ErrUnauthorized, identity)
	}
	return nil
}

// Lookup returns the configured entry for an identity. Used for outbound
// calls to collaborator services.
func (r *Registry) Lookup(identity string) (ServiceEntry, bool) {
	entry, ok := r.services[identity]
	return entry, ok
}

// Identities returns the configured service identities.
func (r *Registry) Identities() []string {
	out := make([]string, 0, len(r.services))
	for identity := range r.services {
		out = append(out, identity)
	}
	return out
}

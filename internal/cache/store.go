package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Namespaces keep population state separate from holder payloads
const (
	NamespaceState   = "state"
	NamespaceHolders = "holders"
	NamespaceBook    = "ownership"
)

// Store is a key-value cache with TTL. It holds both small state objects
// and larger serialized holder-list payloads. Values are JSON; callers must
// serialize integers wider than 53 bits as decimal strings.
type Store interface {
	// Get unmarshals the value for a key into out, reporting presence
	Get(ctx context.Context, namespace, key string, out interface{}) (bool, error)

	// Set stores a value with a TTL (0 = no expiry)
	Set(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration) error

	// Delete removes a key
	Delete(ctx context.Context, namespace, key string) error

	// Close releases underlying resources
	Close() error
}

func storageKey(namespace, key string) string {
	return fmt.Sprintf("holders-indexer:%s:%s", namespace, key)
}

func marshalValue(value interface{}) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal cache value: %w", err)
	}
	return data, nil
}

func unmarshalValue(data []byte, out interface{}) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal cache value: %w", err)
	}
	return nil
}

// Package storage defines the durable key-value contract behind conversation persistence.
package storage

import "context"

// KV is a flat keyed blob store. Get reports absence through the bool rather
// than an error; deleting a missing key is not an error.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

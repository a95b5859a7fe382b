// Package configstore defines the opaque put/get channel spec.md §6.3
// uses for connectivity masks and lock-graph gossip. It is intentionally
// narrow: the cluster's real consensus-backed key/value store is outside
// this core's scope, so components depend only on the Store interface.
package configstore

import "context"

// Store is a small shared key/value namespace. Keys used by this core
// follow spec.md §6.3: "node-mask-<i>", "lock-graph-<i>".
type Store interface {
	// Put writes value under key, replacing any prior value.
	Put(ctx context.Context, key string, value []byte) error

	// Get returns the value under key and ok=true, or ok=false if key
	// has never been written.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Keys returns every key currently stored whose name starts with
	// prefix. The clique computation and dump-lock-graph do not use it:
	// they read each node's key with Get.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Package cache stores aggregated tournament results keyed by filter signature.
//
// Entries live for a fixed TTL and are evicted lazily on read. An expired entry is
// handed back once with StatusExpired so callers can fall back on it when every
// source fails. A Persister can be attached to keep entries across restarts.
package cache

// Package cache provides a badger-backed embedding cache.
//
// The cache implements the ai.Cache interface. Entries are keyed by a BLAKE2b
// hash of (provider, text), serialized in the MUS binary format, and expire
// after a configurable TTL. Repeated embeds of identical content served from
// the cache skip the provider call entirely.
package cache

// Package memory provides a map-backed storage.Store for tests and local
// experiments. It mirrors the behavior contract of the postgres backend,
// including stale-write detection and atomic chunk replacement.
package memory

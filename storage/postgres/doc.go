// Package postgres implements storage.Store on PostgreSQL with pgvector.
//
// Similarity search runs inside the database over the cosine distance
// operator, one embedding space per provider. The schema is applied with
// EnsureSchema and is safe to re-run.
package postgres

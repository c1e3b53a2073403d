package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lexiqa/ragcore/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	// The context passed to fn may contain transaction state.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// DocumentRepository provides operations for managing corpus documents.
type DocumentRepository interface {
	Repository

	// AddDocument adds a document to storage.
	// For documents with ID=0, generates a content-based ID.
	// Sets InsertedAt timestamp if not already set.
	// Returns the document with ID and timestamps populated.
	AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// UpdateDocument updates an existing document.
	// Updates the UpdatedAt timestamp automatically.
	// Returns ErrNotFound if the document doesn't exist.
	UpdateDocument(ctx context.Context, doc *core.Document) error

	// GetDocument retrieves a single document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// GetDocumentByCitationKey retrieves a document by its citation key.
	// Returns ErrNotFound if no document carries the key.
	GetDocumentByCitationKey(ctx context.Context, key string) (*core.Document, error)

	// ListDocuments retrieves all documents, active or not.
	ListDocuments(ctx context.Context) ([]*core.Document, error)

	// SetActive flips a document's visibility without deleting it.
	// Returns ErrNotFound if the document doesn't exist.
	SetActive(ctx context.Context, id core.ID, active bool) error

	// AddRelation records a directed edge between two documents.
	AddRelation(ctx context.Context, rel *core.DocumentRelation) error

	// GetRelations retrieves all outgoing relations of a document.
	GetRelations(ctx context.Context, sourceId core.ID) ([]*core.DocumentRelation, error)
}

// ChunkRepository provides operations for managing chunks and their vectors.
type ChunkRepository interface {
	Repository

	// ReplaceChunks atomically replaces all chunks of a document: old chunks
	// are deleted, new ones inserted and the document's chunk count updated
	// in a single transaction. Old vectors disappear with their chunks.
	ReplaceChunks(ctx context.Context, docId core.ID, chunks []*core.Chunk) error

	// GetChunk retrieves a single chunk by ID.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error)

	// GetChunks retrieves all chunks of a document ordered by index.
	GetChunks(ctx context.Context, docId core.ID) ([]*core.Chunk, error)

	// ListChunks retrieves chunks of all active approved documents.
	// Used to build the lexical index.
	ListChunks(ctx context.Context) ([]*core.Chunk, error)

	// ChunksMissingVector retrieves up to limit chunks of active documents
	// that have no vector for the provider.
	ChunksMissingVector(ctx context.Context, provider string, limit int) ([]*core.Chunk, error)

	// CountMissingVector counts chunks without a vector for the provider.
	CountMissingVector(ctx context.Context, provider string) (int, error)

	// SetVector stores a chunk's embedding for one provider.
	// Returns ErrStaleWrite if the chunk no longer exists, which happens
	// when a document was re-chunked while the embedding was in flight.
	SetVector(ctx context.Context, chunkId core.ID, provider string, vector []float32) error

	// FindSimilar finds chunks similar to the given vector within one
	// provider's embedding space, restricted to active approved documents.
	// Returns matches with similarity >= minSimilarity, up to limit results,
	// ordered by similarity score (highest first).
	FindSimilar(ctx context.Context, provider string, vector []float32, minSimilarity float32, limit int) ([]*core.SimilarityMatch, error)
}

// LegalRepository provides operations for consolidation tracking.
type LegalRepository interface {
	Repository

	// AddLegalDocument adds a legal document shell.
	// For documents with ID=0, derives an ID from the citation key.
	AddLegalDocument(ctx context.Context, doc *core.LegalDocument) (*core.LegalDocument, error)

	// UpdateLegalDocument updates an existing legal document.
	// Returns ErrNotFound if the document doesn't exist.
	UpdateLegalDocument(ctx context.Context, doc *core.LegalDocument) error

	// GetLegalDocument retrieves a legal document by citation key.
	// Returns ErrNotFound if no document carries the key.
	GetLegalDocument(ctx context.Context, citationKey string) (*core.LegalDocument, error)

	// ListLegalDocuments retrieves legal documents in a given status.
	ListLegalDocuments(ctx context.Context, status core.ConsolidationStatus) ([]*core.LegalDocument, error)

	// RecordAmendment stores a detected amendment. When a validated record
	// already exists for the same (target, source reference) pair, the
	// write is refused and created=false is returned with a nil error:
	// machine detections never overwrite human-confirmed records.
	RecordAmendment(ctx context.Context, a *core.Amendment) (created bool, err error)

	// ValidateAmendment marks an amendment as human-confirmed.
	// Returns ErrNotFound if the amendment doesn't exist.
	ValidateAmendment(ctx context.Context, id core.ID, at time.Time) error

	// GetAmendments retrieves all amendments targeting a citation key,
	// most recent detection first.
	GetAmendments(ctx context.Context, targetKey string) ([]*core.Amendment, error)
}

// EvalRepository provides operations for persisted evaluation runs.
// Runs and their per-question rows are immutable once stored.
type EvalRepository interface {
	Repository

	// AddRun stores a run summary.
	AddRun(ctx context.Context, run *core.EvalRun) error

	// AddResults stores per-question rows of a run.
	AddResults(ctx context.Context, results []*core.EvalResult) error

	// GetRun retrieves a run by ID.
	// Returns ErrNotFound if the run doesn't exist.
	GetRun(ctx context.Context, id uuid.UUID) (*core.EvalRun, error)

	// LatestRun retrieves the most recently started run, or ErrNotFound
	// when no runs exist.
	LatestRun(ctx context.Context) (*core.EvalRun, error)

	// GetResults retrieves the per-question rows of a run.
	GetResults(ctx context.Context, runId uuid.UUID) ([]*core.EvalResult, error)
}

// Store aggregates all repositories over one backend.
type Store interface {
	DocumentRepository
	ChunkRepository
	LegalRepository
	EvalRepository
}

package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Language tags the dominant script of a text.
type Language string

const (
	LanguageArabic Language = "ar"
	LanguageFrench Language = "fr"
	LanguageMixed  Language = "mixed"
)

// Category classifies a document by its normative weight. Legislation
// outranks jurisprudence, which outranks doctrine, when sources disagree.
type Category string

const (
	CategoryLegislation   Category = "legislation"
	CategoryJurisprudence Category = "jurisprudence"
	CategoryDoctrine      Category = "doctrine"
)

// Document is an indexed corpus entry. Only documents that are both Active
// and Approved are visible to search.
type Document struct {
	Id           ID
	Title        string
	CitationKey  string // canonical citation identity, e.g. "loi-2025-14"
	Category     Category
	Language     Language
	Content      string // normalized full text
	SourceURL    string
	Provenance   []string // losing-source URLs retained by deduplication
	Active       bool
	Approved     bool
	Abrogated    bool
	QualityScore float64
	ChunkCount   int
	InsertedAt   time.Time
	UpdatedAt    time.Time
}

// Chunk is a retrieval unit produced by the chunking engine. Vectors holds
// one embedding slot per provider name; a missing key means the provider has
// not embedded this chunk yet.
type Chunk struct {
	Id            ID
	DocumentId    ID
	Index         int
	Content       string
	WordCount     int
	CharCount     int
	StartOffset   int // offset of the non-overlap region in the source text
	EndOffset     int
	ArticleNumber string // "" when the chunk is not anchored to an article
	Vectors       map[string][]float32
	InsertedAt    time.Time
	UpdatedAt     time.Time
}

// HasVector reports whether the chunk carries an embedding for the provider.
func (c *Chunk) HasVector(provider string) bool {
	if c.Vectors == nil {
		return false
	}
	v, ok := c.Vectors[provider]
	return ok && len(v) > 0
}

// ConsolidationStatus is the lifecycle state of a legal document being
// assembled from crawled page fragments.
type ConsolidationStatus int

const (
	// StatusPending means the document shell exists but no units are linked.
	StatusPending ConsolidationStatus = iota + 1
	// StatusPartial means some but not all expected units are linked.
	StatusPartial
	// StatusComplete means every expected unit is present with no gaps.
	StatusComplete
	// StatusApproved means a human approved the consolidated text for indexing.
	StatusApproved
)

// String returns the storage representation of the status.
func (s ConsolidationStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusPartial:
		return "partial"
	case StatusComplete:
		return "complete"
	case StatusApproved:
		return "approved"
	default:
		return "unknown"
	}
}

// ArticleUnit is a single article linked into a legal document structure.
type ArticleUnit struct {
	Number     string // article numbers may carry suffixes, e.g. "226 مكرر"
	Text       string
	SourcePage string // URL or identifier of the crawled page that supplied it
	WordCount  int
	Modified   bool
	AmendedBy  string // reference of the amending instrument, when Modified
}

// Chapter groups articles inside a book.
type Chapter struct {
	Number   int
	TitleAr  string
	TitleFr  string
	Articles []ArticleUnit
}

// Book is the top level of a consolidated code's structure.
type Book struct {
	Number   int
	TitleAr  string
	TitleFr  string
	Chapters []Chapter
}

// LegalDocument tracks the consolidation of one legal instrument identified
// by its citation key. Once approved it is linked to an indexed Document.
type LegalDocument struct {
	Id               ID
	CitationKey      string
	TitleAr          string
	TitleFr          string
	Status           ConsolidationStatus
	ExpectedArticles int // 0 when the expected count is unknown
	Books            []Book
	DocumentId       ID // linked corpus document, 0 until approved and indexed
	SourceAuthority  float64
	Abrogated        bool
	AbrogatedBy      string
	InsertedAt       time.Time
	UpdatedAt        time.Time
}

// LinkedArticles returns the number of distinct articles currently linked.
func (d *LegalDocument) LinkedArticles() int {
	n := 0
	for _, b := range d.Books {
		for _, c := range b.Chapters {
			n += len(c.Articles)
		}
	}
	return n
}

// ConfidenceTier grades how strongly an amendment detection is supported by
// the text it was extracted from.
type ConfidenceTier int

const (
	TierLow ConfidenceTier = iota + 1
	TierMedium
	TierHigh
)

// String returns the storage representation of the tier.
func (t ConfidenceTier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	default:
		return "unknown"
	}
}

// AmendmentScope describes what an amending instrument did to its target.
type AmendmentScope string

const (
	ScopeTotalReplacement    AmendmentScope = "total_replacement"
	ScopePartialModification AmendmentScope = "partial_modification"
	ScopeAddition            AmendmentScope = "addition"
	ScopeDeletion            AmendmentScope = "deletion"
)

// Amendment records that one instrument modified or abrogated another.
// ValidatedAt is nil for machine-detected records; a non-nil value means a
// human confirmed the record, and such records are never auto-overwritten.
type Amendment struct {
	Id               ID
	TargetKey        string // citation key of the amended document
	TargetDocumentId ID
	SourceRef        string // human-readable reference of the amending law
	SourceKey        string // citation key of the amending law, when resolvable
	AffectedArticles []string
	Scope            AmendmentScope
	Tier             ConfidenceTier
	Description      string
	ValidatedAt      *time.Time
	DetectedAt       time.Time
}

// Validated reports whether a human confirmed this amendment.
func (a *Amendment) Validated() bool {
	return a.ValidatedAt != nil
}

// RelationType labels a directed edge between two documents.
type RelationType string

const (
	RelationSupersedes RelationType = "supersedes"
	RelationAmends     RelationType = "amends"
	RelationCites      RelationType = "cites"
)

// DocumentRelation is a directed edge in the document graph.
type DocumentRelation struct {
	SourceId  ID
	TargetId  ID
	Type      RelationType
	CreatedAt time.Time
}

// SimilarityMatch represents a chunk match from vector similarity search.
type SimilarityMatch struct {
	ChunkId ID
	Score   float32
}

// SearchHit is a single ranked retrieval result.
type SearchHit struct {
	ChunkId       ID
	DocumentId    ID
	DocumentTitle string
	CitationKey   string
	Category      Category
	Snippet       string
	ArticleNumber string
	Similarity    float32 // dense cosine similarity, 0 when lexical-only
	Lexical       float32 // lexical score, 0 when dense-only
	Score         float32 // fused and reranked score
	CitationMatch bool
	Provider      string
	UpdatedAt     time.Time
}

// EvalResult is one immutable per-question row of an evaluation run.
type EvalResult struct {
	RunId            uuid.UUID
	QuestionId       string
	RetrievedChunks  []ID
	RetrievedDocs    []ID
	RecallAt5        float64
	PrecisionAt5     float64
	ReciprocalRank   float64
	CitationAccuracy float64
	Faithfulness     float64
	Abstained        bool
	LatencyMs        int64
	Provider         string
	Err              string // non-empty when the question failed; row still counts
	CreatedAt        time.Time
}

// EvalAggregate is the mean of per-question metrics over a run.
type EvalAggregate struct {
	RecallAt5        float64
	PrecisionAt5     float64
	MRR              float64
	CitationAccuracy float64
	Faithfulness     float64
	AbstentionRate   float64
}

// EvalRun is the persisted summary of one evaluation run.
type EvalRun struct {
	Id         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	SampleSize int
	Errors     int
	Aggregate  EvalAggregate
	Regression bool
	Baseline   uuid.UUID // zero UUID when this is the first run
	Notes      string
}

// Package chunking splits normalized document text into retrieval units.
//
// The engine accumulates paragraphs greedily up to a word target, starts a
// fresh chunk at every Arabic or French article heading (الفصل N, Article N)
// and annotates chunks with the article number they belong to. Oversized
// paragraphs fall back to sentence-boundary splitting, aware of Arabic
// punctuation, and finally to raw word windows. Consecutive chunks share a
// configurable word overlap so context survives the cut, and fragments under
// MinChunkWords are merged into a neighbor rather than dropped.
package chunking

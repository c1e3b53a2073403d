package search

import "github.com/lexiqa/ragcore/core"

// Monitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type Monitor interface {
	Start(query string, language core.Language)
	QueryVariants(variants []string)
	AfterDenseSearch(provider string, matches []*core.SimilarityMatch)
	DenseUnavailable(err error)
	AfterLexicalSearch(matches []LexicalMatch)
	AfterFusion(candidates int)
	CitationBoost(chunkId core.ID, article string)
	DroppedBelowThreshold(count int)
	Abstained(reason string)
	Finish(hits []*core.SearchHit)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ core.Language)                     {}
func (n *noopMonitor) QueryVariants(_ []string)                            {}
func (n *noopMonitor) AfterDenseSearch(_ string, _ []*core.SimilarityMatch) {}
func (n *noopMonitor) DenseUnavailable(_ error)                            {}
func (n *noopMonitor) AfterLexicalSearch(_ []LexicalMatch)                 {}
func (n *noopMonitor) AfterFusion(_ int)                                   {}
func (n *noopMonitor) CitationBoost(_ core.ID, _ string)                   {}
func (n *noopMonitor) DroppedBelowThreshold(_ int)                         {}
func (n *noopMonitor) Abstained(_ string)                                  {}
func (n *noopMonitor) Finish(_ []*core.SearchHit)                          {}

// Package evals measures retrieval quality against a labeled gold set.
//
// The Harness calls the search engine exactly as a caller would, computes
// recall@5, precision@5, MRR, citation accuracy and faithfulness per
// question, and persists every run immutably. Each run is compared against
// the immediately preceding one and flagged when recall@5 or MRR regress
// beyond a configured delta.
package evals

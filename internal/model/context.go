package model

// Relevance is the discrete bucket a similarity score falls into, used
// for human-facing display of retrieval quality.
type Relevance string

const (
	RelevanceHigh    Relevance = "HIGH"
	RelevanceMedium  Relevance = "MEDIUM"
	RelevanceLow     Relevance = "LOW"
	RelevanceVeryLow Relevance = "VERY_LOW"
)

// ContextSource is one formatted retrieval result inside a party context.
// The ID is a 1-based sequence number in search order.
type ContextSource struct {
	ID           int       `json:"id"`
	Content      string    `json:"content"`
	Similarity   float64   `json:"similarity"`
	Relevance    Relevance `json:"relevance"`
	ChapterTitle string    `json:"chapterTitle,omitempty"`
	PageNumber   int       `json:"pageNumber,omitempty"`
}

// PartyContext is the formatted bundle of retrieval results for one party,
// handed to the downstream generation step.
type PartyContext struct {
	PartyName     string          `json:"partyName"`
	PartyCode     string          `json:"partyCode"`
	Sources       []ContextSource `json:"sources"`
	ResultsCount  int             `json:"resultsCount"`
	AvgSimilarity float64         `json:"avgSimilarity"`
}

// ComparisonEntry is one party's slot in a comparison context. Context is
// nil when the party code is unknown, retrieval produced nothing, or the
// party's lookup failed.
type ComparisonEntry struct {
	PartyCode string        `json:"partyCode"`
	Context   *PartyContext `json:"context,omitempty"`
}

// ComparisonContext aggregates per-party contexts for a comparison
// question. It always contains one entry per requested code, in request
// order.
type ComparisonContext struct {
	PartyContexts     []ComparisonEntry `json:"partyContexts"`
	TotalResultsCount int               `json:"totalResultsCount"`
}

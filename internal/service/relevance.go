// Package service contains the application's business logic layer.
package service

import "partychat-go/internal/model"

// Relevance thresholds. Each bound is exclusive on the lower side: a score
// exactly equal to a threshold falls into the lower bucket.
const (
	relevanceHighThreshold   = 0.75
	relevanceMediumThreshold = 0.60
	relevanceLowThreshold    = 0.50
)

// ClassifyRelevance maps a raw similarity score to its display bucket.
func ClassifyRelevance(similarity float64) model.Relevance {
	switch {
	case similarity > relevanceHighThreshold:
		return model.RelevanceHigh
	case similarity > relevanceMediumThreshold:
		return model.RelevanceMedium
	case similarity > relevanceLowThreshold:
		return model.RelevanceLow
	default:
		return model.RelevanceVeryLow
	}
}

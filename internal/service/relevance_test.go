package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"partychat-go/internal/model"
)

func TestClassifyRelevance(t *testing.T) {
	tests := []struct {
		similarity float64
		want       model.Relevance
	}{
		{0.95, model.RelevanceHigh},
		{0.80, model.RelevanceHigh},
		{0.76, model.RelevanceHigh},
		{0.75, model.RelevanceMedium}, // boundary is exclusive
		{0.61, model.RelevanceMedium},
		{0.60, model.RelevanceLow}, // boundary is exclusive
		{0.51, model.RelevanceLow},
		{0.50, model.RelevanceVeryLow}, // boundary is exclusive
		{0.30, model.RelevanceVeryLow},
		{0.0, model.RelevanceVeryLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyRelevance(tt.similarity), "similarity %.2f", tt.similarity)
	}
}

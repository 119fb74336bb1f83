package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partychat-go/internal/config"
	"partychat-go/internal/model"
)

func TestBuildContextText(t *testing.T) {
	pc := &model.PartyContext{
		PartyName: "Alpha Party",
		Sources: []model.ContextSource{
			{ID: 1, Content: "climate chapter", Similarity: 0.82, Relevance: model.RelevanceHigh, ChapterTitle: "Climate", PageNumber: 12},
			{ID: 2, Content: "energy transition", Similarity: 0.71, Relevance: model.RelevanceMedium},
		},
	}

	text := buildContextText(pc)
	assert.Contains(t, text, "[1] (Climate, p. 12, relevance HIGH) climate chapter")
	assert.Contains(t, text, "[2] (unknown section, relevance MEDIUM) energy transition")

	assert.Empty(t, buildContextText(nil))
	assert.Empty(t, buildContextText(&model.PartyContext{}))
}

func TestBuildSystemMessage(t *testing.T) {
	svc := &chatService{llmCfg: config.LLMConfig{
		Prompt: config.LLMPromptConfig{
			Rules:        "Answer only from the excerpts.",
			RefStart:     "<<REF>>",
			RefEnd:       "<<END>>",
			NoResultText: "(nothing found)",
		},
	}}

	withContext := svc.buildSystemMessage("Alpha Party", &model.PartyContext{
		Sources: []model.ContextSource{{ID: 1, Content: "climate chapter", Relevance: model.RelevanceHigh}},
	})
	assert.Contains(t, withContext, "Answer only from the excerpts.")
	assert.Contains(t, withContext, "<<REF>>")
	assert.Contains(t, withContext, "climate chapter")
	assert.Contains(t, withContext, "<<END>>")

	withoutContext := svc.buildSystemMessage("Alpha Party", nil)
	assert.Contains(t, withoutContext, "(nothing found)")
	assert.NotContains(t, withoutContext, "climate chapter")
}

func TestComposeMessagesFlattensHistory(t *testing.T) {
	svc := &chatService{}
	history := []model.ChatMessage{
		{Role: "user", Content: model.PlainContent("earlier question")},
		{Role: "assistant", Content: model.PlainContent("earlier answer")},
	}

	msgs := svc.composeMessages("system prompt", history, "latest question")
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "system prompt", msgs[0].Content)
	assert.Equal(t, "earlier question", msgs[1].Content)
	assert.Equal(t, "earlier answer", msgs[2].Content)
	assert.Equal(t, "user", msgs[3].Role)
	assert.Equal(t, "latest question", msgs[3].Content)
}

func TestBuildGenerationParams(t *testing.T) {
	svc := &chatService{}
	assert.Nil(t, svc.buildGenerationParams(), "all zero values mean no overrides")

	svc.llmCfg.Generation = config.LLMGenerationConfig{Temperature: 0.2, MaxTokens: 512}
	gp := svc.buildGenerationParams()
	require.NotNil(t, gp)
	require.NotNil(t, gp.Temperature)
	assert.Equal(t, 0.2, *gp.Temperature)
	assert.Nil(t, gp.TopP)
	require.NotNil(t, gp.MaxTokens)
	assert.Equal(t, 512, *gp.MaxTokens)
}

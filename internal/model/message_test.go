package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageContentUnmarshal(t *testing.T) {
	t.Run("plain string", func(t *testing.T) {
		var m MessageContent
		require.NoError(t, json.Unmarshal([]byte(`"hello"`), &m))
		assert.Equal(t, ContentPlainText, m.Kind)
		assert.Equal(t, "hello", m.Flatten())
	})

	t.Run("structured parts", func(t *testing.T) {
		var m MessageContent
		data := `[{"type":"text","text":"what about"},{"type":"image","text":"ignored"},{"type":"text","text":"taxes?"}]`
		require.NoError(t, json.Unmarshal([]byte(data), &m))
		assert.Equal(t, ContentStructuredParts, m.Kind)
		assert.Equal(t, "what about taxes?", m.Flatten())
	})

	t.Run("opaque object", func(t *testing.T) {
		var m MessageContent
		require.NoError(t, json.Unmarshal([]byte(`{"foo":1}`), &m))
		assert.Equal(t, ContentOpaque, m.Kind)
		assert.Equal(t, `{"foo":1}`, m.Flatten())
	})

	t.Run("empty string flattens to empty", func(t *testing.T) {
		var m MessageContent
		require.NoError(t, json.Unmarshal([]byte(`""`), &m))
		assert.Equal(t, "", m.Flatten())
	})
}

func TestMessageContentRoundTrip(t *testing.T) {
	msg := ChatMessage{Role: "user", Content: PlainContent("climate policy")}
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var back ChatMessage
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "climate policy", back.Content.Flatten())
}

func TestLatestQuestion(t *testing.T) {
	assert.Equal(t, "", LatestQuestion(nil))
	assert.Equal(t, "", LatestQuestion([]ChatMessage{}))

	msgs := []ChatMessage{
		{Role: "user", Content: PlainContent("first")},
		{Role: "assistant", Content: PlainContent("answer")},
		{Role: "user", Content: PlainContent("  climate policy \n")},
	}
	assert.Equal(t, "climate policy", LatestQuestion(msgs))
}

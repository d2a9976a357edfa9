package service

import (
	"context"
	"errors"
	"testing"

	"shige-go/internal/model"
	"shige-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLLMClient 以固定回复或固定错误响应 CompleteJSON。
type fakeLLMClient struct {
	reply string
	err   error
	calls int
}

func (f *fakeLLMClient) CompleteJSON(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func TestClassifyHeuristic(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"纯填充音节", "na na na da da dum", model.IntentHumming},
		{"文本过短", "find song", model.IntentHumming},
		{"长文本但填充音节多", "it goes like na na na something catchy", model.IntentHumming},
		{"正常对话", "帮我找一首周杰伦的歌 它很老了 大概是 2003 年的", model.IntentConversation},
		{"英文正常对话", "can you find that song from the radio yesterday", model.IntentConversation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyHeuristic(tt.text)
			assert.Equal(t, tt.want, got.Type)
			assert.InDelta(t, 0.5, got.Confidence, 1e-9)
		})
	}
}

func TestIntentClassifyUsesLLMOutput(t *testing.T) {
	fake := &fakeLLMClient{reply: "```json\n{\"type\": \"humming\", \"confidence\": 0.9, \"reasoning\": \"全是音节\"}\n```"}
	svc := NewIntentService(fake)

	got := svc.Classify(context.Background(), "na na na")
	require.Equal(t, 1, fake.calls)
	assert.Equal(t, model.IntentHumming, got.Type)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)
}

func TestIntentClassifyFallsBackOnError(t *testing.T) {
	fake := &fakeLLMClient{err: errors.New("connection refused")}
	svc := NewIntentService(fake)

	got := svc.Classify(context.Background(), "this is a perfectly normal sentence about music")
	assert.Equal(t, model.IntentConversation, got.Type)
}

func TestIntentClassifyFallsBackOnGarbage(t *testing.T) {
	svc := NewIntentService(&fakeLLMClient{reply: "我觉得这像是哼唱"})
	got := svc.Classify(context.Background(), "na na na da da dum")
	assert.Equal(t, model.IntentHumming, got.Type)
	assert.Equal(t, 0.5, got.Confidence)
}

func TestIntentClassifyFallsBackOnUnknownType(t *testing.T) {
	svc := NewIntentService(&fakeLLMClient{reply: `{"type": "singing", "confidence": 0.8}`})

	got := svc.Classify(context.Background(), "na na na da da dum")
	assert.Equal(t, model.IntentHumming, got.Type)
}

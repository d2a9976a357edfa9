package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"shige-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolverParsesFencedOutput(t *testing.T) {
	fake := &fakeLLMClient{reply: "```json\n" + `{
		"response_type": "search",
		"overall_confidence": 0.82,
		"candidates": [{"title": "Yellow", "artist": "Coldplay", "confidence": 0.82, "reason": "歌词匹配"}],
		"should_ask_crowd": false,
		"follow_up_question": "",
		"conversation_state": "found"
	}` + "\n```"}
	svc := NewResolverService(fake)

	out, err := svc.Resolve(context.Background(), &ResolverInput{
		Query:       "a song about stars being yellow",
		Context:     &model.ExtractedContext{Flow: model.FlowInitial},
		QueryIntent: model.QueryIntentSearch,
	})
	require.NoError(t, err)
	require.Len(t, out.Candidates, 1)
	assert.Equal(t, "Yellow", out.Candidates[0].Title)
	assert.InDelta(t, 0.82, out.OverallConfidence, 1e-9)
	assert.False(t, out.ShouldAskCrowd)
}

func TestResolverReturnsParseErrorOnGarbage(t *testing.T) {
	svc := NewResolverService(&fakeLLMClient{reply: "抱歉，我无法确定这首歌。"})

	_, err := svc.Resolve(context.Background(), &ResolverInput{
		Query:       "anything",
		Context:     &model.ExtractedContext{Flow: model.FlowInitial},
		QueryIntent: model.QueryIntentSearch,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrParse))
}

func TestResolverWrapsUpstreamFailure(t *testing.T) {
	svc := NewResolverService(&fakeLLMClient{err: errors.New("503 service unavailable")})

	_, err := svc.Resolve(context.Background(), &ResolverInput{
		Query:       "anything",
		Context:     &model.ExtractedContext{Flow: model.FlowInitial},
		QueryIntent: model.QueryIntentSearch,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrUpstreamFailure))
}

func TestResolverWrapsTimeoutSeparately(t *testing.T) {
	svc := NewResolverService(&fakeLLMClient{err: fmt.Errorf("call failed: %w", context.DeadlineExceeded)})

	_, err := svc.Resolve(context.Background(), &ResolverInput{
		Query:       "anything",
		Context:     &model.ExtractedContext{Flow: model.FlowInitial},
		QueryIntent: model.QueryIntentSearch,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrUpstreamTimeout))
}

func TestResolverFiltersRejectedCandidates(t *testing.T) {
	fake := &fakeLLMClient{reply: `{
		"response_type": "search",
		"overall_confidence": 0.7,
		"candidates": [
			{"title": "Wrong Song", "artist": "Nobody", "confidence": 0.7},
			{"title": "Fresh Song", "artist": "Somebody", "confidence": 0.7}
		],
		"should_ask_crowd": false,
		"conversation_state": "refining"
	}`}
	svc := NewResolverService(fake)

	out, err := svc.Resolve(context.Background(), &ResolverInput{
		Query: "that song again",
		Context: &model.ExtractedContext{
			Flow:               model.FlowRefining,
			RejectedCandidates: []string{"Wrong Song - Nobody"},
		},
		QueryIntent: model.QueryIntentSearch,
	})
	require.NoError(t, err)
	require.Len(t, out.Candidates, 1)
	assert.Equal(t, "Fresh Song", out.Candidates[0].Title)
}

func TestResolverSuppressesRepeatedFollowUp(t *testing.T) {
	fake := &fakeLLMClient{reply: `{
		"response_type": "search",
		"overall_confidence": 0.7,
		"candidates": [{"title": "Maybe", "artist": "Guess", "confidence": 0.7}],
		"follow_up_question": "你还记得某句歌词吗？",
		"conversation_state": "refining"
	}`}
	svc := NewResolverService(fake)

	out, err := svc.Resolve(context.Background(), &ResolverInput{
		Query: "still looking",
		Context: &model.ExtractedContext{
			Flow:           model.FlowRefining,
			AskedQuestions: []string{"你还记得某句歌词吗？"},
		},
		QueryIntent: model.QueryIntentSearch,
	})
	require.NoError(t, err)
	assert.Empty(t, out.FollowUpQuestion)
}

func TestResolverForcesCrowdEscalation(t *testing.T) {
	fake := &fakeLLMClient{reply: `{
		"response_type": "search",
		"overall_confidence": 0.3,
		"candidates": [{"title": "Long Shot", "artist": "Unknown", "confidence": 0.3}],
		"should_ask_crowd": false,
		"conversation_state": "refining"
	}`}
	svc := NewResolverService(fake)

	out, err := svc.Resolve(context.Background(), &ResolverInput{
		Query:       "a mysterious tune",
		Context:     &model.ExtractedContext{Flow: model.FlowRefining},
		QueryIntent: model.QueryIntentSearch,
	})
	require.NoError(t, err)
	assert.True(t, out.ShouldAskCrowd)
	assert.NotEmpty(t, out.CrowdPrompt)
}

func TestResolverDoesNotEscalateWithStrongCandidate(t *testing.T) {
	fake := &fakeLLMClient{reply: `{
		"response_type": "search",
		"overall_confidence": 0.5,
		"candidates": [{"title": "Strong", "artist": "Pick", "confidence": 0.85}],
		"should_ask_crowd": false,
		"conversation_state": "found"
	}`}
	svc := NewResolverService(fake)

	out, err := svc.Resolve(context.Background(), &ResolverInput{
		Query:       "almost sure",
		Context:     &model.ExtractedContext{Flow: model.FlowRefining},
		QueryIntent: model.QueryIntentSearch,
	})
	require.NoError(t, err)
	assert.False(t, out.ShouldAskCrowd)
}

func TestResolverDefaultsResponseTypeByIntent(t *testing.T) {
	fake := &fakeLLMClient{reply: `{
		"response_type": "unexpected",
		"overall_confidence": 0.9,
		"candidates": [],
		"answer": {"text": "这首歌写于 1975 年。", "sources": ["wiki"]},
		"conversation_state": "found"
	}`}
	svc := NewResolverService(fake)

	out, err := svc.Resolve(context.Background(), &ResolverInput{
		Query:       "when was it written",
		Context:     &model.ExtractedContext{Flow: model.FlowFound},
		QueryIntent: model.QueryIntentQuestion,
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", out.ResponseType)
}

package service

import (
	"context"
	"errors"
	"testing"

	"shige-go/pkg/recognizer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRecognizer 以固定结果或固定错误响应 Identify。
type fakeRecognizer struct {
	name   string
	result *recognizer.Result
	err    error
}

func (f *fakeRecognizer) Identify(ctx context.Context, audio []byte) (*recognizer.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeRecognizer) Name() string { return f.name }

func TestConsensusPicksHighestConfidence(t *testing.T) {
	svc := NewConsensusService(
		&fakeRecognizer{name: "humming", result: &recognizer.Result{Success: true, Title: "Almost", Artist: "Someone", Confidence: 0.4}},
		&fakeRecognizer{name: "full_track", result: &recognizer.Result{Success: true, Title: "Exact Match", Artist: "The Band", Confidence: 0.9}},
	)

	got := svc.Identify(context.Background(), []byte("audio"))
	require.NotNil(t, got.Best)
	assert.Equal(t, "Exact Match", got.Best.Title)
	assert.InDelta(t, 0.9, got.Best.Confidence, 1e-9)
	// 高置信短路时不需要提示语
	assert.Empty(t, got.Hint)
}

func TestConsensusToleratesPartialFailure(t *testing.T) {
	svc := NewConsensusService(
		&fakeRecognizer{name: "humming", err: errors.New("backend unavailable")},
		&fakeRecognizer{name: "full_track", result: &recognizer.Result{Success: true, Title: "Survivor", Artist: "Solo", Confidence: 0.5}},
	)

	got := svc.Identify(context.Background(), []byte("audio"))
	require.NotNil(t, got.Best)
	assert.Equal(t, "Survivor", got.Best.Title)
	// 中等置信度带提示语，供解析后端确认
	assert.Contains(t, got.Hint, "Survivor")
}

func TestConsensusAllFailed(t *testing.T) {
	svc := NewConsensusService(
		&fakeRecognizer{name: "humming", err: errors.New("timeout")},
		&fakeRecognizer{name: "full_track", result: &recognizer.Result{Success: false}},
	)

	got := svc.Identify(context.Background(), []byte("audio"))
	assert.Nil(t, got.Best)
	assert.Empty(t, got.Hint)
}

func TestConsensusIgnoresUnsuccessfulResults(t *testing.T) {
	svc := NewConsensusService(
		&fakeRecognizer{name: "humming", result: &recognizer.Result{Success: false, Confidence: 0.99}},
		&fakeRecognizer{name: "full_track", result: &recognizer.Result{Success: true, Title: "Real", Artist: "Hit", Confidence: 0.3}},
	)

	got := svc.Identify(context.Background(), []byte("audio"))
	require.NotNil(t, got.Best)
	assert.Equal(t, "Real", got.Best.Title)
}

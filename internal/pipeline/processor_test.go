package pipeline

import (
	"context"
	"errors"
	"testing"

	"shige-go/internal/model"
	"shige-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCrowdClient struct {
	remoteExists bool
	remoteErr    error
	created      int
	linked       int
}

func (f *fakeCrowdClient) HasExistingPost(ctx context.Context, eventID string) (bool, error) {
	return f.remoteExists, f.remoteErr
}

func (f *fakeCrowdClient) CreatePost(ctx context.Context, text, mediaURL string) (string, error) {
	f.created++
	return "post-42", nil
}

func (f *fakeCrowdClient) LinkPost(ctx context.Context, eventID, postID string) error {
	f.linked++
	return nil
}

type memCrowdRepo struct {
	links map[string]*model.CrowdLink
}

func (r *memCrowdRepo) HasLink(eventID string) (bool, error) {
	_, ok := r.links[eventID]
	return ok, nil
}

func (r *memCrowdRepo) CreateLink(link *model.CrowdLink) error {
	r.links[link.EventID] = link
	return nil
}

func newTestProcessor() (*Processor, *fakeCrowdClient, *memCrowdRepo) {
	client := &fakeCrowdClient{}
	repo := &memCrowdRepo{links: map[string]*model.CrowdLink{}}
	return NewProcessor(client, repo), client, repo
}

func TestProcessCreatesPostOnce(t *testing.T) {
	p, client, repo := newTestProcessor()
	task := tasks.CrowdEscalationTask{EventID: "resolve-1-7", ThreadID: 1, Prompt: "求助：这首歌是什么？"}

	require.NoError(t, p.Process(context.Background(), task))
	assert.Equal(t, 1, client.created)
	assert.Equal(t, 1, client.linked)

	link, ok := repo.links["resolve-1-7"]
	require.True(t, ok)
	assert.Equal(t, "post-42", link.PostID)

	// 重复投递同一任务不再发帖
	require.NoError(t, p.Process(context.Background(), task))
	assert.Equal(t, 1, client.created)
}

func TestProcessBackfillsLinkWhenRemoteHasPost(t *testing.T) {
	p, client, repo := newTestProcessor()
	client.remoteExists = true
	task := tasks.CrowdEscalationTask{EventID: "resolve-2-9", ThreadID: 2}

	require.NoError(t, p.Process(context.Background(), task))
	// 协作方已有帖子：只补写本地关联，不再发帖
	assert.Equal(t, 0, client.created)
	_, ok := repo.links["resolve-2-9"]
	assert.True(t, ok)
}

func TestProcessPropagatesRemoteError(t *testing.T) {
	p, client, _ := newTestProcessor()
	client.remoteErr = errors.New("collaborator unavailable")
	task := tasks.CrowdEscalationTask{EventID: "resolve-3-1", ThreadID: 3}

	err := p.Process(context.Background(), task)
	require.Error(t, err)
	assert.Equal(t, 0, client.created)
}

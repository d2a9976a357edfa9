package service

import (
	"context"
	"fmt"
	"shige-go/internal/model"
	"shige-go/internal/repository"
	"strings"
)

// ThreadService 定义了会话与消息的读写接口。
// 解析管道要求 message_id 先于解析请求存在，这里就是创建它的写入口。
type ThreadService interface {
	CreateThread(userID uint) (*model.Thread, error)
	// AppendUserMessage 在会话中追加一条用户文本消息。
	AppendUserMessage(userID, threadID uint, content string) (*model.Message, error)
	// GetHistory 返回会话的全部消息，按时间升序。
	GetHistory(userID, threadID uint) ([]model.Message, error)
	// GetStash 返回会话迄今最优的候选记录。
	GetStash(userID, threadID uint) (*model.StashRecord, error)
	// GetRecentQueries 返回会话最近的原始查询（至多 3 条，新的在前）。
	GetRecentQueries(ctx context.Context, userID, threadID uint) ([]string, error)
}

type threadService struct {
	threadRepo  repository.ThreadRepository
	messageRepo repository.MessageRepository
	stashRepo   repository.StashRepository
	sessionRepo repository.SessionRepository
}

// NewThreadService 创建一个新的 ThreadService 实例。
func NewThreadService(threadRepo repository.ThreadRepository, messageRepo repository.MessageRepository, stashRepo repository.StashRepository, sessionRepo repository.SessionRepository) ThreadService {
	return &threadService{
		threadRepo:  threadRepo,
		messageRepo: messageRepo,
		stashRepo:   stashRepo,
		sessionRepo: sessionRepo,
	}
}

func (s *threadService) CreateThread(userID uint) (*model.Thread, error) {
	return s.threadRepo.CreateThread(userID)
}

// AppendUserMessage 校验会话归属后追加用户消息。
func (s *threadService) AppendUserMessage(userID, threadID uint, content string) (*model.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: 消息内容为空", model.ErrInput)
	}
	thread, err := s.threadRepo.GetThread(threadID)
	if err != nil {
		return nil, err
	}
	if thread.UserID != userID {
		return nil, model.ErrNotFound
	}

	msg := &model.Message{
		ThreadID: threadID,
		Role:     model.RoleUser,
		Kind:     model.KindText,
		Content:  content,
	}
	if err := s.messageRepo.CreateMessage(msg); err != nil {
		return nil, fmt.Errorf("写入用户消息失败: %w", err)
	}
	return msg, nil
}

func (s *threadService) GetHistory(userID, threadID uint) ([]model.Message, error) {
	thread, err := s.threadRepo.GetThread(threadID)
	if err != nil {
		return nil, err
	}
	if thread.UserID != userID {
		return nil, model.ErrNotFound
	}
	return s.messageRepo.ListByThread(threadID)
}

func (s *threadService) GetStash(userID, threadID uint) (*model.StashRecord, error) {
	return s.stashRepo.GetByThread(userID, threadID)
}

// GetRecentQueries 返回 Redis 侧记录的最近查询列表。
func (s *threadService) GetRecentQueries(ctx context.Context, userID, threadID uint) ([]string, error) {
	thread, err := s.threadRepo.GetThread(threadID)
	if err != nil {
		return nil, err
	}
	if thread.UserID != userID {
		return nil, model.ErrNotFound
	}
	return s.sessionRepo.GetRecentQueries(ctx, threadID)
}

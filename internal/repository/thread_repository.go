// Package repository 提供了数据访问层的实现。
package repository

import (
	"errors"
	"shige-go/internal/model"
	"time"

	"gorm.io/gorm"
)

// ThreadRepository 接口定义了会话相关的数据持久化操作。
type ThreadRepository interface {
	CreateThread(userID uint) (*model.Thread, error)
	GetThread(threadID uint) (*model.Thread, error)
	// TouchThread 更新会话的最后活跃时间，每轮解析结束时调用。
	TouchThread(threadID uint) error
}

// threadRepository 是 ThreadRepository 接口的 GORM 实现。
type threadRepository struct {
	db *gorm.DB
}

// NewThreadRepository 创建一个新的 ThreadRepository 实例。
func NewThreadRepository(db *gorm.DB) ThreadRepository {
	return &threadRepository{db: db}
}

// CreateThread 为指定用户创建一个新会话。
func (r *threadRepository) CreateThread(userID uint) (*model.Thread, error) {
	thread := &model.Thread{
		UserID:       userID,
		LastActiveAt: time.Now(),
	}
	if err := r.db.Create(thread).Error; err != nil {
		return nil, err
	}
	return thread, nil
}

// GetThread 根据 ID 检索会话，不存在时返回 model.ErrNotFound。
func (r *threadRepository) GetThread(threadID uint) (*model.Thread, error) {
	var thread model.Thread
	err := r.db.First(&thread, threadID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

// TouchThread 将会话的最后活跃时间刷新为当前时间。
func (r *threadRepository) TouchThread(threadID uint) error {
	return r.db.Model(&model.Thread{}).Where("id = ?", threadID).
		Update("last_active_at", time.Now()).Error
}

package repository

import (
	"errors"
	"shige-go/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository 接口定义了消息的数据持久化操作。
// 消息是追加写入的；唯一的例外是状态占位消息，它在被真实结果取代后删除。
type MessageRepository interface {
	CreateMessage(msg *model.Message) error
	GetMessage(messageID uint) (*model.Message, error)
	// ListByThread 按时间升序返回会话的全部消息。
	ListByThread(threadID uint) ([]model.Message, error)
	// ListCandidates 返回会话内已持久化的全部候选消息。
	ListCandidates(threadID uint) ([]model.Message, error)
	// CreateCandidateIfAbsent 以 (thread, title, artist) 为键条件插入候选消息；
	// 键已存在时不做任何修改，返回 false。
	CreateCandidateIfAbsent(msg *model.Message) (bool, error)
	// FindStatusMessage 返回会话当前的状态占位消息，没有时返回 nil。
	FindStatusMessage(threadID uint) (*model.Message, error)
	DeleteMessage(messageID uint) error
	UpdateMessageContent(messageID uint, content string) error
	// DeleteStaleStatusMessages 删除早于给定时刻的状态消息，返回删除条数。
	DeleteStaleStatusMessages(olderThan time.Time) (int64, error)
}

// messageRepository 是 MessageRepository 接口的 GORM 实现。
type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建一个新的 MessageRepository 实例。
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// CreateMessage 在数据库中追加一条消息。
func (r *messageRepository) CreateMessage(msg *model.Message) error {
	return r.db.Create(msg).Error
}

// GetMessage 根据 ID 检索消息，不存在时返回 model.ErrNotFound。
func (r *messageRepository) GetMessage(messageID uint) (*model.Message, error) {
	var msg model.Message
	err := r.db.First(&msg, messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListByThread 按创建时间升序返回会话的全部消息。
func (r *messageRepository) ListByThread(threadID uint) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.Where("thread_id = ?", threadID).
		Order("created_at asc, id asc").Find(&msgs).Error
	return msgs, err
}

// ListCandidates 返回会话内全部候选消息。
func (r *messageRepository) ListCandidates(threadID uint) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.Where("thread_id = ? AND kind = ?", threadID, model.KindCandidate).
		Order("created_at asc, id asc").Find(&msgs).Error
	return msgs, err
}

// CreateCandidateIfAbsent 依赖 (thread_key, title_key, artist_key) 上的唯一索引做条件插入，
// 消除了先查后写的竞态窗口。返回值表示是否真的插入了新行。
func (r *messageRepository) CreateCandidateIfAbsent(msg *model.Message) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(msg)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindStatusMessage 返回会话当前的状态占位消息。契约上同一时刻至多存在一条。
func (r *messageRepository) FindStatusMessage(threadID uint) (*model.Message, error) {
	var msg model.Message
	err := r.db.Where("thread_id = ? AND kind = ?", threadID, model.KindStatus).
		Order("created_at desc").First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage 根据 ID 删除消息。
func (r *messageRepository) DeleteMessage(messageID uint) error {
	return r.db.Delete(&model.Message{}, messageID).Error
}

// UpdateMessageContent 更新指定消息的文本内容。
func (r *messageRepository) UpdateMessageContent(messageID uint, content string) error {
	return r.db.Model(&model.Message{}).Where("id = ?", messageID).
		Update("content", content).Error
}

// DeleteStaleStatusMessages 清理孤儿状态消息（例如请求被中断后遗留的"搜索中…"占位）。
func (r *messageRepository) DeleteStaleStatusMessages(olderThan time.Time) (int64, error) {
	result := r.db.Where("kind = ? AND created_at < ?", model.KindStatus, olderThan).
		Delete(&model.Message{})
	return result.RowsAffected, result.Error
}

package repository

import (
	"errors"
	"shige-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StashRepository 接口定义了"迄今最优候选"记录的持久化操作。
type StashRepository interface {
	// Upsert 按 (user, thread) 覆盖写入，永不产生重复行。
	Upsert(record *model.StashRecord) error
	GetByThread(userID, threadID uint) (*model.StashRecord, error)
}

// stashRepository 是 StashRepository 接口的 GORM 实现。
type stashRepository struct {
	db *gorm.DB
}

// NewStashRepository 创建一个新的 StashRepository 实例。
func NewStashRepository(db *gorm.DB) StashRepository {
	return &stashRepository{db: db}
}

// Upsert 依赖 (user_id, thread_id) 唯一索引做插入或覆盖。
func (r *stashRepository) Upsert(record *model.StashRecord) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "thread_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "artist", "confidence", "lyric_snippet", "updated_at"}),
	}).Create(record).Error
}

// GetByThread 返回某会话的最优候选记录，不存在时返回 model.ErrNotFound。
func (r *stashRepository) GetByThread(userID, threadID uint) (*model.StashRecord, error) {
	var record model.StashRecord
	err := r.db.Where("user_id = ? AND thread_id = ?", userID, threadID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

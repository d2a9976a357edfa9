package repository

import (
	"errors"
	"shige-go/internal/model"

	"gorm.io/gorm"
)

// CrowdRepository 接口定义了社区帖子关联记录的持久化操作。
type CrowdRepository interface {
	// HasLink 判断某次解析事件是否已经关联过社区帖子。
	HasLink(eventID string) (bool, error)
	CreateLink(link *model.CrowdLink) error
}

// crowdRepository 是 CrowdRepository 接口的 GORM 实现。
type crowdRepository struct {
	db *gorm.DB
}

// NewCrowdRepository 创建一个新的 CrowdRepository 实例。
func NewCrowdRepository(db *gorm.DB) CrowdRepository {
	return &crowdRepository{db: db}
}

// HasLink 按事件 ID 查询关联记录是否存在。
func (r *crowdRepository) HasLink(eventID string) (bool, error) {
	var link model.CrowdLink
	err := r.db.Where("event_id = ?", eventID).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateLink 写入一条事件与帖子的关联，event_id 上的唯一索引兜底防止重复。
func (r *crowdRepository) CreateLink(link *model.CrowdLink) error {
	return r.db.Create(link).Error
}

// Package model 包含了应用的数据模型定义。
package model

import "time"

// 消息角色常量。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// 消息种类常量。
const (
	KindText      = "text"
	KindStatus    = "status"
	KindCandidate = "candidate"
	KindAnswer    = "answer"
	KindFollowUp  = "follow_up"
)

// Thread 对应于数据库中的 'threads' 表，代表一个用户与助手的多轮会话。
// 由本子系统在首条用户消息时创建，每轮更新活跃时间，不做删除。
type Thread struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"index;not null" json:"userId"`
	LastActiveAt time.Time `gorm:"index" json:"lastActiveAt"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Thread) TableName() string {
	return "threads"
}

// Message 对应于数据库中的 'messages' 表，是会话内追加写入的不可变记录。
// 候选歌曲消息会额外携带标题、歌手、置信度等载荷字段；
// TitleKey/ArtistKey 是小写化后的去重键，仅候选消息填写，
// 与 thread_id 组成唯一索引以保证同一会话内同一 (title,artist) 至多一条消息。
type Message struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ThreadID     uint      `gorm:"index;not null" json:"threadId"`
	Role         string    `gorm:"type:varchar(16);not null" json:"role"`
	Kind         string    `gorm:"type:varchar(16);not null;index" json:"kind"`
	Content      string    `gorm:"type:text" json:"content"`
	Title        string    `gorm:"type:varchar(255)" json:"title,omitempty"`
	Artist       string    `gorm:"type:varchar(255)" json:"artist,omitempty"`
	TitleKey     *string   `gorm:"type:varchar(255);uniqueIndex:uk_thread_candidate,priority:2" json:"-"`
	ArtistKey    *string   `gorm:"type:varchar(255);uniqueIndex:uk_thread_candidate,priority:3" json:"-"`
	ThreadKey    *uint     `gorm:"uniqueIndex:uk_thread_candidate,priority:1" json:"-"`
	Confidence   float64   `json:"confidence,omitempty"`
	Reason       string    `gorm:"type:text" json:"reason,omitempty"`
	LyricSnippet string    `gorm:"type:text" json:"lyricSnippet,omitempty"`
	Sources      string    `gorm:"type:text" json:"sources,omitempty"` // JSON 数组字符串
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}

// StashRecord 对应于数据库中的 'stash_records' 表，保存某会话迄今最优的候选。
// 每个 (user, thread) 至多一条，置信度达到高置信阈值时覆盖更新。
type StashRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"uniqueIndex:uk_user_thread,priority:1;not null" json:"userId"`
	ThreadID     uint      `gorm:"uniqueIndex:uk_user_thread,priority:2;not null" json:"threadId"`
	Title        string    `gorm:"type:varchar(255);not null" json:"title"`
	Artist       string    `gorm:"type:varchar(255);not null" json:"artist"`
	Confidence   float64   `gorm:"not null" json:"confidence"`
	LyricSnippet string    `gorm:"type:text" json:"lyricSnippet,omitempty"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (StashRecord) TableName() string {
	return "stash_records"
}

// CrowdLink 对应于数据库中的 'crowd_links' 表，记录一次求助升级与社区帖子的关联。
// EventID 唯一，保证一次解析事件至多发出一条社区帖子。
type CrowdLink struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventID   string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"eventId"`
	ThreadID  uint      `gorm:"index;not null" json:"threadId"`
	PostID    string    `gorm:"type:varchar(64)" json:"postId"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (CrowdLink) TableName() string {
	return "crowd_links"
}

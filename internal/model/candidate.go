package model

// Candidate 是一个候选歌曲：(标题, 歌手) 加置信度与来源信息。
// 同一轮解析内按小写化 (title, artist) 去重，保留最高置信度。
type Candidate struct {
	Title        string   `json:"title"`
	Artist       string   `json:"artist"`
	Confidence   float64  `json:"confidence"`
	Reason       string   `json:"reason,omitempty"`
	Background   string   `json:"background,omitempty"`
	LyricSnippet string   `json:"lyric_snippet,omitempty"`
	Sources      []string `json:"sources,omitempty"`
}

// Answer 是解析后端返回的带引用回答。
type Answer struct {
	Text         string   `json:"text"`
	Sources      []string `json:"sources"`
	RelatedSongs []string `json:"related_songs"`
}

// ResolverOutput 是解析后端的结构化输出契约，所有字段即使为空也必须存在。
type ResolverOutput struct {
	ResponseType      string      `json:"response_type"` // search | answer | both
	OverallConfidence float64     `json:"overall_confidence"`
	Candidates        []Candidate `json:"candidates"`
	Answer            *Answer     `json:"answer,omitempty"`
	ShouldAskCrowd    bool        `json:"should_ask_crowd"`
	CrowdPrompt       string      `json:"crowd_prompt,omitempty"`
	FollowUpQuestion  string      `json:"follow_up_question,omitempty"`
	ConversationState string      `json:"conversation_state"`
}

// 入站请求的输入类型常量。
const (
	InputTypeText  = "text"
	InputTypeVoice = "voice"
	InputTypeImage = "image"
)

// ResolveRequest 是应用层发来的入站解析请求。
type ResolveRequest struct {
	ThreadID  uint   `json:"thread_id" binding:"required"`
	MessageID uint   `json:"message_id" binding:"required"`
	InputType string `json:"input_type" binding:"required"`
	Text      string `json:"text,omitempty"`
	MediaPath string `json:"media_path,omitempty"`
	AudioPath string `json:"audio_path,omitempty"`
	VideoPath string `json:"video_path,omitempty"`
}

// 出站响应的终态常量。
const (
	StatusDone     = "done"
	StatusRefining = "refining"
	StatusFailed   = "failed"
)

// ResolveResponse 是一轮解析的出站响应。
type ResolveResponse struct {
	Status            string      `json:"status"` // done | refining | failed
	ResponseType      string      `json:"response_type,omitempty"`
	Transcription     string      `json:"transcription,omitempty"`
	Candidates        []Candidate `json:"candidates"`
	Answer            *Answer     `json:"answer,omitempty"`
	FollowUpQuestion  string      `json:"follow_up_question,omitempty"`
	ConversationState string      `json:"conversation_state,omitempty"`
	Error             string      `json:"error,omitempty"`
}

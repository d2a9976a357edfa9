package model

// ConversationFlow 表示会话当前所处的流程阶段，每轮根据消息历史重新推导，不落库。
type ConversationFlow string

const (
	FlowInitial         ConversationFlow = "initial"
	FlowRefining        ConversationFlow = "refining"
	FlowFound           ConversationFlow = "found"
	FlowGeneralQuestion ConversationFlow = "general_question"
)

// 意图分类器的输出类型。
const (
	IntentConversation    = "conversation"
	IntentHumming         = "humming"
	IntentBackgroundAudio = "background_audio"
	IntentUnclear         = "unclear"
)

// IntentResult 是意图分类器的输出。
type IntentResult struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// 查询意图：解析后端据此决定走检索、答题还是两者兼有。
const (
	QueryIntentSearch   = "search"
	QueryIntentQuestion = "question"
	QueryIntentBoth     = "both"
)

// ExtractedContext 是从会话历史中提取出的结构化事实集。
// 逐请求重算、只读、不单独持久化；已提取的确定事实在后续轮次中单调累积，
// 除非被明确矛盾的新回答覆盖。
type ExtractedContext struct {
	Genre            string   `json:"genre,omitempty"`
	Era              string   `json:"era,omitempty"`
	Tempo            string   `json:"tempo,omitempty"`
	Mood             string   `json:"mood,omitempty"`
	ArtistHint       string   `json:"artist_hint,omitempty"`
	ArtistGender     string   `json:"artist_gender,omitempty"`
	ArtistType       string   `json:"artist_type,omitempty"`
	LyricFragment    string   `json:"lyric_fragment,omitempty"`
	Instruments      []string `json:"instruments,omitempty"`
	ListeningContext string   `json:"listening_context,omitempty"`

	// PriorQueries 保留最近 3 条原始查询。
	PriorQueries []string `json:"prior_queries,omitempty"`
	// RejectedCandidates 收集历史上置信度 < 0.6 的候选，格式 "标题 - 歌手"。
	RejectedCandidates []string `json:"rejected_candidates,omitempty"`
	// AskedQuestions 收集已问过的追问，用于避免重复提问。
	AskedQuestions []string `json:"asked_questions,omitempty"`
	// ConfirmedSongs 收集历史上置信度 ≥ 0.8 的识别结果，作为正向信号。
	ConfirmedSongs []string `json:"confirmed_songs,omitempty"`

	Flow ConversationFlow `json:"conversation_flow"`
}

// HasFacts 判断是否至少提取到了一个歌曲线索。
func (c *ExtractedContext) HasFacts() bool {
	return c.Genre != "" || c.Era != "" || c.Tempo != "" || c.Mood != "" ||
		c.ArtistHint != "" || c.ArtistGender != "" || c.ArtistType != "" ||
		c.LyricFragment != "" || len(c.Instruments) > 0 || c.ListeningContext != ""
}

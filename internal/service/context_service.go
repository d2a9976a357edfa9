package service

import (
	"fmt"
	"regexp"
	"shige-go/internal/model"
	"strings"
)

// ContextService 定义了会话上下文提取的接口。
// 提取必须是幂等且无副作用的：只读历史，不回写任何事实。
type ContextService interface {
	// Extract 按时间顺序扫描会话历史，构建结构化事实集与会话流程阶段。
	Extract(messages []model.Message) *model.ExtractedContext
	// DetectQueryIntent 对查询文本打分判定意图：search、question 或 both。
	DetectQueryIntent(query string, flow model.ConversationFlow) string
}

type contextService struct{}

// NewContextService 创建一个新的 ContextService 实例。
func NewContextService() ContextService {
	return &contextService{}
}

// 可提取的事实字段。
const (
	fieldGenre            = "genre"
	fieldEra              = "era"
	fieldTempo            = "tempo"
	fieldMood             = "mood"
	fieldArtistHint       = "artist_hint"
	fieldArtistGender     = "artist_gender"
	fieldArtistType       = "artist_type"
	fieldLyricFragment    = "lyric_fragment"
	fieldInstrument       = "instrument"
	fieldListeningContext = "listening_context"
)

// factRule 是一条声明式的事实匹配规则。
// value 非空时写入固定值；为空时写入正则的第一个捕获组。
type factRule struct {
	re    *regexp.Regexp
	field string
	value string
}

// factRules 是受控词表驱动的匹配规则表。调整词表只需要改这里，不碰提取逻辑。
var factRules = []factRule{
	// 曲风
	{regexp.MustCompile(`(?i)\b(pop|流行)\b`), fieldGenre, "pop"},
	{regexp.MustCompile(`(?i)\brock\b|摇滚`), fieldGenre, "rock"},
	{regexp.MustCompile(`(?i)\bjazz\b|爵士`), fieldGenre, "jazz"},
	{regexp.MustCompile(`(?i)\b(hip ?hop|rap)\b|说唱|嘻哈`), fieldGenre, "hip hop"},
	{regexp.MustCompile(`(?i)\bclassical\b|古典`), fieldGenre, "classical"},
	{regexp.MustCompile(`(?i)\b(electronic|edm|techno|house)\b|电子`), fieldGenre, "electronic"},
	{regexp.MustCompile(`(?i)\bcountry\b|乡村`), fieldGenre, "country"},
	{regexp.MustCompile(`(?i)\b(r&b|rnb|soul)\b`), fieldGenre, "r&b"},
	{regexp.MustCompile(`(?i)\bfolk\b|民谣`), fieldGenre, "folk"},
	{regexp.MustCompile(`(?i)\bmetal\b|金属`), fieldGenre, "metal"},
	{regexp.MustCompile(`(?i)\bblues\b|布鲁斯`), fieldGenre, "blues"},
	{regexp.MustCompile(`(?i)\breggae\b|雷鬼`), fieldGenre, "reggae"},

	// 年代
	{regexp.MustCompile(`\b((?:19|20)[0-9]0)s?\b`), fieldEra, ""},
	{regexp.MustCompile(`(?i)\b([5-9]0)s\b`), fieldEra, ""},
	{regexp.MustCompile(`(?i)\bsixties\b`), fieldEra, "60s"},
	{regexp.MustCompile(`(?i)\bseventies\b`), fieldEra, "70s"},
	{regexp.MustCompile(`(?i)\beighties\b`), fieldEra, "80s"},
	{regexp.MustCompile(`(?i)\bnineties\b`), fieldEra, "90s"},
	{regexp.MustCompile(`([五六七八九]十|[0-9]{2})年代`), fieldEra, ""},

	// 节奏
	{regexp.MustCompile(`(?i)\b(fast|upbeat|up-tempo|energetic beat)\b|快歌|节奏快`), fieldTempo, "fast"},
	{regexp.MustCompile(`(?i)\b(slow|ballad|mellow)\b|慢歌|抒情|节奏慢`), fieldTempo, "slow"},

	// 情绪
	{regexp.MustCompile(`(?i)\b(happy|cheerful|joyful)\b|欢快|开心`), fieldMood, "happy"},
	{regexp.MustCompile(`(?i)\b(sad|melancholy|melancholic|depressing)\b|悲伤|忧郁|伤感`), fieldMood, "sad"},
	{regexp.MustCompile(`(?i)\b(romantic|love song)\b|浪漫|情歌`), fieldMood, "romantic"},
	{regexp.MustCompile(`(?i)\b(chill|relaxing|calm)\b|放松|平静`), fieldMood, "chill"},
	{regexp.MustCompile(`(?i)\b(dark|angry|aggressive)\b|愤怒|阴暗`), fieldMood, "dark"},

	// 歌手线索
	{regexp.MustCompile(`(?i)\b(?:by|from artist|sounds like)\s+([A-Za-z][\w .'-]{1,40})`), fieldArtistHint, ""},
	{regexp.MustCompile(`(?i)\b(male (?:singer|voice|vocalist))\b|男声|男歌手`), fieldArtistGender, "male"},
	{regexp.MustCompile(`(?i)\b(female (?:singer|voice|vocalist))\b|女声|女歌手`), fieldArtistGender, "female"},
	{regexp.MustCompile(`(?i)\b(band|group|duo)\b|乐队|组合`), fieldArtistType, "band"},
	{regexp.MustCompile(`(?i)\b(solo (?:artist|singer))\b|独唱|个人歌手`), fieldArtistType, "solo"},

	// 歌词片段（引号内文本）
	{regexp.MustCompile(`"([^"]{4,120})"`), fieldLyricFragment, ""},
	{regexp.MustCompile(`“([^”]{4,120})”`), fieldLyricFragment, ""},
	{regexp.MustCompile(`(?i)\blyrics?\s+(?:go|like|say|are)\s+(.{4,120})`), fieldLyricFragment, ""},
	{regexp.MustCompile(`歌词是(.{2,60})`), fieldLyricFragment, ""},

	// 乐器
	{regexp.MustCompile(`(?i)\bguitar\b|吉他`), fieldInstrument, "guitar"},
	{regexp.MustCompile(`(?i)\bpiano\b|钢琴`), fieldInstrument, "piano"},
	{regexp.MustCompile(`(?i)\bviolin\b|小提琴`), fieldInstrument, "violin"},
	{regexp.MustCompile(`(?i)\bdrums?\b|鼓点`), fieldInstrument, "drums"},
	{regexp.MustCompile(`(?i)\bsax(?:ophone)?\b|萨克斯`), fieldInstrument, "saxophone"},
	{regexp.MustCompile(`(?i)\bsynth(?:esizer)?\b|合成器`), fieldInstrument, "synth"},

	// 收听场景
	{regexp.MustCompile(`(?i)\b(?:on the )?radio\b|电台|广播`), fieldListeningContext, "radio"},
	{regexp.MustCompile(`(?i)\b(?:in a )?(movie|film)\b|电影`), fieldListeningContext, "movie"},
	{regexp.MustCompile(`(?i)\b(tiktok|short video)\b|抖音|短视频`), fieldListeningContext, "short video"},
	{regexp.MustCompile(`(?i)\b(club|bar)\b|酒吧`), fieldListeningContext, "club"},
	{regexp.MustCompile(`(?i)\b(wedding)\b|婚礼`), fieldListeningContext, "wedding"},
	{regexp.MustCompile(`(?i)\b(video ?game|game soundtrack)\b|游戏`), fieldListeningContext, "game"},
	{regexp.MustCompile(`(?i)\b(caf[eé]|coffee shop)\b|咖啡`), fieldListeningContext, "cafe"},
}

// 候选消息的置信度档位：低于 rejectedBelow 视为被否决，不低于 confirmedAt 视为已确认。
const (
	rejectedBelow = 0.6
	confirmedAt   = 0.8
)

// Extract 按时间顺序扫描历史：紧跟在助手追问之后的用户消息按"对追问的回答"处理，
// 从中提取事实；其余用户文本按原始查询处理。同时收集被否决候选、已问追问和已确认识别。
func (s *contextService) Extract(messages []model.Message) *model.ExtractedContext {
	c := &model.ExtractedContext{Flow: model.FlowInitial}

	var queries []string
	lastWasFollowUp := false
	userTurns := 0
	assistantTurns := 0

	for _, m := range messages {
		switch m.Role {
		case model.RoleAssistant:
			assistantTurns++
			switch m.Kind {
			case model.KindFollowUp:
				if m.Content != "" {
					c.AskedQuestions = append(c.AskedQuestions, m.Content)
				}
				lastWasFollowUp = true
				continue
			case model.KindCandidate:
				label := fmt.Sprintf("%s - %s", m.Title, m.Artist)
				if m.Confidence < rejectedBelow {
					c.RejectedCandidates = append(c.RejectedCandidates, label)
				} else if m.Confidence >= confirmedAt {
					c.ConfirmedSongs = append(c.ConfirmedSongs, label)
				}
			}
			lastWasFollowUp = false

		case model.RoleUser:
			if m.Kind != model.KindText {
				continue
			}
			userTurns++
			if lastWasFollowUp {
				// 严格顺序配对：追问之后的第一条用户消息就是它的回答
				applyFactRules(m.Content, c)
			} else {
				queries = append(queries, m.Content)
			}
			lastWasFollowUp = false
		}
	}

	// 保留最近 3 条原始查询
	if len(queries) > 3 {
		queries = queries[len(queries)-3:]
	}
	c.PriorQueries = queries

	c.Flow = s.deriveFlow(c, queries, userTurns, assistantTurns)
	return c
}

// deriveFlow 每轮从历史内容推导会话流程阶段，不单独存储，避免存储状态与消息内容漂移。
func (s *contextService) deriveFlow(c *model.ExtractedContext, queries []string, userTurns, assistantTurns int) model.ConversationFlow {
	if len(c.ConfirmedSongs) > 0 {
		return model.FlowFound
	}
	if len(c.AskedQuestions) > 0 {
		return model.FlowRefining
	}
	if userTurns <= 1 && assistantTurns == 0 {
		return model.FlowInitial
	}
	// 没有过候选也没有过追问：看最近的查询是否是纯信息提问
	if len(queries) > 0 {
		latest := queries[len(queries)-1]
		if s.DetectQueryIntent(latest, model.FlowInitial) == model.QueryIntentQuestion {
			return model.FlowGeneralQuestion
		}
	}
	return model.FlowInitial
}

// applyFactRules 把规则表应用到一段文本上。后提取的非空值覆盖同字段的旧值
// （即被新回答矛盾时更新），空匹配绝不擦除已累积的事实。
func applyFactRules(text string, c *model.ExtractedContext) {
	for _, rule := range factRules {
		m := rule.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		value := rule.value
		if value == "" && len(m) > 1 {
			value = strings.TrimSpace(m[1])
		}
		if value == "" {
			continue
		}
		if rule.field == fieldEra {
			value = normalizeEra(value)
		}
		setFact(c, rule.field, value)
	}
}

// normalizeEra 把纯数字的年代捕获统一成带 s 后缀的写法，
// "80" 和 "eighties" 提取出的同一事实不会落成两种形态。
func normalizeEra(value string) string {
	value = strings.ToLower(value)
	for _, r := range value {
		if r < '0' || r > '9' {
			return value
		}
	}
	return value + "s"
}

func setFact(c *model.ExtractedContext, field, value string) {
	switch field {
	case fieldGenre:
		c.Genre = value
	case fieldEra:
		c.Era = value
	case fieldTempo:
		c.Tempo = value
	case fieldMood:
		c.Mood = value
	case fieldArtistHint:
		c.ArtistHint = value
	case fieldArtistGender:
		c.ArtistGender = value
	case fieldArtistType:
		c.ArtistType = value
	case fieldLyricFragment:
		c.LyricFragment = value
	case fieldInstrument:
		for _, ins := range c.Instruments {
			if ins == value {
				return
			}
		}
		c.Instruments = append(c.Instruments, value)
	case fieldListeningContext:
		c.ListeningContext = value
	}
}

// 意图打分词表。
var (
	searchKeywords = []string{
		"what song", "which song", "find", "identify", "name of", "called",
		"who sings", "who sang", "recognize", "这首歌叫", "什么歌", "找一首",
		"识别", "是谁唱的", "帮我找",
	}
	questionKeywords = []string{
		"why", "how come", "when was", "history", "meaning", "tell me about",
		"who is", "who was", "explain", "什么意思", "为什么", "介绍一下",
		"背景", "讲讲", "是什么时候",
	}
)

// DetectQueryIntent 对两张词表分别计分取高者；同分或双零时用会话流程决胜。
func (s *contextService) DetectQueryIntent(query string, flow model.ConversationFlow) string {
	lower := strings.ToLower(query)

	searchScore := 0
	for _, kw := range searchKeywords {
		if strings.Contains(lower, kw) {
			searchScore++
		}
	}
	questionScore := 0
	for _, kw := range questionKeywords {
		if strings.Contains(lower, kw) {
			questionScore++
		}
	}

	switch {
	case searchScore > questionScore:
		return model.QueryIntentSearch
	case questionScore > searchScore:
		return model.QueryIntentQuestion
	case searchScore > 0: // 同分且都命中
		return model.QueryIntentBoth
	}
	// 双零：由会话流程决胜
	if flow == model.FlowGeneralQuestion {
		return model.QueryIntentQuestion
	}
	return model.QueryIntentSearch
}

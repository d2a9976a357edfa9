package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"shige-go/internal/config"
	"shige-go/internal/model"
	"shige-go/pkg/es"
	"shige-go/pkg/llm"
	"shige-go/pkg/log"
	"strings"
	"time"
)

// ResolverInput 汇集一次解析后端调用所需的全部输入。
type ResolverInput struct {
	Query       string
	AudioHint   string
	Context     *model.ExtractedContext
	QueryIntent string // search | question | both
}

// ResolverService 定义了知识/检索后端的接口：
// 给定查询文本、结构化事实与历史，返回候选列表和/或带引用的回答。
type ResolverService interface {
	Resolve(ctx context.Context, in *ResolverInput) (*model.ResolverOutput, error)
}

type resolverService struct {
	llmClient llm.Client
}

// NewResolverService 创建一个新的 ResolverService 实例。
func NewResolverService(llmClient llm.Client) ResolverService {
	return &resolverService{llmClient: llmClient}
}

const resolverSystemPrompt = `你是一个歌曲解析助手。根据用户的查询、已知线索和会话历史，识别歌曲或回答音乐问题。
必须只输出一个 JSON 对象，所有字段即使为空也要存在：
{
  "response_type": "search|answer|both",
  "overall_confidence": 0.0到1.0,
  "candidates": [{"title": "", "artist": "", "confidence": 0.0, "reason": "", "background": "", "lyric_snippet": "", "sources": []}],
  "answer": {"text": "", "sources": [], "related_songs": []},
  "should_ask_crowd": false,
  "crowd_prompt": "",
  "follow_up_question": "",
  "conversation_state": ""
}
追问策略：当置信不足时给出一个追问。按信息增益排序选择追问内容，价值从高到低依次是：
歌词片段 > 曲风 > 年代 > 节奏/情绪 > 歌手线索 > 乐器。
绝不重复"已问过的追问"里的问题；绝不再推荐"已否决候选"里的歌；
追问措辞要引用已知线索（例如"既然是 80 年代的摇滚，你还记得某句歌词吗？"）。
当 overall_confidence 低于 0.65 且没有强候选时，should_ask_crowd 必须为 true 并给出社区求助文案。`

// Resolve 组装提示词并调用大模型，解析并校验其结构化输出。
// 输出无法解析时返回 model.ErrParse 包装的错误，由管道清理状态占位后按失败轮上报。
func (s *resolverService) Resolve(ctx context.Context, in *ResolverInput) (*model.ResolverOutput, error) {
	systemMsg := s.buildSystemMessage(in)
	userMsg := in.Query
	if in.AudioHint != "" {
		userMsg = in.Query + "\n" + in.AudioHint
	}

	raw, err := s.llmClient.CompleteJSON(ctx, []llm.Message{
		{Role: "system", Content: systemMsg},
		{Role: "user", Content: userMsg},
	}, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", model.ErrUpstreamTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", model.ErrUpstreamFailure, err)
	}

	var out model.ResolverOutput
	if err := json.Unmarshal([]byte(llm.ExtractJSONBlock(raw)), &out); err != nil {
		log.Errorf("[Resolver] 输出不是合法 JSON: %v, raw_len: %d", err, len(raw))
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}

	s.enforceContract(&out, in)
	return &out, nil
}

// buildSystemMessage 把结构化事实、历史提示与策略拼装成 system 消息。
func (s *resolverService) buildSystemMessage(in *ResolverInput) string {
	var sys strings.Builder
	sys.WriteString(resolverSystemPrompt)
	sys.WriteString("\n\n")
	sys.WriteString("<<CONTEXT>>\n")
	sys.WriteString(s.buildContextBlock(in))
	sys.WriteString("<<END>>")
	return sys.String()
}

// buildContextBlock 序列化已知事实和避免列表。
func (s *resolverService) buildContextBlock(in *ResolverInput) string {
	c := in.Context
	var b strings.Builder

	b.WriteString(fmt.Sprintf("用户意图: %s\n", in.QueryIntent))
	b.WriteString(fmt.Sprintf("会话阶段: %s\n", c.Flow))

	writeIf := func(label, v string) {
		if v != "" {
			b.WriteString(fmt.Sprintf("%s: %s\n", label, v))
		}
	}
	writeIf("曲风", c.Genre)
	writeIf("年代", c.Era)
	writeIf("节奏", c.Tempo)
	writeIf("情绪", c.Mood)
	writeIf("歌手线索", c.ArtistHint)
	writeIf("歌手性别", c.ArtistGender)
	writeIf("歌手类型", c.ArtistType)
	writeIf("歌词片段", c.LyricFragment)
	writeIf("收听场景", c.ListeningContext)
	if len(c.Instruments) > 0 {
		b.WriteString(fmt.Sprintf("乐器: %s\n", strings.Join(c.Instruments, ", ")))
	}
	if len(c.PriorQueries) > 0 {
		b.WriteString(fmt.Sprintf("历史查询: %s\n", strings.Join(c.PriorQueries, " | ")))
	}
	if len(c.RejectedCandidates) > 0 {
		b.WriteString(fmt.Sprintf("已否决候选(不要再推荐): %s\n", strings.Join(c.RejectedCandidates, " | ")))
	}
	if len(c.AskedQuestions) > 0 {
		b.WriteString(fmt.Sprintf("已问过的追问(不要重复): %s\n", strings.Join(c.AskedQuestions, " | ")))
	}
	if len(c.ConfirmedSongs) > 0 {
		b.WriteString(fmt.Sprintf("已确认识别: %s\n", strings.Join(c.ConfirmedSongs, " | ")))
	}

	// 歌词片段存在时，用歌词索引做一轮检索，命中结果作为提示折叠进上下文
	if c.LyricFragment != "" {
		hits := s.searchLyrics(c.LyricFragment)
		for i, h := range hits {
			b.WriteString(fmt.Sprintf("歌词检索命中[%d]: %s - %s (score %.1f)\n", i+1, h.Title, h.Artist, h.Score))
		}
	}
	return b.String()
}

// searchLyrics 按歌词片段查询 Elasticsearch 索引；检索失败只降级，不影响解析主路径。
func (s *resolverService) searchLyrics(fragment string) []es.LyricHit {
	if es.ESClient == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hits, err := es.SearchByLyricFragment(ctx, config.Conf.Lyrics.IndexName, fragment, 3)
	if err != nil {
		log.Warnf("[Resolver] 歌词检索失败，跳过补充: %v", err)
		return nil
	}
	return hits
}

// enforceContract 对模型输出做本地兜底校验：
// 过滤已否决候选，压掉重复追问，并强制执行社区升级规则。
func (s *resolverService) enforceContract(out *model.ResolverOutput, in *ResolverInput) {
	switch out.ResponseType {
	case "search", "answer", "both":
	default:
		if in.QueryIntent == model.QueryIntentQuestion {
			out.ResponseType = "answer"
		} else {
			out.ResponseType = "search"
		}
	}

	// 已否决候选不允许再出现
	if len(in.Context.RejectedCandidates) > 0 && len(out.Candidates) > 0 {
		rejected := make(map[string]bool, len(in.Context.RejectedCandidates))
		for _, r := range in.Context.RejectedCandidates {
			rejected[strings.ToLower(r)] = true
		}
		kept := out.Candidates[:0]
		for _, cand := range out.Candidates {
			key := strings.ToLower(fmt.Sprintf("%s - %s", cand.Title, cand.Artist))
			if rejected[key] {
				log.Infof("[Resolver] 过滤已否决候选: %s - %s", cand.Title, cand.Artist)
				continue
			}
			kept = append(kept, cand)
		}
		out.Candidates = kept
	}

	// 已问过的追问不允许重复
	if out.FollowUpQuestion != "" {
		for _, asked := range in.Context.AskedQuestions {
			if strings.EqualFold(strings.TrimSpace(asked), strings.TrimSpace(out.FollowUpQuestion)) {
				log.Infof("[Resolver] 压掉重复追问: %s", out.FollowUpQuestion)
				out.FollowUpQuestion = ""
				break
			}
		}
	}

	// 低置信且无强候选时必须升级社区求助
	if out.OverallConfidence < CrowdConfidenceThreshold && !hasStrongCandidate(out.Candidates) {
		out.ShouldAskCrowd = true
		if out.CrowdPrompt == "" {
			out.CrowdPrompt = fmt.Sprintf("求助：有人知道这首歌吗？线索：%s", in.Query)
		}
	}
}

func hasStrongCandidate(candidates []model.Candidate) bool {
	for _, c := range candidates {
		if c.Confidence >= HighConfidenceThreshold {
			return true
		}
	}
	return false
}

// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"
	"shige-go/internal/config"
	"shige-go/internal/model"
	"shige-go/pkg/llm"
	"shige-go/pkg/log"
	"strings"
	"time"
)

// IntentService 定义了意图分类的接口。
// 对转写文本判断用户是在对话、哼唱还是录了一段背景音。
type IntentService interface {
	// Classify 对非空转写文本分类。远程调用失败或超时时回退到启发式规则，
	// 绝不向上抛错，只做降级。空文本由调用方直接按需要音频识别处理，不进入分类。
	Classify(ctx context.Context, text string) model.IntentResult
}

type intentService struct {
	llmClient llm.Client
}

// NewIntentService 创建一个新的 IntentService 实例。
func NewIntentService(llmClient llm.Client) IntentService {
	return &intentService{llmClient: llmClient}
}

const intentSystemPrompt = `你是一个音乐应用的意图分类器。用户说的话已被转写为文本。
请判断文本属于哪一类，只输出 JSON，不要输出其他内容：
{"type": "conversation|humming|background_audio|unclear", "confidence": 0.0到1.0, "reasoning": "一句话理由"}
- conversation: 正常的提问或描述，例如"帮我找一首周杰伦的歌"
- humming: 哼唱、无意义音节，例如"na na na da da dum"
- background_audio: 文本像是环境声或歌曲本身的歌词片段
- unclear: 无法判断`

// Classify 先尝试大模型分类，失败时回退到启发式规则。
func (s *intentService) Classify(ctx context.Context, text string) model.IntentResult {
	timeout := time.Duration(config.Conf.Pipeline.ClassifyTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := s.llmClient.CompleteJSON(callCtx, []llm.Message{
		{Role: "system", Content: intentSystemPrompt},
		{Role: "user", Content: text},
	}, nil)
	if err != nil {
		log.Warnf("[IntentService] 分类调用失败，回退启发式规则: %v", err)
		return ClassifyHeuristic(text)
	}

	var result model.IntentResult
	if err := json.Unmarshal([]byte(llm.ExtractJSONBlock(raw)), &result); err != nil {
		log.Warnf("[IntentService] 分类输出无法解析，回退启发式规则: %v", err)
		return ClassifyHeuristic(text)
	}
	if !isKnownIntent(result.Type) {
		log.Warnf("[IntentService] 分类输出包含未知类型 '%s'，回退启发式规则", result.Type)
		return ClassifyHeuristic(text)
	}

	log.Infof("[IntentService] 分类完成, type: %s, confidence: %.2f", result.Type, result.Confidence)
	return result
}

func isKnownIntent(t string) bool {
	switch t {
	case model.IntentConversation, model.IntentHumming, model.IntentBackgroundAudio, model.IntentUnclear:
		return true
	}
	return false
}

// fillerSyllables 是哼唱里常见的填充音节。
var fillerSyllables = map[string]bool{
	"na": true, "la": true, "da": true, "dum": true, "hmm": true, "hm": true,
	"mm": true, "doo": true, "du": true, "ba": true, "pa": true, "ta": true,
	"oh": true, "ooh": true, "ah": true, "aah": true, "嗯": true, "啦": true,
	"哒": true, "噜": true, "呣": true,
}

// ClassifyHeuristic 是确定性的兜底分类：远程调用失败时它就是权威结论。
// 词数少于 5，或填充音节出现 3 次以上，视为需要音频识别；否则按对话处理。
func ClassifyHeuristic(text string) model.IntentResult {
	words := strings.Fields(strings.ToLower(text))

	fillerCount := 0
	for _, w := range words {
		w = strings.Trim(w, ".,!?~-")
		if fillerSyllables[w] {
			fillerCount++
		}
	}

	if len(words) < 5 || fillerCount >= 3 {
		return model.IntentResult{
			Type:       model.IntentHumming,
			Confidence: 0.5,
			Reasoning:  "启发式规则：文本过短或含大量填充音节",
		}
	}
	return model.IntentResult{
		Type:       model.IntentConversation,
		Confidence: 0.5,
		Reasoning:  "启发式规则：文本像正常对话",
	}
}

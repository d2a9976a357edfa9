package service

import (
	"context"
	"fmt"
	"shige-go/internal/config"
	"shige-go/pkg/log"
	"shige-go/pkg/recognizer"
	"sync"
	"time"
)

// 指纹识别的置信度阈值策略。
const (
	// HighConfidenceThreshold 达到即短路返回，不再调用解析后端。
	HighConfidenceThreshold = 0.7
	// FoundConfidenceThreshold 达到即认为歌曲已找到，会话进入 found 阶段。
	FoundConfidenceThreshold = 0.8
	// CrowdConfidenceThreshold 低于它且没有强候选时必须升级社区求助。
	CrowdConfidenceThreshold = 0.65
)

// ConsensusResult 是多路识别后端合并后的共识结果。
type ConsensusResult struct {
	// Best 是置信度最高的成功结果；所有后端都失败时为 nil。
	Best *recognizer.Result
	// Hint 是中等置信度下折叠进查询文本的提示语，高置信短路时为空。
	Hint string
}

// ConsensusService 定义了识别后端共识的接口。
type ConsensusService interface {
	// Identify 并发调用全部识别后端并合并结果。
	// 单路失败或超时被吸收，不阻塞其他路；部分成功在管道层面仍算成功。
	Identify(ctx context.Context, audio []byte) *ConsensusResult
}

type consensusService struct {
	recognizers []recognizer.Recognizer
	timeout     time.Duration
}

// NewConsensusService 创建一个新的 ConsensusService 实例。
func NewConsensusService(recognizers ...recognizer.Recognizer) ConsensusService {
	timeout := time.Duration(config.Conf.Recognizer.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &consensusService{recognizers: recognizers, timeout: timeout}
}

// Identify 对每路后端各起一个 goroutine，各自携带独立超时，等待全部结束后比较置信度。
// 必须等全部结束而不是首个完成，因为两路结果要相互比较。
func (s *consensusService) Identify(ctx context.Context, audio []byte) *ConsensusResult {
	results := make([]*recognizer.Result, len(s.recognizers))

	var wg sync.WaitGroup
	for i, rec := range s.recognizers {
		wg.Add(1)
		go func(i int, rec recognizer.Recognizer) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			result, err := rec.Identify(callCtx, audio)
			if err != nil {
				// 失败记录为类型化结果，绝不向上传播
				log.Warnf("[Consensus] 后端 %s 识别失败: %v", rec.Name(), err)
				return
			}
			results[i] = result
		}(i, rec)
	}
	wg.Wait()

	var best *recognizer.Result
	for _, r := range results {
		if r == nil || !r.Success {
			continue
		}
		if best == nil || r.Confidence > best.Confidence {
			best = r
		}
	}

	if best == nil {
		log.Infof("[Consensus] 全部识别后端失败或无结果")
		return &ConsensusResult{}
	}

	log.Infof("[Consensus] 共识结果: %s - %s, confidence: %.2f", best.Title, best.Artist, best.Confidence)

	out := &ConsensusResult{Best: best}
	if best.Confidence > 0 && best.Confidence < HighConfidenceThreshold {
		// 中等置信度不短路，作为提示语折叠进解析查询
		out.Hint = fmt.Sprintf("我猜你说的可能是《%s》(%s)，请帮我确认。", best.Title, best.Artist)
	}
	return out
}

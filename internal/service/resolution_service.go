package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"shige-go/internal/config"
	"shige-go/internal/model"
	"shige-go/internal/repository"
	"shige-go/pkg/kafka"
	"shige-go/pkg/log"
	"shige-go/pkg/recognizer"
	"shige-go/pkg/storage"
	"shige-go/pkg/tasks"
	"shige-go/pkg/transcribe"
	"sort"
	"strings"
	"time"
)

// StageFunc 在管道进入新阶段时被回调，用于向 WebSocket 客户端推送进度。可以为 nil。
type StageFunc func(stage string)

// 管道阶段名。
const (
	StageTranscribing = "transcribing"
	StageClassifying  = "classifying"
	StageRecognizing  = "recognizing"
	StageResolving    = "resolving"
)

// ResolutionService 定义了一轮歌曲解析的编排接口。
type ResolutionService interface {
	// Resolve 处理一个入站解析请求并返回终态响应。
	// 除输入校验错误外，管道内部的失败被降级或以 failed 响应返回；
	// 无论成功失败，状态占位消息都会被清理。
	Resolve(ctx context.Context, userID uint, req *model.ResolveRequest, notify StageFunc) (*model.ResolveResponse, error)
}

type resolutionService struct {
	threadRepo       repository.ThreadRepository
	messageRepo      repository.MessageRepository
	stashRepo        repository.StashRepository
	sessionRepo      repository.SessionRepository
	intentService    IntentService
	contextService   ContextService
	consensusService ConsensusService
	resolverService  ResolverService
	transcriber      transcribe.Client

	// 可注入的外设调用，测试时替换
	fetchObject  func(ctx context.Context, bucket, object string) ([]byte, error)
	produceCrowd func(task tasks.CrowdEscalationTask) error
}

// NewResolutionService 创建一个新的 ResolutionService 实例。
func NewResolutionService(
	threadRepo repository.ThreadRepository,
	messageRepo repository.MessageRepository,
	stashRepo repository.StashRepository,
	sessionRepo repository.SessionRepository,
	intentService IntentService,
	contextService ContextService,
	consensusService ConsensusService,
	resolverService ResolverService,
	transcriber transcribe.Client,
) ResolutionService {
	return &resolutionService{
		threadRepo:       threadRepo,
		messageRepo:      messageRepo,
		stashRepo:        stashRepo,
		sessionRepo:      sessionRepo,
		intentService:    intentService,
		contextService:   contextService,
		consensusService: consensusService,
		resolverService:  resolverService,
		transcriber:      transcriber,
		fetchObject:      storage.FetchObjectBytes,
		produceCrowd:     kafka.ProduceCrowdTask,
	}
}

// stageStatusText 返回管道阶段对应的占位文案；空串表示保持原文案不变。
func stageStatusText(stage string) string {
	switch stage {
	case StageTranscribing:
		return "正在转写…"
	case StageRecognizing:
		return "正在识别…"
	case StageResolving:
		return "正在搜索…"
	}
	return ""
}

// statusText 返回不同输入类型对应的状态占位文案。
func statusText(inputType string) string {
	switch inputType {
	case model.InputTypeVoice:
		return "正在识别…"
	case model.InputTypeImage:
		return "正在思考…"
	default:
		return "正在搜索…"
	}
}

// Resolve 按严格的阶段顺序执行一轮解析：
// 转写 → 意图分类 → 识别/解析 → 去重持久化 → 状态清理。只有两路识别器彼此并发。
func (s *resolutionService) Resolve(ctx context.Context, userID uint, req *model.ResolveRequest, notify StageFunc) (*model.ResolveResponse, error) {
	if notify == nil {
		notify = func(string) {}
	}

	// 1. 入站校验：消息必须已存在，缺失是 NotFound 而非崩溃
	switch req.InputType {
	case model.InputTypeText, model.InputTypeVoice, model.InputTypeImage:
	default:
		return nil, fmt.Errorf("%w: 未知的输入类型 '%s'", model.ErrInput, req.InputType)
	}
	thread, err := s.threadRepo.GetThread(req.ThreadID)
	if err != nil {
		return nil, err
	}
	if thread.UserID != userID {
		return nil, model.ErrNotFound
	}
	userMsg, err := s.messageRepo.GetMessage(req.MessageID)
	if err != nil {
		return nil, err
	}
	if userMsg.ThreadID != req.ThreadID || userMsg.Role != model.RoleUser {
		return nil, model.ErrNotFound
	}

	// 2. 会话互斥：同一会话同时只允许一轮解析
	locked, err := s.sessionRepo.AcquireResolutionLock(ctx, req.ThreadID, 2*time.Minute)
	if err != nil {
		// Redis 异常时退化为数据库侧判断：会话里还挂着状态占位就视为有一轮在跑
		log.Warnf("[Resolution] 获取会话锁失败，改用状态消息判断: %v", err)
		if pending, ferr := s.messageRepo.FindStatusMessage(req.ThreadID); ferr == nil && pending != nil {
			return nil, model.ErrThreadBusy
		}
	} else if !locked {
		return nil, model.ErrThreadBusy
	} else {
		defer func() {
			_ = s.sessionRepo.ReleaseResolutionLock(context.Background(), req.ThreadID)
		}()
	}

	// 3. 写入状态占位消息；离开函数前无条件清理，绝不把"搜索中…"留在会话里
	status := &model.Message{
		ThreadID: req.ThreadID,
		Role:     model.RoleAssistant,
		Kind:     model.KindStatus,
		Content:  statusText(req.InputType),
	}
	if err := s.messageRepo.CreateMessage(status); err != nil {
		return nil, fmt.Errorf("写入状态消息失败: %w", err)
	}
	// 阶段推进时同步更新占位文案，长耗时轮次里用户能看到进展
	baseNotify := notify
	notify = func(stage string) {
		baseNotify(stage)
		if text := stageStatusText(stage); text != "" {
			if err := s.messageRepo.UpdateMessageContent(status.ID, text); err != nil {
				log.Warnf("[Resolution] 更新状态消息失败: %v", err)
			}
		}
	}

	statusCleaned := false
	cleanupStatus := func() {
		if statusCleaned {
			return
		}
		statusCleaned = true
		if err := s.messageRepo.DeleteMessage(status.ID); err != nil {
			log.Errorf("[Resolution] 清理状态消息失败, message_id: %d, err: %v", status.ID, err)
		}
	}
	defer cleanupStatus()

	// 4. 取媒体字节并转写
	queryText := strings.TrimSpace(req.Text)
	if queryText == "" && userMsg.Kind == model.KindText {
		queryText = strings.TrimSpace(userMsg.Content)
	}

	audio, mediaURL, fetchErr := s.fetchMedia(ctx, req)
	if fetchErr != nil {
		if errors.Is(fetchErr, model.ErrInput) {
			return nil, fetchErr
		}
		// 媒体拿不到且没有文本可用时，这一轮没有任何输入，按终态失败处理
		if queryText == "" {
			return s.failTurn(req.ThreadID, model.NewResolutionError("fetch", fetchErr))
		}
		log.Warnf("[Resolution] 媒体下载失败，退化为纯文本解析: %v", fetchErr)
	}

	transcription := ""
	if len(audio) > 0 {
		notify(StageTranscribing)
		t, err := s.transcriber.Transcribe(ctx, audio)
		if err != nil {
			// 转写失败只降级：意图决策交给确定性启发式
			log.Warnf("[Resolution] 转写失败，降级处理: %v", err)
		} else {
			transcription = strings.TrimSpace(t)
		}
	}

	// 5. 意图分类。空转写等价于 background_audio，不调用分类器
	needsRecognition := false
	if len(audio) > 0 {
		if transcription == "" {
			needsRecognition = true
		} else {
			notify(StageClassifying)
			intent := s.intentService.Classify(ctx, transcription)
			switch intent.Type {
			case model.IntentHumming, model.IntentBackgroundAudio, model.IntentUnclear:
				needsRecognition = true
			}
		}
	}

	// 6. 历史与上下文：逐请求重算，只读
	history, err := s.messageRepo.ListByThread(req.ThreadID)
	if err != nil {
		return s.failTurn(req.ThreadID, model.NewResolutionError("history", err))
	}
	ectx := s.contextService.Extract(history)

	// 7. 识别路径
	audioHint := ""
	if needsRecognition {
		notify(StageRecognizing)
		consensus := s.consensusService.Identify(ctx, audio)
		if consensus.Best != nil && consensus.Best.Confidence >= HighConfidenceThreshold {
			// 高置信短路：跳过解析后端，直接落盘返回
			return s.finishHighConfidence(ctx, userID, req, consensus.Best, transcription, cleanupStatus)
		}
		if consensus.Best != nil {
			audioHint = consensus.Hint
		} else if transcription == "" && queryText == "" {
			// 两路全失败且无任何文本：给出澄清追问，这不是错误
			return s.finishClarification(ctx, req, ectx, cleanupStatus)
		}
	}

	if queryText == "" {
		queryText = transcription
	}
	if req.InputType == model.InputTypeImage && mediaURL != "" {
		queryText = strings.TrimSpace(queryText + "\n(用户上传了一张图片: " + mediaURL + ")")
	}

	// 8. 解析后端
	queryIntent := s.contextService.DetectQueryIntent(queryText, ectx.Flow)
	notify(StageResolving)
	out, err := s.resolverService.Resolve(ctx, &ResolverInput{
		Query:       queryText,
		AudioHint:   audioHint,
		Context:     ectx,
		QueryIntent: queryIntent,
	})
	if err != nil {
		return s.failTurn(req.ThreadID, model.NewResolutionError("resolve", err))
	}

	// 9. 去重持久化与收尾
	return s.persistOutcome(ctx, userID, req, out, ectx, transcription, cleanupStatus)
}

// fetchMedia 按输入类型从对象存储取回原始字节；图片只取签名 URL，不取字节。
func (s *resolutionService) fetchMedia(ctx context.Context, req *model.ResolveRequest) ([]byte, string, error) {
	bucket := config.Conf.MinIO.BucketName
	switch req.InputType {
	case model.InputTypeVoice:
		path := req.AudioPath
		if path == "" {
			path = req.VideoPath
		}
		if path == "" {
			return nil, "", fmt.Errorf("%w: voice 请求缺少 audio_path", model.ErrInput)
		}
		audio, err := s.fetchObject(ctx, bucket, path)
		return audio, "", err
	case model.InputTypeImage:
		if req.MediaPath == "" {
			return nil, "", fmt.Errorf("%w: image 请求缺少 media_path", model.ErrInput)
		}
		url, err := storage.GetPresignedURL(bucket, req.MediaPath, 10*time.Minute)
		return nil, url, err
	default:
		return nil, "", nil
	}
}

// failTurn 构造终态失败响应。状态占位由 defer 清理；补一条可见的失败消息，
// 保证会话不会只剩一个占位。
func (s *resolutionService) failTurn(threadID uint, resErr *model.ResolutionError) (*model.ResolveResponse, error) {
	failMsg := &model.Message{
		ThreadID: threadID,
		Role:     model.RoleAssistant,
		Kind:     model.KindText,
		Content:  "抱歉，这一轮没能完成，请再试一次。",
	}
	if err := s.messageRepo.CreateMessage(failMsg); err != nil {
		log.Errorf("[Resolution] 写入失败提示消息失败: %v", err)
	}
	return &model.ResolveResponse{
		Status:     model.StatusFailed,
		Candidates: []model.Candidate{},
		Error:      resErr.Error(),
	}, resErr
}

// finishHighConfidence 处理识别器高置信短路：跳过解析后端直接落盘。
func (s *resolutionService) finishHighConfidence(ctx context.Context, userID uint, req *model.ResolveRequest, best *recognizer.Result, transcription string, cleanupStatus func()) (*model.ResolveResponse, error) {
	cand := model.Candidate{
		Title:      best.Title,
		Artist:     best.Artist,
		Confidence: best.Confidence,
		Reason:     "音频指纹识别命中",
		Sources:    best.ExternalLinks,
	}
	s.persistCandidates(req.ThreadID, []model.Candidate{cand})
	cleanupStatus()
	s.upsertStash(userID, req.ThreadID, cand)
	s.touchThread(ctx, req)

	log.Infof("[Resolution] 高置信识别短路: %s - %s (%.2f)", best.Title, best.Artist, best.Confidence)
	return &model.ResolveResponse{
		Status:            model.StatusDone,
		ResponseType:      "search",
		Transcription:     transcription,
		Candidates:        []model.Candidate{cand},
		ConversationState: string(model.FlowFound),
	}, nil
}

// finishClarification 处理"空转写且全部识别失败"：返回澄清追问而不是错误。
func (s *resolutionService) finishClarification(ctx context.Context, req *model.ResolveRequest, ectx *model.ExtractedContext, cleanupStatus func()) (*model.ResolveResponse, error) {
	asked := make(map[string]bool, len(ectx.AskedQuestions))
	for _, q := range ectx.AskedQuestions {
		asked[q] = true
	}
	question := "我没能识别出来。你能再哼一段，或者描述一下歌词、歌手或曲风吗？"
	if asked[question] {
		question = "这次还是没听清。方便换个方式描述吗？比如它出现在什么场景里？"
	}
	// 两个澄清问法都问过时只在响应里复述，不再落第三条重复追问
	if !asked[question] {
		s.persistFollowUp(req.ThreadID, question)
	}
	cleanupStatus()
	s.touchThread(ctx, req)

	return &model.ResolveResponse{
		Status:            model.StatusRefining,
		ResponseType:      "search",
		Candidates:        []model.Candidate{},
		FollowUpQuestion:  question,
		ConversationState: string(model.FlowRefining),
	}, nil
}

// persistOutcome 执行去重、落盘、状态清理、暂存更新与社区升级。
func (s *resolutionService) persistOutcome(ctx context.Context, userID uint, req *model.ResolveRequest, out *model.ResolverOutput, ectx *model.ExtractedContext, transcription string, cleanupStatus func()) (*model.ResolveResponse, error) {
	candidates := dedupeCandidates(out.Candidates)

	hasAnswer := out.Answer != nil && strings.TrimSpace(out.Answer.Text) != ""
	if len(candidates) == 0 && !hasAnswer && out.FollowUpQuestion == "" {
		// 软性"无匹配"：不是异常，清理状态后如实上报
		noMatch := &model.Message{
			ThreadID: req.ThreadID,
			Role:     model.RoleAssistant,
			Kind:     model.KindText,
			Content:  "没有找到匹配的歌曲。",
		}
		if err := s.messageRepo.CreateMessage(noMatch); err != nil {
			log.Errorf("[Resolution] 写入无匹配消息失败: %v", err)
		}
		cleanupStatus()
		s.touchThread(ctx, req)
		return &model.ResolveResponse{
			Status:            model.StatusDone,
			ResponseType:      out.ResponseType,
			Transcription:     transcription,
			Candidates:        []model.Candidate{},
			ConversationState: string(ectx.Flow),
			Error:             model.ErrNoResult.Error(),
		}, nil
	}

	s.persistCandidates(req.ThreadID, candidates)

	if hasAnswer {
		sources, _ := json.Marshal(out.Answer.Sources)
		answerMsg := &model.Message{
			ThreadID: req.ThreadID,
			Role:     model.RoleAssistant,
			Kind:     model.KindAnswer,
			Content:  out.Answer.Text,
			Sources:  string(sources),
		}
		if err := s.messageRepo.CreateMessage(answerMsg); err != nil {
			log.Errorf("[Resolution] 写入回答消息失败: %v", err)
		}
	}

	if out.FollowUpQuestion != "" {
		s.persistFollowUp(req.ThreadID, out.FollowUpQuestion)
	}

	// 契约：候选/回答/追问写完后，立刻删除状态占位
	cleanupStatus()

	// 最优候选达到高置信阈值时更新暂存记录
	if len(candidates) > 0 && candidates[0].Confidence >= HighConfidenceThreshold {
		s.upsertStash(userID, req.ThreadID, candidates[0])
	}

	// 社区升级走 Kafka 异步处理；事件 ID 由 (thread, message) 决定，保证至多一帖
	if out.ShouldAskCrowd {
		task := tasks.CrowdEscalationTask{
			EventID:  fmt.Sprintf("resolve-%d-%d", req.ThreadID, req.MessageID),
			ThreadID: req.ThreadID,
			UserID:   userID,
			Prompt:   out.CrowdPrompt,
		}
		if err := s.produceCrowd(task); err != nil {
			log.Errorf("[Resolution] 投递社区求助任务失败: %v", err)
		}
	}

	s.touchThread(ctx, req)

	status := model.StatusDone
	state := string(ectx.Flow)
	strong := len(candidates) > 0 && candidates[0].Confidence >= HighConfidenceThreshold
	if strong {
		state = string(model.FlowFound)
	}
	followUp := out.FollowUpQuestion
	if strong || hasAnswer {
		// 已有确定结果或完整回答时不再追问
		followUp = ""
	} else if followUp != "" {
		status = model.StatusRefining
		state = string(model.FlowRefining)
	}

	return &model.ResolveResponse{
		Status:            status,
		ResponseType:      out.ResponseType,
		Transcription:     transcription,
		Candidates:        candidates,
		Answer:            out.Answer,
		FollowUpQuestion:  followUp,
		ConversationState: state,
	}, nil
}

// persistCandidates 将候选写入消息表：先读已存在键做快路径跳过，
// 再依赖唯一索引条件插入兜底，保证同一 (title,artist) 在会话内至多一条消息。
func (s *resolutionService) persistCandidates(threadID uint, candidates []model.Candidate) {
	existing := map[string]bool{}
	if persisted, err := s.messageRepo.ListCandidates(threadID); err == nil {
		for _, m := range persisted {
			existing[candidateKey(m.Title, m.Artist)] = true
		}
	} else {
		log.Warnf("[Resolution] 读取已持久化候选失败，仅依赖唯一索引去重: %v", err)
	}

	for _, cand := range candidates {
		key := candidateKey(cand.Title, cand.Artist)
		if existing[key] {
			// 已有同键消息：保持原行不动，即使这次置信度更高
			log.Infof("[Resolution] 候选已存在，跳过: %s - %s", cand.Title, cand.Artist)
			continue
		}
		titleKey := strings.ToLower(strings.TrimSpace(cand.Title))
		artistKey := strings.ToLower(strings.TrimSpace(cand.Artist))
		threadKey := threadID
		sources, _ := json.Marshal(cand.Sources)
		msg := &model.Message{
			ThreadID:     threadID,
			Role:         model.RoleAssistant,
			Kind:         model.KindCandidate,
			Content:      fmt.Sprintf("可能是《%s》- %s（置信度 %.0f%%）", cand.Title, cand.Artist, cand.Confidence*100),
			Title:        cand.Title,
			Artist:       cand.Artist,
			TitleKey:     &titleKey,
			ArtistKey:    &artistKey,
			ThreadKey:    &threadKey,
			Confidence:   cand.Confidence,
			Reason:       cand.Reason,
			LyricSnippet: cand.LyricSnippet,
			Sources:      string(sources),
		}
		inserted, err := s.messageRepo.CreateCandidateIfAbsent(msg)
		if err != nil {
			log.Errorf("[Resolution] 写入候选消息失败: %v", err)
			continue
		}
		if inserted {
			existing[key] = true
		}
	}
}

func (s *resolutionService) persistFollowUp(threadID uint, question string) {
	msg := &model.Message{
		ThreadID: threadID,
		Role:     model.RoleAssistant,
		Kind:     model.KindFollowUp,
		Content:  question,
	}
	if err := s.messageRepo.CreateMessage(msg); err != nil {
		log.Errorf("[Resolution] 写入追问消息失败: %v", err)
	}
}

func (s *resolutionService) upsertStash(userID, threadID uint, cand model.Candidate) {
	record := &model.StashRecord{
		UserID:       userID,
		ThreadID:     threadID,
		Title:        cand.Title,
		Artist:       cand.Artist,
		Confidence:   cand.Confidence,
		LyricSnippet: cand.LyricSnippet,
	}
	if err := s.stashRepo.Upsert(record); err != nil {
		log.Errorf("[Resolution] 更新暂存记录失败: %v", err)
	}
}

// touchThread 刷新会话活跃时间并记录最近查询。
func (s *resolutionService) touchThread(ctx context.Context, req *model.ResolveRequest) {
	if err := s.threadRepo.TouchThread(req.ThreadID); err != nil {
		log.Warnf("[Resolution] 刷新会话活跃时间失败: %v", err)
	}
	if q := strings.TrimSpace(req.Text); q != "" {
		if err := s.sessionRepo.PushRecentQuery(ctx, req.ThreadID, q); err != nil {
			log.Warnf("[Resolution] 记录最近查询失败: %v", err)
		}
	}
}

// candidateKey 是候选的会话内去重键：小写化的 (title, artist)。
func candidateKey(title, artist string) string {
	return strings.ToLower(strings.TrimSpace(title)) + "|" + strings.ToLower(strings.TrimSpace(artist))
}

// dedupeCandidates 同轮去重：按键保留最高置信度，按置信度降序排序，截断到 5 个。
func dedupeCandidates(candidates []model.Candidate) []model.Candidate {
	byKey := map[string]model.Candidate{}
	order := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if strings.TrimSpace(c.Title) == "" {
			continue
		}
		key := candidateKey(c.Title, c.Artist)
		if prev, ok := byKey[key]; !ok {
			byKey[key] = c
			order = append(order, key)
		} else if c.Confidence > prev.Confidence {
			byKey[key] = c
		}
	}

	result := make([]model.Candidate, 0, len(order))
	for _, key := range order {
		result = append(result, byKey[key])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Confidence > result[j].Confidence
	})
	if len(result) > 5 {
		result = result[:5]
	}
	return result
}

// IsInputError 判断错误是否属于入站校验类（等价 4xx）。
func IsInputError(err error) bool {
	return errors.Is(err, model.ErrInput) || errors.Is(err, model.ErrNotFound)
}

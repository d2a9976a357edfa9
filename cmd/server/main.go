// Package main 是应用程序的入口点。
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"shige-go/internal/config"
	"shige-go/internal/handler"
	"shige-go/internal/middleware"
	"shige-go/internal/model"
	"shige-go/internal/pipeline"
	"shige-go/internal/repository"
	"shige-go/internal/service"
	"shige-go/pkg/crowd"
	"shige-go/pkg/database"
	"shige-go/pkg/es"
	"shige-go/pkg/kafka"
	"shige-go/pkg/llm"
	"shige-go/pkg/log"
	"shige-go/pkg/recognizer"
	"shige-go/pkg/storage"
	"shige-go/pkg/token"
	"shige-go/pkg/transcribe"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库和 Redis
	database.InitMySQL(cfg.Database.MySQL.DSN)
	if err := database.DB.AutoMigrate(
		&model.Thread{},
		&model.Message{},
		&model.StashRecord{},
		&model.CrowdLink{},
	); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Lyrics); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	threadRepo := repository.NewThreadRepository(database.DB)
	messageRepo := repository.NewMessageRepository(database.DB)
	stashRepo := repository.NewStashRepository(database.DB)
	crowdRepo := repository.NewCrowdRepository(database.DB)
	sessionRepo := repository.NewSessionRepository(database.RDB)

	// 5. 初始化外部客户端与 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	llmClient := llm.NewClient(cfg.Resolver)
	transcriberClient := transcribe.NewClient(cfg.Transcribe)
	crowdClient := crowd.NewClient(cfg.Crowd)
	hummingRecognizer := recognizer.NewHummingRecognizer(cfg.Recognizer)
	fullTrackRecognizer := recognizer.NewFullTrackRecognizer(cfg.Recognizer)

	intentService := service.NewIntentService(llmClient)
	contextService := service.NewContextService()
	consensusService := service.NewConsensusService(hummingRecognizer, fullTrackRecognizer)
	resolverService := service.NewResolverService(llmClient)
	threadService := service.NewThreadService(threadRepo, messageRepo, stashRepo, sessionRepo)
	resolutionService := service.NewResolutionService(
		threadRepo,
		messageRepo,
		stashRepo,
		sessionRepo,
		intentService,
		contextService,
		consensusService,
		resolverService,
		transcriberClient,
	)

	// 6. 初始化社区求助任务处理器并启动后台 Kafka 消费者
	processor := pipeline.NewProcessor(crowdClient, crowdRepo)
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 6.1 后台清扫孤儿状态消息：请求中断后遗留的占位不应永久停留在会话里
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	go sweepStatusMessages(sweepCtx, messageRepo, cfg.Pipeline)

	// 6.2 初始化导入 seedlyrics 目录下的歌词文档（按 song_id 覆盖写入，可重复执行）
	go seedLyrics(sweepCtx, "seedlyrics", cfg.Lyrics.IndexName)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	resolveHandler := handler.NewResolveHandler(resolutionService, jwtManager)
	threadHandler := handler.NewThreadHandler(threadService)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(jwtManager))
	{
		resolve := apiV1.Group("/resolve")
		{
			resolve.POST("", resolveHandler.Resolve)
			resolve.GET("/ws-token", resolveHandler.GetWebsocketToken)
		}

		threads := apiV1.Group("/threads")
		{
			threads.POST("", threadHandler.CreateThread)
			threads.POST("/:id/messages", threadHandler.AppendMessage)
			threads.GET("/:id/messages", threadHandler.GetHistory)
			threads.GET("/:id/stash", threadHandler.GetStash)
			threads.GET("/:id/recent-queries", threadHandler.GetRecentQueries)
		}
	}
	// WebSocket 连接走短期 token 鉴权，不经过请求头中间件
	r.GET("/resolve/:token", resolveHandler.HandleWS)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// Kafka 消费者是一个循环，会在程序退出时自然结束。
	log.Info("服务已优雅关闭")
}

// seedLyrics 扫描目录下的 JSON 文件并导入歌词索引。每个文件是一个 LyricDoc 数组；
// 文档以 song_id 作为文档 ID 写入，重复导入只是覆盖，不产生重复。
func seedLyrics(ctx context.Context, dir, indexName string) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("seedLyrics: 目录 '%s' 不存在或不可用，跳过歌词导入", dir)
		return
	}

	imported := 0
	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("seedLyrics: 读取文件失败: %s, err=%v", path, err)
			return nil
		}
		var docs []es.LyricDoc
		if err := json.Unmarshal(data, &docs); err != nil {
			log.Warnf("seedLyrics: 解析文件失败: %s, err=%v", path, err)
			return nil
		}

		for _, doc := range docs {
			if doc.SongID == "" {
				log.Warnf("seedLyrics: 跳过缺少 song_id 的文档: %s", path)
				continue
			}
			if err := es.IndexLyric(ctx, indexName, doc); err != nil {
				log.Warnf("seedLyrics: 索引文档失败: %s (%s), err=%v", doc.SongID, path, err)
				continue
			}
			imported++
		}
		return nil
	})
	if walkErr != nil {
		log.Warnf("seedLyrics: 遍历目录发生错误: %v", walkErr)
	}
	if imported > 0 {
		log.Infof("seedLyrics: 歌词导入完成，共 %d 条", imported)
	}
}

// sweepStatusMessages 周期性删除超过存活上限的孤儿状态消息。
func sweepStatusMessages(ctx context.Context, messageRepo repository.MessageRepository, cfg config.PipelineConfig) {
	sweepInterval := time.Duration(cfg.StatusSweepSeconds) * time.Second
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	ttl := time.Duration(cfg.StatusTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := messageRepo.DeleteStaleStatusMessages(time.Now().Add(-ttl))
			if err != nil {
				log.Warnf("清理孤儿状态消息失败: %v", err)
				continue
			}
			if deleted > 0 {
				log.Infof("已清理 %d 条孤儿状态消息", deleted)
			}
		}
	}
}

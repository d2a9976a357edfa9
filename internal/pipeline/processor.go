// Package pipeline 定义了社区求助任务的后台处理流程。
package pipeline

import (
	"context"
	"shige-go/internal/model"
	"shige-go/internal/repository"
	"shige-go/pkg/crowd"
	"shige-go/pkg/log"
	"shige-go/pkg/tasks"
)

// Processor 封装了社区求助任务处理的所有依赖和逻辑。
// 一次解析事件至多产生一条社区帖子：先查本地关联记录，再查协作方，最后才发帖。
type Processor struct {
	crowdClient crowd.Client
	crowdRepo   repository.CrowdRepository
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(crowdClient crowd.Client, crowdRepo repository.CrowdRepository) *Processor {
	return &Processor{
		crowdClient: crowdClient,
		crowdRepo:   crowdRepo,
	}
}

// Process 是社区求助任务处理的主函数。
func (p *Processor) Process(ctx context.Context, task tasks.CrowdEscalationTask) error {
	log.Infof("[Processor] 开始处理社区求助, EventID: %s, ThreadID: %d", task.EventID, task.ThreadID)

	// 1. 本地关联记录已存在：任务是重复投递，直接成功
	exists, err := p.crowdRepo.HasLink(task.EventID)
	if err != nil {
		return err
	}
	if exists {
		log.Infof("[Processor] 事件已有社区帖子，跳过: %s", task.EventID)
		return nil
	}

	// 2. 协作方侧二次检查，防止本地记录丢失后重复发帖
	remoteExists, err := p.crowdClient.HasExistingPost(ctx, task.EventID)
	if err != nil {
		return err
	}
	if remoteExists {
		log.Infof("[Processor] 协作方已有该事件的帖子，补写关联: %s", task.EventID)
		return p.crowdRepo.CreateLink(&model.CrowdLink{
			EventID:  task.EventID,
			ThreadID: task.ThreadID,
		})
	}

	// 3. 创建帖子并写关联
	postID, err := p.crowdClient.CreatePost(ctx, task.Prompt, task.MediaURL)
	if err != nil {
		return err
	}
	if err := p.crowdClient.LinkPost(ctx, task.EventID, postID); err != nil {
		return err
	}
	if err := p.crowdRepo.CreateLink(&model.CrowdLink{
		EventID:  task.EventID,
		ThreadID: task.ThreadID,
		PostID:   postID,
	}); err != nil {
		return err
	}

	log.Infof("[Processor] 社区求助处理完成, EventID: %s, PostID: %s", task.EventID, postID)
	return nil
}

package model

import (
	"errors"
	"fmt"
)

// 管道错误分类。单个识别后端的失败会被吸收合并，不会以这些错误上抛；
// 这里定义的是需要在管道层面分型处理的失败。
var (
	// ErrInput 表示入站请求缺少必需字段或引用了不存在的资源，等价 4xx，不重试。
	ErrInput = errors.New("输入无效")
	// ErrNotFound 表示引用的会话或消息不存在。
	ErrNotFound = errors.New("资源不存在")
	// ErrThreadBusy 表示同一会话已有一轮解析在进行中。
	ErrThreadBusy = errors.New("会话正在解析中")
	// ErrUpstreamTimeout 表示外部调用超出其时限，触发降级路径，绝不致命。
	ErrUpstreamTimeout = errors.New("外部调用超时")
	// ErrUpstreamFailure 表示外部调用返回非成功结果，与超时同等对待。
	ErrUpstreamFailure = errors.New("外部调用失败")
	// ErrParse 表示解析后端的输出不是合法的结构化 JSON。
	ErrParse = errors.New("解析后端输出无法解析")
	// ErrNoResult 表示解析后端既没有候选也没有回答，作为软性"无匹配"结果上报。
	ErrNoResult = errors.New("没有匹配结果")
)

// ResolutionError 包装一轮解析的终态失败，携带失败发生的阶段。
// 即使返回该错误，管道也必须先清理状态占位消息。
type ResolutionError struct {
	Stage string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("解析失败于 %s: %v", e.Stage, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// NewResolutionError 创建一个带阶段信息的终态失败。
func NewResolutionError(stage string, err error) *ResolutionError {
	return &ResolutionError{Stage: stage, Err: err}
}

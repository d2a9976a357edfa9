package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// 未调用 Init 时所有记录函数都必须可用（空操作），不能崩溃。
func TestLoggingBeforeInitIsSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		Info("启动前的日志")
		Infof("格式化日志, value: %d", 42)
		Infow("结构化日志", "key", "value")
		Warnf("警告日志: %v", "something")
		Error("错误日志", nil)
		Errorf("格式化错误日志: %d", 1)
		Sync()
	})
}

func TestInitReplacesDefaultLogger(t *testing.T) {
	Init("info", "json", "")
	assert.NotPanics(t, func() {
		Infof("初始化后的日志, value: %d", 7)
	})
}

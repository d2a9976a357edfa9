package handler

import (
	"errors"
	"net/http"
	"strconv"

	"shige-go/internal/model"
	"shige-go/internal/service"

	"github.com/gin-gonic/gin"
)

// ThreadHandler 负责会话线程的增删查接口。
type ThreadHandler struct {
	threadService service.ThreadService
}

// NewThreadHandler 创建一个新的 ThreadHandler。
func NewThreadHandler(threadService service.ThreadService) *ThreadHandler {
	return &ThreadHandler{threadService: threadService}
}

// CreateThread 为当前用户创建一个新的会话线程。
func (h *ThreadHandler) CreateThread(c *gin.Context) {
	userID := c.GetUint("userID")
	thread, err := h.threadService.CreateThread(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建会话失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": thread, "message": "success"})
}

type appendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// AppendMessage 在线程中追加一条用户文本消息，返回消息 ID 供后续解析使用。
func (h *ThreadHandler) AppendMessage(c *gin.Context) {
	threadID, err := parseThreadID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的线程 ID"})
		return
	}

	var req appendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "消息内容不能为空"})
		return
	}

	userID := c.GetUint("userID")
	msg, err := h.threadService.AppendUserMessage(userID, threadID, req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": msg, "message": "success"})
}

// GetHistory 返回线程内按时间排序的全部消息。
func (h *ThreadHandler) GetHistory(c *gin.Context) {
	threadID, err := parseThreadID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的线程 ID"})
		return
	}

	userID := c.GetUint("userID")
	messages, err := h.threadService.GetHistory(userID, threadID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": messages, "message": "success"})
}

// GetStash 返回线程当前的高置信候选暂存（若有）。
func (h *ThreadHandler) GetStash(c *gin.Context) {
	threadID, err := parseThreadID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的线程 ID"})
		return
	}

	userID := c.GetUint("userID")
	stash, err := h.threadService.GetStash(userID, threadID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": stash, "message": "success"})
}

// GetRecentQueries 返回线程最近的原始查询列表。
func (h *ThreadHandler) GetRecentQueries(c *gin.Context) {
	threadID, err := parseThreadID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的线程 ID"})
		return
	}

	userID := c.GetUint("userID")
	queries, err := h.threadService.GetRecentQueries(c.Request.Context(), userID, threadID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": queries, "message": "success"})
}

func (h *ThreadHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务内部错误"})
	}
}

func parseThreadID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

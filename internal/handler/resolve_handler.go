// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"shige-go/internal/model"
	"shige-go/internal/service"
	"shige-go/pkg/log"
	"shige-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// wsTokenTTL 是 websocket 连接令牌的有效期。
const wsTokenTTL = 5 * time.Minute

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ResolveHandler 负责处理歌曲解析请求（HTTP 与 WebSocket 两种形态）。
type ResolveHandler struct {
	resolutionService service.ResolutionService
	jwtManager        *token.JWTManager
}

// NewResolveHandler 创建一个新的 ResolveHandler。
func NewResolveHandler(resolutionService service.ResolutionService, jwtManager *token.JWTManager) *ResolveHandler {
	return &ResolveHandler{
		resolutionService: resolutionService,
		jwtManager:        jwtManager,
	}
}

// Resolve 是同步解析的 Gin 处理函数。
func (h *ResolveHandler) Resolve(c *gin.Context) {
	var req model.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求参数"})
		return
	}

	userID := c.GetUint("userID")
	log.Infof("[ResolveHandler] 收到解析请求, thread: %d, message: %d, type: %s", req.ThreadID, req.MessageID, req.InputType)

	resp, err := h.resolutionService.Resolve(c.Request.Context(), userID, &req, nil)
	if err != nil {
		h.writeError(c, resp, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": resp, "message": "success"})
}

// writeError 按错误分类映射 HTTP 状态码。
func (h *ResolveHandler) writeError(c *gin.Context, resp *model.ResolveResponse, err error) {
	var resErr *model.ResolutionError
	switch {
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrThreadBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &resErr):
		// 终态失败仍返回结构化响应体，客户端可据此展示失败轮
		c.JSON(http.StatusBadGateway, gin.H{"code": http.StatusBadGateway, "data": resp, "message": err.Error()})
	default:
		log.Errorf("[ResolveHandler] 解析服务返回未分类错误: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "解析失败"})
	}
}

// GetWebsocketToken 为当前用户签发一个短期 token，用于建立 WebSocket 连接。
func (h *ResolveHandler) GetWebsocketToken(c *gin.Context) {
	claimsVal, exists := c.Get("claims")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}
	claims := claimsVal.(*token.CustomClaims)

	// 连接令牌只为紧接着的一次握手服务，有效期按分钟算而不是沿用 access token 的时长
	wsToken, err := h.jwtManager.GenerateTokenWithTTL(claims.UserID, claims.Username, claims.Role, wsTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "签发 token 失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"wsToken": wsToken}})
}

// wsEvent 是 WebSocket 下发的事件封装。
type wsEvent struct {
	Type  string                 `json:"type"` // stage | result | error
	Stage string                 `json:"stage,omitempty"`
	Data  *model.ResolveResponse `json:"data,omitempty"`
	Error string                 `json:"error,omitempty"`
	// Retryable 标记该错误是否值得原样重试；入站参数错误重试也不会成功
	Retryable bool `json:"retryable,omitempty"`
}

// HandleWS 处理一个传入的 WebSocket 连接：读取一条解析请求，
// 流式推送阶段事件，最后下发终态结果。
func (h *ResolveHandler) HandleWS(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %s", claims.Username)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			log.Infof("WebSocket 连接关闭: %v", err)
			return
		}

		var req model.ResolveRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			h.sendWS(conn, wsEvent{Type: "error", Error: "无效的请求格式"})
			continue
		}

		notify := func(stage string) {
			h.sendWS(conn, wsEvent{Type: "stage", Stage: stage})
		}

		resp, err := h.resolutionService.Resolve(c.Request.Context(), claims.UserID, &req, notify)
		if err != nil {
			if resp != nil {
				h.sendWS(conn, wsEvent{Type: "result", Data: resp, Error: err.Error()})
			} else {
				h.sendWS(conn, wsEvent{Type: "error", Error: err.Error(), Retryable: !service.IsInputError(err)})
			}
			continue
		}
		h.sendWS(conn, wsEvent{Type: "result", Data: resp})
	}
}

func (h *ResolveHandler) sendWS(conn *websocket.Conn, event wsEvent) {
	b, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Warnf("WebSocket 下发消息失败: %v", err)
	}
}

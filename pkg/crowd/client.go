// Package crowd 提供了与社区求助协作方交互的客户端。
package crowd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"shige-go/internal/config"
	"shige-go/pkg/log"
	"time"
)

// Client 定义了社区求助协作方的接口。
type Client interface {
	// HasExistingPost 查询某次解析事件是否已经发过社区帖子。
	HasExistingPost(ctx context.Context, eventID string) (bool, error)
	// CreatePost 创建一条社区求助帖，返回帖子 ID。
	CreatePost(ctx context.Context, text, mediaURL string) (string, error)
	// LinkPost 将帖子与解析事件关联。
	LinkPost(ctx context.Context, eventID, postID string) error
}

type httpClient struct {
	cfg    config.CrowdConfig
	client *http.Client
}

// NewClient 创建一个新的社区客户端实例。
func NewClient(cfg config.CrowdConfig) Client {
	return &httpClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *httpClient) HasExistingPost(ctx context.Context, eventID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.cfg.BaseURL+"/posts/exists?event_id="+eventID, nil)
	if err != nil {
		return false, fmt.Errorf("创建查询请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("查询社区帖子失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("查询社区帖子返回非 200 状态码: %s", resp.Status)
	}

	var body struct {
		Exists bool `json:"exists"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("解析社区查询响应失败: %w", err)
	}
	return body.Exists, nil
}

func (c *httpClient) CreatePost(ctx context.Context, text, mediaURL string) (string, error) {
	payload, err := json.Marshal(map[string]string{"text": text, "media_url": mediaURL})
	if err != nil {
		return "", fmt.Errorf("序列化发帖请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/posts", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("创建发帖请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("创建社区帖子失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("创建社区帖子返回非 200 状态码: %s", resp.Status)
	}

	var body struct {
		PostID string `json:"post_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("解析发帖响应失败: %w", err)
	}

	log.Infof("[CrowdClient] 社区帖子创建成功, post_id: %s", body.PostID)
	return body.PostID, nil
}

func (c *httpClient) LinkPost(ctx context.Context, eventID, postID string) error {
	payload, err := json.Marshal(map[string]string{"event_id": eventID, "post_id": postID})
	if err != nil {
		return fmt.Errorf("序列化关联请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/posts/link", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("创建关联请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("关联社区帖子失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("关联社区帖子返回非 200 状态码: %s", resp.Status)
	}
	return nil
}

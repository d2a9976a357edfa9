// Package recognizer 提供了与音频指纹识别服务交互的客户端。
// 同一能力下配置两路后端：哼唱优化与完整录音优化，在管道内并发调用。
package recognizer

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

// Result 是单次识别的结果。
type Result struct {
	Success       bool     `json:"success"`
	Title         string   `json:"title,omitempty"`
	Artist        string   `json:"artist,omitempty"`
	Album         string   `json:"album,omitempty"`
	Confidence    float64  `json:"confidence"`
	ExternalLinks []string `json:"external_links,omitempty"`
}

// Recognizer 是一路指纹识别后端的能力接口。
type Recognizer interface {
	// Identify 尝试从原始音频识别歌曲。超时与失败由调用方吸收，不会阻塞另一路。
	Identify(ctx context.Context, audio []byte) (*Result, error)
	// Name 返回后端名称，用于日志。
	Name() string
}

type httpRecognizer struct {
	name   string
	cfg    config.RecognizerBackendConfig
	client *http.Client
}

// NewHummingRecognizer 创建哼唱优化的识别后端。
func NewHummingRecognizer(cfg config.RecognizerConfig) Recognizer {
	return newHTTPRecognizer("humming", cfg.Humming, cfg.TimeoutSeconds)
}

// NewFullTrackRecognizer 创建完整录音优化的识别后端。
func NewFullTrackRecognizer(cfg config.RecognizerConfig) Recognizer {
	return newHTTPRecognizer("full_track", cfg.FullTrack, cfg.TimeoutSeconds)
}

func newHTTPRecognizer(name string, cfg config.RecognizerBackendConfig, timeoutSeconds int) Recognizer {
	timeout := time.Duration(timeoutSeconds) * time.Second
	if timeoutSeconds <= 0 {
		timeout = 20 * time.Second
	}
	return &httpRecognizer{
		name:   name,
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (r *httpRecognizer) Name() string {
	return r.name
}

// Identify 将音频以二进制体 POST 给识别服务。
func (r *httpRecognizer) Identify(ctx context.Context, audio []byte) (*Result, error) {
	log.Infof("[Recognizer:%s] 开始识别, audio_len: %d", r.name, len(audio))

	req, err := http.NewRequestWithContext(ctx, "POST", r.cfg.BaseURL+"/identify", bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("创建识别请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)

	resp, err := r.client.Do(req)
	if err != nil {
		log.Warnf("[Recognizer:%s] 调用识别 API 失败: %v", r.name, err)
		return nil, fmt.Errorf("调用识别 API 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warnf("[Recognizer:%s] 识别 API 返回非 200 状态码: %s", r.name, resp.Status)
		return nil, fmt.Errorf("识别 API 返回非 200 状态码: %s", resp.Status)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("解析识别响应失败: %w", err)
	}

	log.Infof("[Recognizer:%s] 识别完成, success: %v, confidence: %.2f", r.name, result.Success, result.Confidence)
	return &result, nil
}

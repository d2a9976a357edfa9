// Package transcribe 提供了与语音转写服务交互的客户端。
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"shige-go/internal/config"
	"shige-go/pkg/log"
	"time"
)

// Client 定义了转写客户端的接口。
type Client interface {
	// Transcribe 将音频字节流转写为文本，失败时返回错误，由调用方降级处理。
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

type httpClient struct {
	cfg    config.TranscribeConfig
	client *http.Client
}

// NewClient 创建一个新的转写客户端实例。
func NewClient(cfg config.TranscribeConfig) Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if cfg.TimeoutSeconds <= 0 {
		timeout = 30 * time.Second
	}
	return &httpClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type transcribeResponse struct {
	Text string `json:"text"`
}

// Transcribe 以 multipart 表单上传音频并调用转写接口。
func (c *httpClient) Transcribe(ctx context.Context, audio []byte) (string, error) {
	log.Infof("[TranscribeClient] 开始调用转写 API, model: %s, audio_len: %d", c.cfg.Model, len(audio))

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("创建表单文件失败: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("写入音频数据失败: %w", err)
	}
	if err := writer.WriteField("model", c.cfg.Model); err != nil {
		return "", fmt.Errorf("写入 model 字段失败: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("关闭表单写入器失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/audio/transcriptions", body)
	if err != nil {
		return "", fmt.Errorf("创建转写请求失败: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[TranscribeClient] 调用转写 API 失败, error: %v", err)
		return "", fmt.Errorf("调用转写 API 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("[TranscribeClient] 转写 API 返回非 200 状态码: %s", resp.Status)
		return "", fmt.Errorf("转写 API 返回非 200 状态码: %s", resp.Status)
	}

	var tr transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("解析转写响应失败: %w", err)
	}

	log.Infof("[TranscribeClient] 转写成功, text_len: %d", len(tr.Text))
	return tr.Text, nil
}

// Package es 提供了与 Elasticsearch 歌词索引交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"shige-go/internal/config"
	"shige-go/pkg/log"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

// LyricDoc 是歌词索引中的一条文档。
type LyricDoc struct {
	SongID string `json:"song_id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Lyrics string `json:"lyrics"`
}

// LyricHit 是一次歌词检索的单条命中。
type LyricHit struct {
	Title   string
	Artist  string
	Snippet string
	Score   float64
}

// InitES 初始化 Elasticsearch 客户端
func InitES(esCfg config.LyricsConfig) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName)
}

// createIndexIfNotExists 检查歌词索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName string) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	// 如果 res.StatusCode 是 200，说明索引已存在
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// 歌词全文检索，标题与歌手保持 keyword 供精确聚合
	mapping := `{
		"mappings": {
			"properties": {
				"song_id": { "type": "keyword" },
				"title": { "type": "keyword" },
				"artist": { "type": "keyword" },
				"lyrics": { "type": "text" }
			}
		}
	}`

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(mapping)),
	)

	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// IndexLyric 将单条歌词文档索引到 Elasticsearch。
func IndexLyric(ctx context.Context, indexName string, doc LyricDoc) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: doc.SongID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引歌词文档到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index lyric document")
	}

	return nil
}

// SearchByLyricFragment 按歌词片段做全文匹配，返回最接近的若干首歌。
func SearchByLyricFragment(ctx context.Context, indexName, fragment string, topK int) ([]LyricHit, error) {
	if topK <= 0 {
		topK = 3
	}
	query := map[string]interface{}{
		"size": topK,
		"query": map[string]interface{}{
			"match": map[string]interface{}{
				"lyrics": map[string]interface{}{
					"query":     fragment,
					"fuzziness": "AUTO",
				},
			},
		},
		"highlight": map[string]interface{}{
			"fields": map[string]interface{}{
				"lyrics": map[string]interface{}{},
			},
		},
	}

	queryBytes, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	res, err := ESClient.Search(
		ESClient.Search.WithContext(ctx),
		ESClient.Search.WithIndex(indexName),
		ESClient.Search.WithBody(bytes.NewReader(queryBytes)),
	)
	if err != nil {
		return nil, fmt.Errorf("歌词检索失败: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("歌词检索返回错误: %s", res.String())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Score     float64  `json:"_score"`
				Source    LyricDoc `json:"_source"`
				Highlight struct {
					Lyrics []string `json:"lyrics"`
				} `json:"highlight"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("解析歌词检索响应失败: %w", err)
	}

	hits := make([]LyricHit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		snippet := ""
		if len(h.Highlight.Lyrics) > 0 {
			snippet = h.Highlight.Lyrics[0]
		}
		hits = append(hits, LyricHit{
			Title:   h.Source.Title,
			Artist:  h.Source.Artist,
			Snippet: snippet,
			Score:   h.Score,
		})
	}
	log.Infof("[ES] 歌词检索完成, fragment_len: %d, hits: %d", len(fragment), len(hits))
	return hits, nil
}

// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Log        LogConfig        `mapstructure:"log"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	Lyrics     LyricsConfig     `mapstructure:"lyrics"`
	Transcribe TranscribeConfig `mapstructure:"transcribe"`
	Recognizer RecognizerConfig `mapstructure:"recognizer"`
	Resolver   ResolverConfig   `mapstructure:"resolver"`
	Crowd      CrowdConfig      `mapstructure:"crowd"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// LyricsConfig 存储歌词检索索引（Elasticsearch）相关的配置。
type LyricsConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// TranscribeConfig 存储语音转写服务的配置。
type TranscribeConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// RecognizerConfig 存储两路指纹识别后端的配置。
type RecognizerConfig struct {
	Humming        RecognizerBackendConfig `mapstructure:"humming"`
	FullTrack      RecognizerBackendConfig `mapstructure:"full_track"`
	TimeoutSeconds int                     `mapstructure:"timeout_seconds"`
}

// RecognizerBackendConfig 是单个识别后端的连接配置。
type RecognizerBackendConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// ResolverConfig 存储解析大模型相关的配置。
type ResolverConfig struct {
	APIKey         string                   `mapstructure:"api_key"`
	BaseURL        string                   `mapstructure:"base_url"`
	Model          string                   `mapstructure:"model"`
	TimeoutSeconds int                      `mapstructure:"timeout_seconds"`
	Generation     ResolverGenerationConfig `mapstructure:"generation"`
}

// ResolverGenerationConfig 配置生成相关参数（可选）。
type ResolverGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// CrowdConfig 存储社区求助协作方的配置。
type CrowdConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// PipelineConfig 存储解析管道自身的调优参数。
type PipelineConfig struct {
	// ClassifyTimeoutSeconds 是轻量分类调用的超时，建议 10 秒。
	ClassifyTimeoutSeconds int `mapstructure:"classify_timeout_seconds"`
	// StatusSweepSeconds 是孤儿状态消息清扫的运行间隔。
	StatusSweepSeconds int `mapstructure:"status_sweep_seconds"`
	// StatusTTLSeconds 是状态消息被视为孤儿前的存活上限。
	StatusTTLSeconds int `mapstructure:"status_ttl_seconds"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}

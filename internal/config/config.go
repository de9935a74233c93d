package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述了 Sofia 在启动阶段需要加载的核心配置。
type Config struct {
	Server  ServerConfig  `json:"server"`
	Auth    AuthConfig    `json:"auth"`
	LLM     LLMConfig     `json:"llm"`
	Image   ImageConfig   `json:"image"`
	Market  MarketConfig  `json:"market"`
	Web3    Web3Config    `json:"web3"`
	Pools   PoolsConfig   `json:"pools"`
	Router  RouterConfig  `json:"router"`
	Scanner ScannerConfig `json:"scanner"`
	Logging LoggingConfig `json:"logging"`
}

// LoggingConfig 控制结构化日志与审计日志输出。
type LoggingConfig struct {
	Level       string         `json:"level"`
	Format      string         `json:"format"`
	OutputPaths []string       `json:"output_paths"`
	Audit       AuditLogConfig `json:"audit"`
}

// AuditLogConfig 控制审计日志文件的滚动策略。
type AuditLogConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address        string `json:"address"`
	MetricsAddress string `json:"metrics_address"`
}

// AuthConfig 控制用户认证模式与用户存储后端。
type AuthConfig struct {
	Mode  string      `json:"mode"`
	Store StoreConfig `json:"store"`
}

// StoreConfig 描述用户存储的连接信息。
type StoreConfig struct {
	Driver          string `json:"driver"`
	DSN             string `json:"dsn"`
	MaxOpenConns    int    `json:"max_open_conns"`
	MaxIdleConns    int    `json:"max_idle_conns"`
	ConnMaxLifetime int    `json:"conn_max_lifetime_seconds"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ImageConfig 用于配置图片生成接口。
type ImageConfig struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// MarketConfig 汇总行情数据源的连接参数。
type MarketConfig struct {
	CoinGecko   CoinGeckoConfig `json:"coingecko"`
	DolarAPI    DolarAPIConfig  `json:"dolarapi"`
	SubgraphURL string          `json:"subgraph_url"`
}

// CoinGeckoConfig 描述 CoinGecko 数据源。
type CoinGeckoConfig struct {
	APIKey          string `json:"api_key"`
	BaseURL         string `json:"base_url"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds"`
}

// DolarAPIConfig 描述 dolarapi.com 数据源。
type DolarAPIConfig struct {
	BaseURL         string `json:"base_url"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds"`
}

// Web3Config 包含访问区块链节点所需的 RPC 地址。
type Web3Config struct {
	Name   string `json:"name"`
	RPCURL string `json:"rpc_url"`
	WSURL  string `json:"ws_url"`
}

// PoolsConfig 指定池子清单文件；为空时使用内置清单。
type PoolsConfig struct {
	File string `json:"file"`
}

// RouterConfig 控制意图分类策略。
type RouterConfig struct {
	Classifier     string `json:"classifier"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ScannerConfig 控制链上事件扫描器。
type ScannerConfig struct {
	Enabled          bool        `json:"enabled"`
	RetryWaitSeconds int         `json:"retry_wait_seconds"`
	Queue            QueueConfig `json:"queue"`
}

// QueueConfig 描述事件队列后端。
type QueueConfig struct {
	Driver   string         `json:"driver"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列的连接参数。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Queue    string `json:"queue"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL      string `json:"url"`
	Queue    string `json:"queue"`
	Prefetch int    `json:"prefetch"`
	Durable  bool   `json:"durable"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = "disabled"
	}
	if c.Auth.Store.Driver == "" {
		c.Auth.Store.Driver = "memory"
	}

	if c.Router.Classifier == "" {
		c.Router.Classifier = "keyword"
	}

	if c.Scanner.Queue.Driver == "" {
		c.Scanner.Queue.Driver = "memory"
	}

	if c.Pools.File != "" && !filepath.IsAbs(c.Pools.File) {
		c.Pools.File = filepath.Join(baseDir, c.Pools.File)
	}
}

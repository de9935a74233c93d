package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"Sofia-Agent/internal/agent"
	"Sofia-Agent/internal/api"
	"Sofia-Agent/internal/auth"
	"Sofia-Agent/internal/chat"
	"Sofia-Agent/internal/classify"
	"Sofia-Agent/internal/config"
	"Sofia-Agent/internal/events"
	"Sofia-Agent/internal/imagegen"
	"Sofia-Agent/internal/llm"
	"Sofia-Agent/internal/llm/openai"
	"Sofia-Agent/internal/market"
	"Sofia-Agent/internal/observability/metrics"
	"Sofia-Agent/internal/pools"
	"Sofia-Agent/internal/router"
	"Sofia-Agent/internal/storage/mysql"
	"Sofia-Agent/internal/web3"
	"Sofia-Agent/internal/web3/ethereum"
	"Sofia-Agent/pkg/logger"
)

// main 是 Sofia 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("sofiad 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("SOFIA_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "sofia.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	// 初始化大模型客户端；缺少密钥时降级为关键词分类与静态回复。
	llmClient := createLLMClient(cfg)

	// 链上客户端可选，缺省时各服务跳过链上数据。
	var chain web3.Client
	if strings.TrimSpace(cfg.Web3.RPCURL) != "" {
		client, err := ethereum.NewClient(ctx, ethereum.Config{
			Name:   cfg.Web3.Name,
			RPCURL: cfg.Web3.RPCURL,
			WSURL:  cfg.Web3.WSURL,
		})
		if err != nil {
			return err
		}
		defer client.Close()
		chain = client
	}

	registry, err := pools.LoadFile(cfg.Pools.File)
	if err != nil {
		return err
	}

	prices := market.NewCoinGeckoSource(market.CoinGeckoConfig{
		APIKey:   cfg.Market.CoinGecko.APIKey,
		BaseURL:  cfg.Market.CoinGecko.BaseURL,
		Timeout:  time.Duration(cfg.Market.CoinGecko.TimeoutSeconds) * time.Second,
		CacheTTL: time.Duration(cfg.Market.CoinGecko.CacheTTLSeconds) * time.Second,
	})
	dollars := market.NewDolarAPISource(market.DolarAPIConfig{
		BaseURL:  cfg.Market.DolarAPI.BaseURL,
		Timeout:  time.Duration(cfg.Market.DolarAPI.TimeoutSeconds) * time.Second,
		CacheTTL: time.Duration(cfg.Market.DolarAPI.CacheTTLSeconds) * time.Second,
	})
	poolService := market.NewPoolService(market.PoolServiceConfig{
		SubgraphURL: cfg.Market.SubgraphURL,
	}, chain)
	historical := market.NewHistoricalService()

	var imageClient imagegen.Client
	if strings.TrimSpace(cfg.Image.APIKey) != "" {
		client, err := imagegen.NewDallEClient(imagegen.DallEConfig{
			APIKey:  cfg.Image.APIKey,
			BaseURL: cfg.Image.BaseURL,
			Model:   cfg.Image.Model,
			Timeout: time.Duration(cfg.Image.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		imageClient = client
	}

	deploymentAgent, err := agent.NewDeploymentAgent(llmClient)
	if err != nil {
		return err
	}

	handlers := router.NewRegistry()
	handlers.Register(chat.IntentGeneral, agent.NewGeneralAgent(llmClient, prices, dollars))
	handlers.Register(chat.IntentRisk, agent.NewRiskAgent(poolService, historical, registry))
	handlers.Register(chat.IntentTrading, agent.NewLiquidityAgent(registry, poolService, llmClient))
	handlers.Register(chat.IntentDeployment, deploymentAgent)
	handlers.Register(chat.IntentImage, agent.NewImageAgent(imageClient))

	rt := router.New(createClassifier(cfg, llmClient), handlers)

	authStore, closeStore, err := createAuthStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	authSvc, err := auth.NewService(auth.Config{Mode: auth.Mode(cfg.Auth.Mode)}, authStore)
	if err != nil {
		return err
	}

	// 链上事件扫描器按需启动。
	if cfg.Scanner.Enabled {
		if chain == nil {
			return errors.New("开启扫描器需要配置 web3.rpc_url")
		}
		queue, err := createEventQueue(cfg)
		if err != nil {
			return err
		}
		defer queue.Close()

		scanner, err := events.NewScanner(chain, queue, registry, events.ScannerConfig{
			RetryWait: time.Duration(cfg.Scanner.RetryWaitSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		go func() {
			if err := scanner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("事件扫描器异常退出", "error", err.Error())
			}
		}()
	}

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("指标服务异常退出", "error", err.Error())
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, rt, authSvc)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// createLLMClient 构造 OpenAI 客户端；未配置密钥时返回 nil。
func createLLMClient(cfg *config.Config) llm.Client {
	apiKey := strings.TrimSpace(cfg.LLM.APIKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	if apiKey == "" {
		logger.L().Warn("未配置 OpenAI API Key，大模型能力不可用")
		return nil
	}
	client, err := openai.NewClient(openai.Config{
		APIKey:  apiKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		logger.L().Warn("构造大模型客户端失败", "error", err.Error())
		return nil
	}
	return client
}

// createClassifier 根据配置选择意图分类策略。
func createClassifier(cfg *config.Config, llmClient llm.Client) classify.Classifier {
	if cfg.Router.Classifier == "llm" && llmClient != nil {
		return classify.NewLLMClassifier(llmClient, time.Duration(cfg.Router.TimeoutSeconds)*time.Second)
	}
	return classify.NewKeywordClassifier()
}

// createAuthStore 根据配置构造用户存储。
func createAuthStore(ctx context.Context, cfg *config.Config) (auth.Store, func(), error) {
	switch cfg.Auth.Store.Driver {
	case "", "memory":
		return auth.NewMemoryStore(), func() {}, nil
	case "mysql":
		store, err := mysql.NewSQLUserStore(ctx, mysql.Config{
			DSN:             cfg.Auth.Store.DSN,
			MaxOpenConns:    cfg.Auth.Store.MaxOpenConns,
			MaxIdleConns:    cfg.Auth.Store.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Auth.Store.ConnMaxLifetime) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("未知的用户存储驱动: %s", cfg.Auth.Store.Driver)
	}
}

// createEventQueue 根据配置构造事件队列。
func createEventQueue(cfg *config.Config) (events.Queue, error) {
	switch cfg.Scanner.Queue.Driver {
	case "", "memory":
		return events.NewMemoryQueue(1024), nil
	case "redis":
		return events.NewRedisQueue(events.RedisQueueConfig{
			Address:  cfg.Scanner.Queue.Redis.Address,
			Password: cfg.Scanner.Queue.Redis.Password,
			DB:       cfg.Scanner.Queue.Redis.DB,
			Queue:    cfg.Scanner.Queue.Redis.Queue,
		})
	case "rabbitmq":
		return events.NewRabbitMQQueue(events.RabbitMQConfig{
			URL:      cfg.Scanner.Queue.RabbitMQ.URL,
			Queue:    cfg.Scanner.Queue.RabbitMQ.Queue,
			Prefetch: cfg.Scanner.Queue.RabbitMQ.Prefetch,
			Durable:  cfg.Scanner.Queue.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Scanner.Queue.Driver)
	}
}

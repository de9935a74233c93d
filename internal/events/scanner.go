package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"Sofia-Agent/internal/pools"
	"Sofia-Agent/internal/web3"
	"Sofia-Agent/pkg/logger"
)

// defaultRetryWait 是订阅断开后重试前的等待时间。
const defaultRetryWait = 5 * time.Second

// PoolEvent 是投递到队列的链上事件负载。
type PoolEvent struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	BlockNumber uint64   `json:"block_number"`
	TxHash      string   `json:"tx_hash"`
	LogIndex    uint     `json:"log_index"`
	Removed     bool     `json:"removed"`
}

// ScannerConfig 配置扫描器行为。
type ScannerConfig struct {
	// RetryWait 指定订阅失败后的重试间隔，缺省为 5 秒。
	RetryWait time.Duration
}

// Scanner 订阅注册表中各池子 pair 合约的日志并投递到事件队列。
type Scanner struct {
	chain    web3.Client
	queue    Producer
	registry *pools.Registry
	wait     time.Duration
}

// NewScanner 构造扫描器。
func NewScanner(chain web3.Client, queue Producer, registry *pools.Registry, cfg ScannerConfig) (*Scanner, error) {
	if chain == nil {
		return nil, fmt.Errorf("链上客户端不能为空")
	}
	if queue == nil {
		return nil, fmt.Errorf("事件队列不能为空")
	}
	if registry == nil {
		return nil, fmt.Errorf("池子注册表不能为空")
	}
	wait := cfg.RetryWait
	if wait <= 0 {
		wait = defaultRetryWait
	}
	return &Scanner{chain: chain, queue: queue, registry: registry, wait: wait}, nil
}

// Run 持续订阅并转发事件，直到上下文被取消。
// 订阅断开后按固定间隔重试，不把瞬时故障上抛给调用方。
func (s *Scanner) Run(ctx context.Context) error {
	addresses := s.filterAddresses()
	if len(addresses) == 0 {
		logger.L().Warn("注册表中没有已上线的池子，扫描器退出")
		return nil
	}
	query := gethcore.FilterQuery{Addresses: addresses}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.scanOnce(ctx, query); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.L().Warn("事件订阅中断，稍后重试",
				"error", err.Error(),
				"retry_wait", s.wait.String(),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.wait):
		}
	}
}

// scanOnce 建立一次订阅并转发日志，直到订阅出错或上下文取消。
func (s *Scanner) scanOnce(ctx context.Context, query gethcore.FilterQuery) error {
	sub, err := s.chain.SubscribeEvents(ctx, query)
	if err != nil {
		return fmt.Errorf("订阅池子日志失败: %w", err)
	}
	defer sub.Close()

	logger.L().Info("开始扫描池子事件", "addresses", len(query.Addresses))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				return fmt.Errorf("事件订阅已关闭")
			}
			return fmt.Errorf("事件订阅出错: %w", err)
		case log, ok := <-sub.Logs():
			if !ok {
				return fmt.Errorf("事件通道已关闭")
			}
			topics := make([]string, 0, len(log.Topics))
			for _, topic := range log.Topics {
				topics = append(topics, topic.Hex())
			}
			event := PoolEvent{
				Address:     log.Address.Hex(),
				Topics:      topics,
				BlockNumber: log.BlockNumber,
				TxHash:      log.TxHash.Hex(),
				LogIndex:    log.Index,
				Removed:     log.Removed,
			}
			payload, err := json.Marshal(event)
			if err != nil {
				logger.L().Error("序列化事件失败", "error", err.Error())
				continue
			}
			if err := s.queue.Publish(ctx, string(payload)); err != nil {
				logger.L().Error("投递事件失败",
					"tx_hash", event.TxHash,
					"error", err.Error(),
				)
			}
		}
	}
}

func (s *Scanner) filterAddresses() []common.Address {
	raw := s.registry.PairAddresses()
	addresses := make([]common.Address, 0, len(raw))
	for _, addr := range raw {
		if !common.IsHexAddress(addr) {
			continue
		}
		addresses = append(addresses, common.HexToAddress(addr))
	}
	return addresses
}

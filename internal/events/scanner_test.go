package events

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"Sofia-Agent/internal/pools"
	"Sofia-Agent/internal/web3"
)

type stubSubscription struct {
	errCh chan error
}

func (s *stubSubscription) Err() <-chan error { return s.errCh }
func (s *stubSubscription) Unsubscribe()      {}

type stubChain struct {
	logs    chan types.Log
	sub     *stubSubscription
	queries []gethcore.FilterQuery
}

func (c *stubChain) FetchChainSnapshot(context.Context) (web3.ChainSnapshot, error) {
	return web3.ChainSnapshot{}, nil
}

func (c *stubChain) FetchPoolState(context.Context, common.Address) (*web3.PoolState, error) {
	return nil, nil
}

func (c *stubChain) DeployContract(context.Context, *bind.TransactOpts, string, []byte, ...any) (web3.DeploymentResult, error) {
	return web3.DeploymentResult{}, nil
}

func (c *stubChain) SubscribeEvents(_ context.Context, query gethcore.FilterQuery) (*web3.EventSubscription, error) {
	c.queries = append(c.queries, query)
	return web3.NewEventSubscription(c.logs, c.sub), nil
}

func (c *stubChain) Close() {}

func TestScannerForwardsEvents(t *testing.T) {
	chain := &stubChain{
		logs: make(chan types.Log, 1),
		sub:  &stubSubscription{errCh: make(chan error, 1)},
	}
	queue := NewMemoryQueue(8)
	scanner, err := NewScanner(chain, queue, pools.Builtin(), ScannerConfig{RetryWait: time.Millisecond})
	if err != nil {
		t.Fatalf("构造扫描器失败: %v", err)
	}

	chain.logs <- types.Log{
		Address:     common.HexToAddress("0xd446eb1660f766d533beceef890df7a69d26f7d1"),
		Topics:      []common.Hash{common.BigToHash(big.NewInt(7))},
		BlockNumber: 12345,
		TxHash:      common.BigToHash(big.NewInt(99)),
		Index:       3,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- scanner.scanOnce(ctx, gethcore.FilterQuery{Addresses: scanner.filterAddresses()})
	}()

	payloads := make(chan string, 1)
	consumeCtx, consumeCancel := context.WithCancel(context.Background())
	go queue.Consume(consumeCtx, 1, func(_ context.Context, payload string) error {
		payloads <- payload
		consumeCancel()
		return nil
	})

	var payload string
	select {
	case payload = <-payloads:
	case <-time.After(2 * time.Second):
		t.Fatalf("等待事件超时")
	}

	var event PoolEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		t.Fatalf("解析事件失败: %v", err)
	}
	if event.BlockNumber != 12345 || event.LogIndex != 3 {
		t.Fatalf("事件字段不匹配: %+v", event)
	}
	if event.Address != common.HexToAddress("0xd446eb1660f766d533beceef890df7a69d26f7d1").Hex() {
		t.Fatalf("事件地址不匹配: %s", event.Address)
	}
	if len(event.Topics) != 1 {
		t.Fatalf("事件主题数量不匹配: %d", len(event.Topics))
	}

	// 订阅出错时 scanOnce 应返回错误，交由 Run 重试。
	chain.sub.errCh <- context.DeadlineExceeded
	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("订阅出错时应返回错误")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("等待 scanOnce 退出超时")
	}

	if len(chain.queries) != 1 || len(chain.queries[0].Addresses) != 1 {
		t.Fatalf("订阅过滤器不匹配: %+v", chain.queries)
	}
}

func TestScannerRunNoLivePools(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pools.yaml")
	content := `pools:
  - key: AVAX_USDT
    name: AVAX-USDT
    network: avalanche
    chain_id: 43114
    pair_address: ""
    bin_step: 20
    token_x:
      symbol: AVAX
      decimals: 18
    token_y:
      symbol: USDT
      decimals: 6
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	registry, err := pools.LoadFile(path)
	if err != nil {
		t.Fatalf("加载池子清单失败: %v", err)
	}

	chain := &stubChain{logs: make(chan types.Log), sub: &stubSubscription{errCh: make(chan error)}}
	scanner, err := NewScanner(chain, NewMemoryQueue(1), registry, ScannerConfig{})
	if err != nil {
		t.Fatalf("构造扫描器失败: %v", err)
	}
	if err := scanner.Run(context.Background()); err != nil {
		t.Fatalf("没有可订阅地址时应直接退出: %v", err)
	}
	if len(chain.queries) != 0 {
		t.Fatalf("不应发起订阅: %+v", chain.queries)
	}
}

func TestNewScannerValidation(t *testing.T) {
	queue := NewMemoryQueue(1)
	if _, err := NewScanner(nil, queue, pools.Builtin(), ScannerConfig{}); err == nil {
		t.Fatalf("缺少链上客户端时应报错")
	}
	chain := &stubChain{logs: make(chan types.Log), sub: &stubSubscription{errCh: make(chan error)}}
	if _, err := NewScanner(chain, nil, pools.Builtin(), ScannerConfig{}); err == nil {
		t.Fatalf("缺少队列时应报错")
	}
	if _, err := NewScanner(chain, queue, nil, ScannerConfig{}); err == nil {
		t.Fatalf("缺少注册表时应报错")
	}
}

func TestMemoryQueuePublishAfterClose(t *testing.T) {
	queue := NewMemoryQueue(1)
	if err := queue.Close(); err != nil {
		t.Fatalf("关闭队列失败: %v", err)
	}
	if err := queue.Publish(context.Background(), "payload"); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("关闭后发布应返回 ErrQueueClosed: %v", err)
	}
	// 重复关闭不应 panic。
	if err := queue.Close(); err != nil {
		t.Fatalf("重复关闭失败: %v", err)
	}
}

func TestMemoryQueueConcurrentPublishClose(t *testing.T) {
	queue := NewMemoryQueue(1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// 持续投递直到队列关闭，期间不允许 panic。
			for {
				if err := queue.Publish(context.Background(), "payload"); err != nil {
					if !errors.Is(err, ErrQueueClosed) {
						t.Errorf("意外的投递错误: %v", err)
					}
					return
				}
				select {
				case <-queue.ch:
				default:
				}
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	if err := queue.Close(); err != nil {
		t.Fatalf("关闭队列失败: %v", err)
	}
	wg.Wait()
}

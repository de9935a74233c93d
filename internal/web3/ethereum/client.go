package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"Sofia-Agent/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// lbPairABI covers the subset of the Trader Joe V2 pair interface the
// market-data layer reads. Bin ids are uint24 on chain and fit in int64 here.
const lbPairABI = `[
  {"name":"getActiveId","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"activeId","type":"uint24"}]},
  {"name":"getBinStep","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"binStep","type":"uint16"}]},
  {"name":"getBin","type":"function","stateMutability":"view","inputs":[{"name":"id","type":"uint24"}],"outputs":[{"name":"binReserveX","type":"uint128"},{"name":"binReserveY","type":"uint128"}]},
  {"name":"getTokenX","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"tokenX","type":"address"}]},
  {"name":"getTokenY","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"tokenY","type":"address"}]},
  {"name":"getProtocolFees","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"protocolFeeX","type":"uint128"},{"name":"protocolFeeY","type":"uint128"}]}
]`

// binWindow is the number of bins fetched on each side of the active bin.
const binWindow = 10

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name   string
	RPCURL string
	WSURL  string
}

// Client implements the web3.Client interface for EVM compatible chains.
type Client struct {
	name        string
	rpcClient   *gethrpc.Client
	eth         *ethclient.Client
	eventClient logSubscriber
	backend     bind.ContractBackend
	pairABI     abi.ABI
	mu          sync.Mutex
}

// logSubscriber mirrors the subset of methods required for log subscriptions.
type logSubscriber interface {
	SubscribeFilterLogs(ctx context.Context, q gethcore.FilterQuery, ch chan<- coretypes.Log) (gethcore.Subscription, error)
}

// NewClient dials the configured RPC endpoints and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置区块链 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接区块链节点失败: %w", err)
	}

	eth := ethclient.NewClient(rpcClient)

	eventClient := logSubscriber(eth)
	if wsURL := strings.TrimSpace(cfg.WSURL); wsURL != "" {
		if wsRPC, wsErr := gethrpc.DialContext(ctx, wsURL); wsErr == nil {
			eventClient = ethclient.NewClient(wsRPC)
		}
	}

	parsedABI, err := abi.JSON(strings.NewReader(lbPairABI))
	if err != nil {
		return nil, fmt.Errorf("解析 LB pair ABI 失败: %w", err)
	}

	return &Client{
		name:        cfg.Name,
		rpcClient:   rpcClient,
		eth:         eth,
		eventClient: eventClient,
		backend:     eth,
		pairABI:     parsedABI,
	}, nil
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	if c.eventClient != nil {
		if ec, ok := c.eventClient.(*ethclient.Client); ok {
			ec.Close()
		}
		c.eventClient = nil
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
	c.rpcClient = nil
}

// FetchChainSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	if c == nil || c.eth == nil {
		return web3.ChainSnapshot{}, errors.New("未初始化的区块链客户端")
	}

	chainID, err := c.eth.ChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	blockNumber, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	return web3.ChainSnapshot{
		ChainID:     toHexBig(chainID),
		BlockNumber: fmt.Sprintf("0x%x", blockNumber),
	}, nil
}

// FetchPoolState reads the active bin, the surrounding bin reserves and the
// token/fee metadata of a Trader Joe V2 pair.
func (c *Client) FetchPoolState(ctx context.Context, pair common.Address) (*web3.PoolState, error) {
	backend := c.contractBackend()
	if backend == nil {
		return nil, errors.New("当前客户端不支持合约调用")
	}

	contract := bind.NewBoundContract(pair, c.pairABI, backend, nil, nil)

	activeID, err := c.callUint(ctx, contract, "getActiveId")
	if err != nil {
		return nil, fmt.Errorf("读取 active bin 失败: %w", err)
	}
	binStep, err := c.callUint(ctx, contract, "getBinStep")
	if err != nil {
		return nil, fmt.Errorf("读取 bin step 失败: %w", err)
	}

	state := &web3.PoolState{
		ActiveBinID: activeID,
		BinStep:     uint16(binStep),
	}

	// 活跃 bin 两侧各取 binWindow 个 bin，失败的单个 bin 直接跳过。
	for id := activeID - binWindow; id <= activeID+binWindow; id++ {
		if id < 0 {
			continue
		}
		var out []any
		if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "getBin", big.NewInt(id)); err != nil {
			continue
		}
		if len(out) != 2 {
			continue
		}
		reserveX, okX := out[0].(*big.Int)
		reserveY, okY := out[1].(*big.Int)
		if !okX || !okY {
			continue
		}
		state.Bins = append(state.Bins, web3.BinReserves{
			ID:       id,
			ReserveX: reserveX,
			ReserveY: reserveY,
		})
	}

	var tokenOut []any
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &tokenOut, "getTokenX"); err == nil && len(tokenOut) == 1 {
		if addr, ok := tokenOut[0].(common.Address); ok {
			state.TokenX = addr
		}
	}
	tokenOut = nil
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &tokenOut, "getTokenY"); err == nil && len(tokenOut) == 1 {
		if addr, ok := tokenOut[0].(common.Address); ok {
			state.TokenY = addr
		}
	}

	var feeOut []any
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &feeOut, "getProtocolFees"); err == nil && len(feeOut) == 2 {
		if fx, ok := feeOut[0].(*big.Int); ok {
			state.FeesX = fx
		}
		if fy, ok := feeOut[1].(*big.Int); ok {
			state.FeesY = fy
		}
	}

	return state, nil
}

func (c *Client) callUint(ctx context.Context, contract *bind.BoundContract, method string) (int64, error) {
	var out []any
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method); err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("%s 返回值数量异常", method)
	}
	switch v := out[0].(type) {
	case *big.Int:
		return v.Int64(), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("%s 返回值类型异常: %T", method, out[0])
	}
}

// DeployContract sends the contract creation transaction using the provided
// transact opts and bytecode.
func (c *Client) DeployContract(ctx context.Context, auth *bind.TransactOpts, abiJSON string, bytecode []byte, params ...any) (web3.DeploymentResult, error) {
	if auth == nil {
		return web3.DeploymentResult{}, errors.New("未提供交易签名器")
	}
	backend := c.contractBackend()
	if backend == nil {
		return web3.DeploymentResult{}, errors.New("当前客户端不支持合约部署")
	}
	if len(bytecode) == 0 {
		return web3.DeploymentResult{}, errors.New("合约字节码不能为空")
	}

	parsedABI, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return web3.DeploymentResult{}, fmt.Errorf("解析 ABI 失败: %w", err)
	}

	originalCtx := auth.Context
	auth.Context = ctx
	defer func() { auth.Context = originalCtx }()

	address, tx, _, err := bind.DeployContract(auth, parsedABI, bytecode, backend, params...)
	if err != nil {
		return web3.DeploymentResult{}, fmt.Errorf("部署合约失败: %w", err)
	}

	return web3.DeploymentResult{ContractAddress: address, Transaction: tx}, nil
}

// SubscribeEvents attaches a log subscription to the chain.
func (c *Client) SubscribeEvents(ctx context.Context, query gethcore.FilterQuery) (*web3.EventSubscription, error) {
	if c == nil {
		return nil, errors.New("未初始化的区块链客户端")
	}
	subscriber := c.eventBackend()
	if subscriber == nil {
		return nil, errors.New("当前客户端不支持事件订阅")
	}

	logs := make(chan coretypes.Log, 64)
	sub, err := subscriber.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, fmt.Errorf("订阅事件失败: %w", err)
	}
	return web3.NewEventSubscription(logs, sub), nil
}

func (c *Client) contractBackend() bind.ContractBackend {
	if c.backend != nil {
		return c.backend
	}
	if c.eth != nil {
		return c.eth
	}
	return nil
}

func (c *Client) eventBackend() logSubscriber {
	if c.eventClient != nil {
		return c.eventClient
	}
	if subscriber, ok := c.backend.(logSubscriber); ok {
		return subscriber
	}
	return nil
}

func toHexBig(n *big.Int) string {
	if n == nil {
		return "0x0"
	}
	return "0x" + n.Text(16)
}

package pools

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	apperr "Sofia-Agent/internal/errors"
)

// Token 描述池子中的单个代币。
type Token struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Decimals int    `yaml:"decimals"`
}

// Pool 描述一个 Trader Joe V2 流动性池。
type Pool struct {
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	Network     string `yaml:"network"`
	ChainID     int64  `yaml:"chain_id"`
	PairAddress string `yaml:"pair_address"`
	Router      string `yaml:"router"`
	BinStep     int    `yaml:"bin_step"`
	TokenX      Token  `yaml:"token_x"`
	TokenY      Token  `yaml:"token_y"`
}

type registryFile struct {
	Pools []Pool `yaml:"pools"`
}

// Registry 保存已知池子的集合，支持按 key 查询和按消息匹配。
type Registry struct {
	pools []Pool
	index map[string]Pool
}

// joeRouter 是 Avalanche 上 Trader Joe V2 的路由合约地址。
const joeRouter = "0xb4315e873dBcf96Ffd0acd8EA43f689D8c20fB30"

// Builtin 返回内置的 Avalanche 池子清单，在未提供配置文件时使用。
func Builtin() *Registry {
	reg, _ := newRegistry([]Pool{
		{
			Key:         "AVAX_USDC",
			Name:        "AVAX-USDC",
			Network:     "avalanche",
			ChainID:     43114,
			PairAddress: "0xd446eb1660f766d533beceef890df7a69d26f7d1",
			Router:      joeRouter,
			BinStep:     20,
			TokenX:      Token{Symbol: "AVAX", Address: "0xB31f66AA3C1e785363F0875A1B74E27b85FD66c7", Decimals: 18},
			TokenY:      Token{Symbol: "USDC", Address: "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E", Decimals: 6},
		},
		{
			Key:     "AVAX_USDT",
			Name:    "AVAX-USDT",
			Network: "avalanche",
			ChainID: 43114,
			// 该池暂未上线，pair 地址待补充。
			PairAddress: "",
			Router:      joeRouter,
			BinStep:     20,
			TokenX:      Token{Symbol: "AVAX", Address: "0xB31f66AA3C1e785363F0875A1B74E27b85FD66c7", Decimals: 18},
			TokenY:      Token{Symbol: "USDT", Address: "0x9702230A8Ea53601f5cD2dc00fDBc13d4dF4A8c7", Decimals: 6},
		},
	})
	return reg
}

// LoadFile 从 YAML 文件加载池子清单；路径为空时返回内置清单。
func LoadFile(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return Builtin(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInitializationFailure, "读取池子配置文件失败")
	}

	var file registryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInitializationFailure, "解析池子配置文件失败")
	}
	if len(file.Pools) == 0 {
		return nil, apperr.New(apperr.CodeInitializationFailure, "池子配置文件为空")
	}

	reg, err := newRegistry(file.Pools)
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func newRegistry(list []Pool) (*Registry, error) {
	reg := &Registry{index: make(map[string]Pool, len(list))}
	for _, pool := range list {
		if strings.TrimSpace(pool.Key) == "" {
			return nil, apperr.New(apperr.CodeInitializationFailure, "池子缺少 key 字段")
		}
		if pool.TokenX.Symbol == "" || pool.TokenY.Symbol == "" {
			return nil, apperr.New(apperr.CodeInitializationFailure, fmt.Sprintf("池子 %s 缺少代币符号", pool.Key))
		}
		if _, exists := reg.index[pool.Key]; exists {
			return nil, apperr.New(apperr.CodeInitializationFailure, fmt.Sprintf("池子 %s 重复定义", pool.Key))
		}
		reg.index[pool.Key] = pool
		reg.pools = append(reg.pools, pool)
	}
	return reg, nil
}

// Get 按 key 查询池子。
func (r *Registry) Get(key string) (Pool, bool) {
	pool, ok := r.index[key]
	return pool, ok
}

// All 返回全部池子，顺序与加载时一致。
func (r *Registry) All() []Pool {
	out := make([]Pool, len(r.pools))
	copy(out, r.pools)
	return out
}

// Keys 返回全部池子的 key，按字典序排序。
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.pools))
	for _, pool := range r.pools {
		keys = append(keys, pool.Key)
	}
	sort.Strings(keys)
	return keys
}

// Match 在消息中同时出现两个代币符号时选中对应池子。
func (r *Registry) Match(message string) (Pool, bool) {
	lowered := strings.ToLower(message)
	for _, pool := range r.pools {
		x := strings.ToLower(pool.TokenX.Symbol)
		y := strings.ToLower(pool.TokenY.Symbol)
		if strings.Contains(lowered, x) && strings.Contains(lowered, y) {
			return pool, true
		}
	}
	return Pool{}, false
}

// PairAddresses 返回已上线池子的 pair 地址，供事件扫描使用。
func (r *Registry) PairAddresses() []string {
	addrs := make([]string, 0, len(r.pools))
	for _, pool := range r.pools {
		if strings.TrimSpace(pool.PairAddress) == "" {
			continue
		}
		addrs = append(addrs, pool.PairAddress)
	}
	return addrs
}

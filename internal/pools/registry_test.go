package pools

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltinRegistry(t *testing.T) {
	reg := Builtin()

	pool, ok := reg.Get("AVAX_USDC")
	if !ok {
		t.Fatalf("内置清单缺少 AVAX_USDC")
	}
	if pool.PairAddress != "0xd446eb1660f766d533beceef890df7a69d26f7d1" {
		t.Fatalf("pair 地址不匹配: %s", pool.PairAddress)
	}
	if pool.BinStep != 20 {
		t.Fatalf("bin step 不匹配: %d", pool.BinStep)
	}
	if pool.TokenX.Decimals != 18 || pool.TokenY.Decimals != 6 {
		t.Fatalf("代币精度不匹配")
	}

	keys := reg.Keys()
	if len(keys) != 2 || keys[0] != "AVAX_USDC" || keys[1] != "AVAX_USDT" {
		t.Fatalf("key 列表不匹配: %v", keys)
	}
}

func TestMatch(t *testing.T) {
	reg := Builtin()

	cases := []struct {
		message string
		wantKey string
		wantOK  bool
	}{
		{"I want to add liquidity to the AVAX/USDC pool", "AVAX_USDC", true},
		{"provide liquidity for avax and usdt", "AVAX_USDT", true},
		{"add liquidity to the avax pool", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		pool, ok := reg.Match(tc.message)
		if ok != tc.wantOK {
			t.Fatalf("消息 %q 匹配结果不符: %v", tc.message, ok)
		}
		if ok && pool.Key != tc.wantKey {
			t.Fatalf("消息 %q 匹配到 %s, 期望 %s", tc.message, pool.Key, tc.wantKey)
		}
	}
}

func TestPairAddressesSkipsUnlisted(t *testing.T) {
	addrs := Builtin().PairAddresses()
	if len(addrs) != 1 {
		t.Fatalf("期望只返回已上线的池子, 实际 %v", addrs)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pools.yaml")
	content := `pools:
  - key: AVAX_USDC
    name: AVAX-USDC
    network: avalanche
    chain_id: 43114
    pair_address: "0xd446eb1660f766d533beceef890df7a69d26f7d1"
    router: "0xb4315e873dBcf96Ffd0acd8EA43f689D8c20fB30"
    bin_step: 20
    token_x:
      symbol: AVAX
      address: "0xB31f66AA3C1e785363F0875A1B74E27b85FD66c7"
      decimals: 18
    token_y:
      symbol: USDC
      address: "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E"
      decimals: 6
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入测试文件失败: %v", err)
	}

	reg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if len(reg.All()) != 1 {
		t.Fatalf("池子数量不匹配: %d", len(reg.All()))
	}
	if _, ok := reg.Get("AVAX_USDC"); !ok {
		t.Fatalf("加载后缺少 AVAX_USDC")
	}
}

func TestLoadFileEmptyPathFallsBack(t *testing.T) {
	reg, err := LoadFile("")
	if err != nil {
		t.Fatalf("空路径应返回内置清单: %v", err)
	}
	if len(reg.All()) != 2 {
		t.Fatalf("内置池子数量不匹配: %d", len(reg.All()))
	}
}

func TestLoadFileDuplicateKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pools.yaml")
	content := `pools:
  - key: P1
    token_x: {symbol: A}
    token_y: {symbol: B}
  - key: P1
    token_x: {symbol: A}
    token_y: {symbol: B}
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入测试文件失败: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("重复 key 应当报错")
	}
}

// Package pools maintains the catalogue of supported Trader Joe V2 liquidity
// pools. The catalogue ships with built-in Avalanche pools and can be replaced
// by a YAML file at startup.
package pools

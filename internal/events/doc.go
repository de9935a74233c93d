// Package events streams on-chain liquidity pool activity into message
// queues. The scanner subscribes to pair contract logs through the web3
// client and publishes JSON-encoded events; queue drivers exist for
// in-memory channels, Redis lists, and RabbitMQ.
package events

// Package agent contains the conversational handlers behind the router: a
// general crypto assistant, a pool risk analyst, a liquidity provider
// assistant, an ERC-20 deployment assistant and an image generator. Every
// handler speaks the same response contract so callers can treat them
// uniformly.
package agent

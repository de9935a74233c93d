// Package market aggregates external market data: spot prices from CoinGecko,
// Argentine dollar rates from dolarapi.com and Trader Joe pool metrics built
// from subgraph data plus on-chain state. All sources cache their results for
// a short TTL to keep the conversational path responsive.
package market

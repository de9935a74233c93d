// Package web3 defines the chain-agnostic contracts used by the agent and
// market layers to read pool state, deploy contracts and stream events. The
// ethereum subpackage provides the go-ethereum backed implementation.
package web3

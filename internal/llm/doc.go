// Package llm contains adapters for invoking large language models. It
// abstracts away provider-specific APIs and normalizes both free-text
// completions and constrained function-call responses for use within the
// routing and agent layers.
package llm

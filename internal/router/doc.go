// Package router dispatches user messages to intent handlers. Classification
// failures fall back to the general handler and handler failures degrade to a
// structured error response, so callers always get a well formed result.
package router

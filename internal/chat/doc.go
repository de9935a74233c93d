// Package chat defines the request/response vocabulary shared by the router,
// the intent classifier and every agent handler: conversation turns, routing
// decisions and the uniform JSON-serializable response envelope.
package chat

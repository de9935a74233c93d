// Package mysql provides data access helpers backed by MySQL. It
// encapsulates connection pooling, schema migrations, and the persistent
// user store consumed by the authentication service.
package mysql

package auth

import (
	"context"
	"errors"
	"time"
)

// Common errors returned by the authentication subsystem.
var (
	ErrDisabled         = errors.New("authentication disabled")
	ErrMissingAPIKey    = errors.New("missing api key")
	ErrInvalidAPIKey    = errors.New("invalid api key")
	ErrUserNotFound     = errors.New("user not found")
	ErrUsernameRequired = errors.New("username is required")
)

// Store abstracts the persistent user catalogue used by the authentication
// service. Implementations must be safe for concurrent use.
type Store interface {
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	FindUserByAPIKey(ctx context.Context, apiKey string) (*User, error)
	CreateUser(ctx context.Context, username string) (*User, error)
	SaveAPIKey(ctx context.Context, userID int64, apiKey string) error
}

// User represents a persisted account identified by username with an
// optional API key credential.
type User struct {
	ID        int64
	Username  string
	APIKey    string
	CreatedAt time.Time
}

// Clone creates a copy of the user suitable for handing to callers.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

// Mode enumerates the supported authentication providers.
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeAPIKey   Mode = "apikey"
)

// Config configures the authentication service.
type Config struct {
	Mode Mode
}

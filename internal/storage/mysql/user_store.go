package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"Sofia-Agent/internal/auth"
)

// SQLUserStore persists user accounts and API keys in MySQL. It implements
// auth.Store.
type SQLUserStore struct {
	db *sql.DB
}

// NewSQLUserStore creates the store using the provided connection settings
// and applies any pending schema migrations.
func NewSQLUserStore(ctx context.Context, cfg Config) (*SQLUserStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLUserStore{db: db}, nil
}

// Close releases the underlying database connection pool.
func (s *SQLUserStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateUser implements auth.Store.
func (s *SQLUserStore) CreateUser(ctx context.Context, username string) (*auth.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, auth.ErrUsernameRequired
	}
	now := time.Now()
	const query = `INSERT INTO users (username, api_key, created_at) VALUES (?, NULL, ?)`
	res, err := s.db.ExecContext(ctx, query, username, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("获取用户ID失败: %w", err)
	}
	return &auth.User{ID: id, Username: username, CreatedAt: now}, nil
}

// FindUserByUsername implements auth.Store.
func (s *SQLUserStore) FindUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	const query = `SELECT id, username, api_key, created_at FROM users WHERE username = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, strings.TrimSpace(username)))
}

// FindUserByAPIKey implements auth.Store.
func (s *SQLUserStore) FindUserByAPIKey(ctx context.Context, apiKey string) (*auth.User, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, auth.ErrInvalidAPIKey
	}
	const query = `SELECT id, username, api_key, created_at FROM users WHERE api_key = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, apiKey))
}

// SaveAPIKey implements auth.Store.
func (s *SQLUserStore) SaveAPIKey(ctx context.Context, userID int64, apiKey string) error {
	const query = `UPDATE users SET api_key = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, apiKey, userID)
	if err != nil {
		return fmt.Errorf("更新 API 密钥失败: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("确认更新结果失败: %w", err)
	}
	if affected == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

func (s *SQLUserStore) scanUser(row *sql.Row) (*auth.User, error) {
	var user auth.User
	var apiKey sql.NullString
	var createdAt int64
	if err := row.Scan(&user.ID, &user.Username, &apiKey, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	if apiKey.Valid {
		user.APIKey = apiKey.String
	}
	user.CreatedAt = time.Unix(createdAt, 0)
	return &user, nil
}

package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"banward/model"
)

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS punishments (
    id INT AUTO_INCREMENT PRIMARY KEY,
    punished_uuid VARCHAR(36) NULL,
    punished_name VARCHAR(16) NULL,
    punished_ip VARCHAR(45) NULL,
    moderator_uuid VARCHAR(36),
    moderator_name VARCHAR(16) NOT NULL,
    type VARCHAR(20) NOT NULL,
    reason VARCHAR(255) NOT NULL,
    ban_time BIGINT NOT NULL,
    expire_time BIGINT NOT NULL,
    active BOOLEAN NOT NULL,
    INDEX idx_punished_uuid (punished_uuid, type, active),
    INDEX idx_punished_ip (punished_ip, type, active),
    INDEX idx_active_type (active, type)
)`

const mysqlPlayerIPSchema = `
CREATE TABLE IF NOT EXISTS player_ips (
    player_uuid VARCHAR(36) PRIMARY KEY,
    ip_address VARCHAR(45) NOT NULL,
    last_seen BIGINT NOT NULL
)`

// MySQLBackend is the networked engine behind a bounded connection pool.
// Acquire borrows from the pool and blocks up to the configured wait,
// surfacing ErrPoolExhausted when nothing frees up in time.
type MySQLBackend struct {
	cfg model.MySQLConfig
	log *zap.SugaredLogger

	mu sync.Mutex
	db *sqlx.DB
}

// NewMySQLBackend builds the backend from config; nothing is dialed
// until Connect.
func NewMySQLBackend(cfg model.MySQLConfig, log *zap.SugaredLogger) *MySQLBackend {
	return &MySQLBackend{cfg: cfg, log: log}
}

// Connect dials the server, configures the pool and ensures the tables
// exist. Idempotent; failure is fatal to startup.
func (b *MySQLBackend) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db != nil {
		return nil
	}

	dsn := mysql.NewConfig()
	dsn.User = b.cfg.Username
	dsn.Passwd = b.cfg.Password
	dsn.Net = "tcp"
	dsn.Addr = fmt.Sprintf("%s:%d", b.cfg.Host, b.cfg.Port)
	dsn.DBName = b.cfg.Database
	dsn.Timeout = b.cfg.ConnTimeout
	if b.cfg.UseSSL {
		dsn.TLSConfig = "true"
	}

	db, err := sqlx.Connect("mysql", dsn.FormatDSN())
	if err != nil {
		return fmt.Errorf("failed to connect to mysql at %s: %w", dsn.Addr, errors.Join(ErrStoreUnavailable, err))
	}

	db.SetMaxOpenConns(b.cfg.MaxPoolSize)
	db.SetMaxIdleConns(b.cfg.MinIdle)
	db.SetConnMaxLifetime(b.cfg.MaxLifetime)
	db.SetConnMaxIdleTime(b.cfg.IdleTimeout)

	for _, stmt := range []string{mysqlSchema, mysqlPlayerIPSchema} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to create mysql tables: %w", errors.Join(ErrStoreUnavailable, err))
		}
	}

	b.db = db
	b.log.Infow("mysql store ready", "addr", dsn.Addr, "database", b.cfg.Database, "pool_size", b.cfg.MaxPoolSize)
	return nil
}

// Acquire borrows a pooled connection, waiting at most the configured
// connection timeout for a slot.
func (b *MySQLBackend) Acquire(ctx context.Context) (*sqlx.Conn, error) {
	b.mu.Lock()
	db := b.db
	b.mu.Unlock()
	if db == nil {
		return nil, ErrStoreUnavailable
	}

	wait := b.cfg.ConnTimeout
	if wait <= 0 {
		wait = 10 * time.Second
	}
	// The deadline only governs pool acquisition; the connection outlives it.
	actx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	conn, err := db.Connx(actx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("no connection available within %s: %w", wait, ErrPoolExhausted)
		}
		return nil, err
	}
	return conn, nil
}

// Healthy pings the server.
func (b *MySQLBackend) Healthy(ctx context.Context) bool {
	b.mu.Lock()
	db := b.db
	b.mu.Unlock()
	if db == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return db.PingContext(ctx) == nil
}

// Dialect names the engine for dialect-specific statements.
func (b *MySQLBackend) Dialect() string { return "mysql" }

// Close drains and closes the pool. Safe to call multiple times;
// database/sql waits for borrowed connections to be returned.
func (b *MySQLBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	b.log.Info("mysql store closed")
	return err
}

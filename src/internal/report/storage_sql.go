package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/admi-n/trustguard/src/config"
)

const mysqlSchema = `CREATE TABLE IF NOT EXISTS audit_reports (
	id          CHAR(36)     NOT NULL PRIMARY KEY,
	provider    VARCHAR(128) NOT NULL,
	created_at  DATETIME     NOT NULL,
	total       INT          NOT NULL,
	failed      INT          NOT NULL,
	categories  JSON         NOT NULL,
	content     LONGTEXT     NOT NULL
) CHARACTER SET utf8mb4`

const postgresSchema = `CREATE TABLE IF NOT EXISTS audit_reports (
	id          UUID         PRIMARY KEY,
	provider    TEXT         NOT NULL,
	created_at  TIMESTAMPTZ  NOT NULL,
	total       INTEGER      NOT NULL,
	failed      INTEGER      NOT NULL,
	categories  JSONB        NOT NULL,
	content     TEXT         NOT NULL
)`

// sqlDB *sql.DB 中用到的部分
type sqlDB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Close() error
}

// MySQLStorage 把报告归档到 MySQL
type MySQLStorage struct {
	db sqlDB
}

// NewMySQLStorage 创建 MySQL 存储，Close 时关闭 db
func NewMySQLStorage(db sqlDB) *MySQLStorage {
	return &MySQLStorage{db: db}
}

// EnsureSchema 建表
func (s *MySQLStorage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, mysqlSchema); err != nil {
		return fmt.Errorf("failed to create audit_reports table: %w", err)
	}
	return nil
}

// Save 插入一条报告记录
func (s *MySQLStorage) Save(ctx context.Context, report *Report, content string) (string, error) {
	categories, err := json.Marshal(report.CategoryDistribution)
	if err != nil {
		return "", fmt.Errorf("failed to marshal categories: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO audit_reports (id, provider, created_at, total, failed, categories, content) VALUES (?, ?, ?, ?, ?, ?, ?)",
		report.ID, report.AIProvider, report.CreatedAt.UTC(), report.TotalContracts, report.FailedContracts, string(categories), content)
	if err != nil {
		return "", fmt.Errorf("failed to insert report into mysql: %w", err)
	}

	return "mysql:audit_reports/" + report.ID, nil
}

// Close 关闭连接池
func (s *MySQLStorage) Close() error {
	return s.db.Close()
}

// pgPool *pgxpool.Pool 中用到的部分
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresStorage 把报告归档到 PostgreSQL
type PostgresStorage struct {
	pool pgPool
}

// NewPostgresStorage 创建 PostgreSQL 存储，Close 时关闭连接池
func NewPostgresStorage(pool pgPool) *PostgresStorage {
	return &PostgresStorage{pool: pool}
}

// EnsureSchema 建表
func (s *PostgresStorage) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create audit_reports table: %w", err)
	}
	return nil
}

// Save 插入一条报告记录
func (s *PostgresStorage) Save(ctx context.Context, report *Report, content string) (string, error) {
	categories, err := json.Marshal(report.CategoryDistribution)
	if err != nil {
		return "", fmt.Errorf("failed to marshal categories: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		"INSERT INTO audit_reports (id, provider, created_at, total, failed, categories, content) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		report.ID, report.AIProvider, report.CreatedAt, report.TotalContracts, report.FailedContracts, json.RawMessage(categories), content)
	if err != nil {
		return "", fmt.Errorf("failed to insert report into postgres: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return "", fmt.Errorf("unexpected rows affected inserting report: %d", tag.RowsAffected())
	}

	return "postgres:audit_reports/" + report.ID, nil
}

// Close 关闭连接池
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

// OpenDatabaseStorage 按配置连接数据库并建表
func OpenDatabaseStorage(ctx context.Context, cfg config.DatabaseConfig) (Storage, error) {
	driver, err := cfg.NormalizedDriver()
	if err != nil {
		return nil, err
	}

	switch driver {
	case config.DriverMySQL:
		db, err := config.OpenMySQL(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		s := NewMySQLStorage(db)
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil

	default:
		pool, err := config.OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		s := NewPostgresStorage(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	}
}

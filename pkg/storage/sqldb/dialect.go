// Package sqldb 提供Repository契约的sqlx实现，通过Dialect适配
// SQLite / MySQL / PostgreSQL三种数据库。
package sqldb

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Dialect 数据库方言接口（对外导出）
type Dialect interface {
	// Name 方言名称（sqlite/mysql/postgres）
	Name() string

	// DriverName sqlx使用的驱动名
	DriverName() string

	// NormalizeDSN 规整DSN（如MySQL补充parseTime=true）
	NormalizeDSN(dsn string) string

	// ConfigureDB 连接建立后执行的配置SQL
	ConfigureDB() []string

	// CreateTableSQL 将基准DDL（SQLite风格）转换为方言兼容的DDL
	CreateTableSQL(schema string) string

	// UpsertSQL 生成UPSERT语句（命名占位符形式）
	UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string

	// CreateIndexSQL 生成建索引语句
	// MySQL不支持CREATE INDEX IF NOT EXISTS，重复建索引的错误由调用方过滤
	CreateIndexSQL(indexName, tableName, column string) string

	// LockSuffix 行锁后缀（读改写事务中SELECT语句使用，SQLite返回空）
	LockSuffix() string
}

// NewDialect 按数据库类型创建方言实例（对外导出）
func NewDialect(dbType string) (Dialect, error) {
	switch dbType {
	case "sqlite":
		return NewSQLiteDialect(), nil
	case "mysql":
		return NewMySQLDialect(), nil
	case "postgres", "postgresql":
		return NewPostgresDialect(), nil
	default:
		return nil, fmt.Errorf("不支持的数据库类型: %s（支持sqlite/mysql/postgres）", dbType)
	}
}

// Open 按类型和DSN打开数据库连接并应用方言配置（对外导出）
func Open(dbType, dsn string) (*sqlx.DB, Dialect, error) {
	dialect, err := NewDialect(dbType)
	if err != nil {
		return nil, nil, err
	}

	db, err := sqlx.Open(dialect.DriverName(), dialect.NormalizeDSN(dsn))
	if err != nil {
		return nil, nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	for _, stmt := range dialect.ConfigureDB() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("配置数据库失败: %w", err)
		}
	}

	return db, dialect, nil
}

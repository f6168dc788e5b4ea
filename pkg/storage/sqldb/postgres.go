package sqldb

import (
	"strings"

	_ "github.com/lib/pq"
)

// PostgresDialect PostgreSQL方言实现（对外导出）
type PostgresDialect struct{}

// NewPostgresDialect 创建PostgreSQL方言实例
func NewPostgresDialect() *PostgresDialect {
	return &PostgresDialect{}
}

// Name 返回方言名称
func (d *PostgresDialect) Name() string {
	return "postgres"
}

// DriverName 返回驱动名
func (d *PostgresDialect) DriverName() string {
	return "postgres"
}

// NormalizeDSN PostgreSQL的DSN原样返回
func (d *PostgresDialect) NormalizeDSN(dsn string) string {
	return dsn
}

// ConfigureDB PostgreSQL无需额外配置SQL
func (d *PostgresDialect) ConfigureDB() []string {
	return nil
}

// CreateTableSQL 转换DDL为PostgreSQL兼容格式
func (d *PostgresDialect) CreateTableSQL(schema string) string {
	return strings.ReplaceAll(schema, "DATETIME", "TIMESTAMP")
}

// UpsertSQL 返回PostgreSQL的UPSERT语句（ON CONFLICT DO UPDATE）
func (d *PostgresDialect) UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string {
	namedPlaceholders := make([]string, len(columns))
	for i, col := range columns {
		namedPlaceholders[i] = ":" + col
	}
	updateParts := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updateParts[i] = col + " = EXCLUDED." + col
	}
	return "INSERT INTO " + tableName +
		" (" + strings.Join(columns, ", ") + ") VALUES (" + strings.Join(namedPlaceholders, ", ") + ")" +
		" ON CONFLICT (" + conflictColumn + ") DO UPDATE SET " + strings.Join(updateParts, ", ")
}

// CreateIndexSQL 返回建索引语句
func (d *PostgresDialect) CreateIndexSQL(indexName, tableName, column string) string {
	return "CREATE INDEX IF NOT EXISTS " + indexName + " ON " + tableName + "(" + column + ")"
}

// LockSuffix 读改写事务中使用行锁
func (d *PostgresDialect) LockSuffix() string {
	return " FOR UPDATE"
}

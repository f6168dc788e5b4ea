package sqldb

import (
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteDialect SQLite方言实现（对外导出）
type SQLiteDialect struct{}

// NewSQLiteDialect 创建SQLite方言实例
func NewSQLiteDialect() *SQLiteDialect {
	return &SQLiteDialect{}
}

// Name 返回方言名称
func (d *SQLiteDialect) Name() string {
	return "sqlite"
}

// DriverName 返回驱动名
func (d *SQLiteDialect) DriverName() string {
	return "sqlite3"
}

// NormalizeDSN 确保DSN包含_txlock=immediate
// 读改写事务必须以BEGIN IMMEDIATE开启：延迟事务在WAL下先读后写，
// 升级写锁失败时报SQLITE_BUSY_SNAPSHOT且busy_timeout不重试；
// immediate事务在BEGIN时即取写锁，冲突走busy_timeout排队
func (d *SQLiteDialect) NormalizeDSN(dsn string) string {
	if strings.Contains(dsn, "_txlock=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_txlock=immediate"
	}
	return dsn + "?_txlock=immediate"
}

// ConfigureDB 返回SQLite配置SQL
// WAL+busy_timeout让并发读改写事务串行排队而不是直接报锁冲突
func (d *SQLiteDialect) ConfigureDB() []string {
	return []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=30000;",
		"PRAGMA wal_autocheckpoint=1000;",
		"PRAGMA synchronous=NORMAL;",
	}
}

// CreateTableSQL 基准DDL即SQLite风格，原样返回
func (d *SQLiteDialect) CreateTableSQL(schema string) string {
	return schema
}

// UpsertSQL 返回SQLite的UPSERT语句
func (d *SQLiteDialect) UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string {
	namedPlaceholders := make([]string, len(columns))
	for i, col := range columns {
		namedPlaceholders[i] = ":" + col
	}
	return "INSERT OR REPLACE INTO " + tableName +
		" (" + strings.Join(columns, ", ") + ") VALUES (" + strings.Join(namedPlaceholders, ", ") + ")"
}

// CreateIndexSQL 返回建索引语句
func (d *SQLiteDialect) CreateIndexSQL(indexName, tableName, column string) string {
	return "CREATE INDEX IF NOT EXISTS " + indexName + " ON " + tableName + "(" + column + ")"
}

// LockSuffix SQLite没有SELECT ... FOR UPDATE，
// 由_txlock=immediate在BEGIN时取写锁串行化
func (d *SQLiteDialect) LockSuffix() string {
	return ""
}

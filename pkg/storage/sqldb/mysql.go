package sqldb

import (
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLDialect MySQL方言实现（对外导出）
type MySQLDialect struct{}

// NewMySQLDialect 创建MySQL方言实例
func NewMySQLDialect() *MySQLDialect {
	return &MySQLDialect{}
}

// Name 返回方言名称
func (d *MySQLDialect) Name() string {
	return "mysql"
}

// DriverName 返回驱动名
func (d *MySQLDialect) DriverName() string {
	return "mysql"
}

// NormalizeDSN 确保DSN包含parseTime=true，否则DATETIME无法扫描为time.Time
func (d *MySQLDialect) NormalizeDSN(dsn string) string {
	if strings.Contains(dsn, "parseTime=true") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}

// ConfigureDB MySQL无需额外配置SQL
func (d *MySQLDialect) ConfigureDB() []string {
	return nil
}

// CreateTableSQL 基准DDL的键列均为VARCHAR（MySQL不允许TEXT列做键），原样返回
func (d *MySQLDialect) CreateTableSQL(schema string) string {
	return schema
}

// UpsertSQL 返回MySQL的UPSERT语句（ON DUPLICATE KEY UPDATE）
func (d *MySQLDialect) UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string {
	namedPlaceholders := make([]string, len(columns))
	for i, col := range columns {
		namedPlaceholders[i] = ":" + col
	}
	updateParts := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updateParts[i] = col + " = VALUES(" + col + ")"
	}
	return "INSERT INTO " + tableName +
		" (" + strings.Join(columns, ", ") + ") VALUES (" + strings.Join(namedPlaceholders, ", ") + ")" +
		" ON DUPLICATE KEY UPDATE " + strings.Join(updateParts, ", ")
}

// CreateIndexSQL 返回建索引语句
// MySQL 8不支持IF NOT EXISTS，重复建索引报1061由调用方忽略
func (d *MySQLDialect) CreateIndexSQL(indexName, tableName, column string) string {
	return "CREATE INDEX " + indexName + " ON " + tableName + "(" + column + ")"
}

// LockSuffix 读改写事务中使用行锁
func (d *MySQLDialect) LockSuffix() string {
	return " FOR UPDATE"
}

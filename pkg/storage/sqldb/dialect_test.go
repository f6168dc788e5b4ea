package sqldb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSQLiteDialect_NormalizeDSN(t *testing.T) {
	d := NewSQLiteDialect()

	// 写事务必须BEGIN IMMEDIATE，否则WAL下延迟升级写锁报BUSY_SNAPSHOT
	assert.Equal(t, "flow.db?_txlock=immediate", d.NormalizeDSN("flow.db"))
	assert.Equal(t, "flow.db?cache=shared&_txlock=immediate", d.NormalizeDSN("flow.db?cache=shared"))

	// 调用方显式指定时不覆盖
	assert.Equal(t, "flow.db?_txlock=deferred", d.NormalizeDSN("flow.db?_txlock=deferred"))
}

func TestDialect_CreateIndexSQL(t *testing.T) {
	sqlite := NewSQLiteDialect().CreateIndexSQL("idx_t", "t", "c")
	postgres := NewPostgresDialect().CreateIndexSQL("idx_t", "t", "c")
	mysql := NewMySQLDialect().CreateIndexSQL("idx_t", "t", "c")

	assert.Contains(t, sqlite, "IF NOT EXISTS")
	assert.Contains(t, postgres, "IF NOT EXISTS")
	// MySQL 8不支持CREATE INDEX IF NOT EXISTS
	assert.NotContains(t, mysql, "IF NOT EXISTS")
	assert.Equal(t, "CREATE INDEX idx_t ON t(c)", mysql)
}

func TestMySQLDialect_CreateTableSQL_Passthrough(t *testing.T) {
	// 基准DDL的键列均为VARCHAR（MySQL拒绝无前缀长度的TEXT键列），无需改写
	schema := `CREATE TABLE IF NOT EXISTS step_definition (
		id VARCHAR(191) NOT NULL,
		workflow_id VARCHAR(191) NOT NULL,
		config TEXT,
		PRIMARY KEY (workflow_id, id)
	)`
	assert.Equal(t, schema, NewMySQLDialect().CreateTableSQL(schema))
}

func TestIsDuplicateIndexError(t *testing.T) {
	assert.True(t, isDuplicateIndexError(fmt.Errorf("Error 1061 (42000): Duplicate key name 'idx_execution_tenant'")))
	assert.True(t, isDuplicateIndexError(fmt.Errorf("index idx_execution_tenant already exists")))
	assert.False(t, isDuplicateIndexError(fmt.Errorf("syntax error")))
	assert.False(t, isDuplicateIndexError(nil))
}

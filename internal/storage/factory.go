// Package storage 提供按配置装配持久化层的内部工厂。
package storage

import (
	"fmt"
	"time"

	"github.com/LENAX/flow-engine/pkg/config"
	"github.com/LENAX/flow-engine/pkg/storage"
	"github.com/LENAX/flow-engine/pkg/storage/sqldb"
)

// PoolConfig 连接池配置（内部使用）
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// NewRepository 按数据库类型创建Repository（内部方法）
// dbType: 数据库类型（sqlite/mysql/postgres）
// dsn: 数据库连接字符串
func NewRepository(dbType, dsn string, pool PoolConfig) (storage.Repository, error) {
	db, dialect, err := sqldb.Open(dbType, dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	repo, err := sqldb.NewRepository(db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewRepositoryFromConfig 从配置创建Repository（内部方法）
func NewRepositoryFromConfig(cfg *config.Config) (storage.Repository, error) {
	dbCfg := cfg.FlowEngine.Storage.Database
	return NewRepository(dbCfg.Type, dbCfg.DSN, PoolConfig{
		MaxOpenConns:    dbCfg.MaxOpenConns,
		MaxIdleConns:    dbCfg.MaxIdleConns,
		ConnMaxLifetime: dbCfg.ConnMaxLifetime,
		ConnMaxIdleTime: dbCfg.ConnMaxIdleTime,
	})
}

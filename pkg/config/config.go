// Package config 定义引擎配置结构与YAML加载。
package config

import (
	"fmt"
	"time"
)

// Config 引擎配置（对外导出）
type Config struct {
	FlowEngine struct {
		General struct {
			InstanceName string `yaml:"instance_name"`
			LogLevel     string `yaml:"log_level"`
			Env          string `yaml:"env"`
		} `yaml:"general"`
		HTTP struct {
			Port int `yaml:"port"`
		} `yaml:"http"`
		Storage struct {
			Database struct {
				Type            string        `yaml:"type"`
				DSN             string        `yaml:"dsn"`
				MaxOpenConns    int           `yaml:"max_open_conns"`
				MaxIdleConns    int           `yaml:"max_idle_conns"`
				ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
				ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
			} `yaml:"database"`
		} `yaml:"storage"`
		Queue struct {
			WorkflowConcurrency int `yaml:"workflow_concurrency"`
			StepConcurrency     int `yaml:"step_concurrency"`
			RetryConcurrency    int `yaml:"retry_concurrency"`
		} `yaml:"queue"`
		Execution struct {
			DefaultStepTimeout time.Duration `yaml:"default_step_timeout"`
			MaxRetries         int           `yaml:"max_retries"`
		} `yaml:"execution"`
	} `yaml:"flow-engine"`
}

// GetDatabaseType 获取数据库类型
func (c *Config) GetDatabaseType() string {
	return c.FlowEngine.Storage.Database.Type
}

// GetDatabaseDSN 获取数据库DSN
func (c *Config) GetDatabaseDSN() string {
	return c.FlowEngine.Storage.Database.DSN
}

// GetHTTPPort 获取HTTP服务端口
func (c *Config) GetHTTPPort() int {
	return c.FlowEngine.HTTP.Port
}

// ApplyDefaults 应用默认值
func (c *Config) ApplyDefaults() {
	// General默认值
	if c.FlowEngine.General.InstanceName == "" {
		c.FlowEngine.General.InstanceName = "flow-engine"
	}
	if c.FlowEngine.General.LogLevel == "" {
		c.FlowEngine.General.LogLevel = "info"
	}
	if c.FlowEngine.General.Env == "" {
		c.FlowEngine.General.Env = "dev"
	}

	// HTTP默认值
	if c.FlowEngine.HTTP.Port <= 0 {
		c.FlowEngine.HTTP.Port = 8080
	}

	// Database默认值
	if c.FlowEngine.Storage.Database.Type == "" {
		c.FlowEngine.Storage.Database.Type = "sqlite"
	}
	if c.FlowEngine.Storage.Database.DSN == "" {
		c.FlowEngine.Storage.Database.DSN = "flow-engine.db"
	}
	if c.FlowEngine.Storage.Database.MaxOpenConns <= 0 {
		c.FlowEngine.Storage.Database.MaxOpenConns = 10
	}
	if c.FlowEngine.Storage.Database.MaxIdleConns <= 0 {
		c.FlowEngine.Storage.Database.MaxIdleConns = 5
	}
	if c.FlowEngine.Storage.Database.ConnMaxLifetime <= 0 {
		c.FlowEngine.Storage.Database.ConnMaxLifetime = 2 * time.Hour
	}
	if c.FlowEngine.Storage.Database.ConnMaxIdleTime <= 0 {
		c.FlowEngine.Storage.Database.ConnMaxIdleTime = 1 * time.Hour
	}

	// Queue默认值
	if c.FlowEngine.Queue.WorkflowConcurrency <= 0 {
		c.FlowEngine.Queue.WorkflowConcurrency = 10
	}
	if c.FlowEngine.Queue.StepConcurrency <= 0 {
		c.FlowEngine.Queue.StepConcurrency = 20
	}
	if c.FlowEngine.Queue.RetryConcurrency <= 0 {
		c.FlowEngine.Queue.RetryConcurrency = 5
	}

	// Execution默认值
	if c.FlowEngine.Execution.DefaultStepTimeout <= 0 {
		c.FlowEngine.Execution.DefaultStepTimeout = 30 * time.Second
	}
	if c.FlowEngine.Execution.MaxRetries <= 0 {
		c.FlowEngine.Execution.MaxRetries = 3
	}
}

// Validate 校验配置合法性
func (c *Config) Validate() error {
	switch c.FlowEngine.Storage.Database.Type {
	case "sqlite", "mysql", "postgres", "postgresql":
	default:
		return fmt.Errorf("不支持的数据库类型: %s", c.FlowEngine.Storage.Database.Type)
	}
	if c.FlowEngine.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP端口非法: %d", c.FlowEngine.HTTP.Port)
	}
	return nil
}

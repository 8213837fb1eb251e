package config

import (
	"time"

	"github.com/grand-thief-cash/yggdrasil/infra"
)

var bizConfig *BizConfig

// GetBizConfig returns the project config pointer. The loader fills it in
// during app boot; before that the zero value is visible.
func GetBizConfig() *BizConfig { return bizConfig }

type BizConfig struct {
	Orchestrator  OrchestratorConfig  `yaml:"orchestrator" json:"orchestrator"`
	GraphResource GraphResourceConfig `yaml:"graph_resource" json:"graph_resource"`
	Retrieval     RetrievalConfig     `yaml:"retrieval" json:"retrieval"`
}

type OrchestratorConfig struct {
	MaxWorkerPoolSize     int   `yaml:"max_worker_pool_size" json:"max_worker_pool_size"`
	DefaultTaskDeadlineMS int64 `yaml:"default_task_deadline_ms" json:"default_task_deadline_ms"`
	MaxPendingTasks       int   `yaml:"max_pending_tasks" json:"max_pending_tasks"`
}

func (c OrchestratorConfig) DefaultTaskDeadline() time.Duration {
	return time.Duration(c.DefaultTaskDeadlineMS) * time.Millisecond
}

type GraphResourceConfig struct {
	ShutdownGracePeriodMS int64       `yaml:"shutdown_grace_period_ms" json:"shutdown_grace_period_ms"`
	EagerInit             bool        `yaml:"eager_init" json:"eager_init"`
	Driver                string      `yaml:"driver" json:"driver"`
	Redis                 RedisConfig `yaml:"redis" json:"redis"`
	SQL                   SQLConfig   `yaml:"sql" json:"sql"`
}

func (c GraphResourceConfig) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGracePeriodMS) * time.Millisecond
}

type RedisConfig struct {
	Addrs          []string `yaml:"addrs" json:"addrs"`
	DB             int      `yaml:"db" json:"db"`
	Password       string   `yaml:"password" json:"password"`
	PoolSize       int      `yaml:"pool_size" json:"pool_size"`
	DialTimeoutMS  int64    `yaml:"dial_timeout_ms" json:"dial_timeout_ms"`
	ReadTimeoutMS  int64    `yaml:"read_timeout_ms" json:"read_timeout_ms"`
	WriteTimeoutMS int64    `yaml:"write_timeout_ms" json:"write_timeout_ms"`
}

type SQLConfig struct {
	Dialect           string `yaml:"dialect" json:"dialect"`
	DSN               string `yaml:"dsn" json:"dsn"`
	MaxOpenConns      int    `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns      int    `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetimeMS int64  `yaml:"conn_max_lifetime_ms" json:"conn_max_lifetime_ms"`
	AutoMigrate       bool   `yaml:"auto_migrate" json:"auto_migrate"`
}

func (c SQLConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMS) * time.Millisecond
}

type RetrievalConfig struct {
	DefaultPolicy        string `yaml:"default_policy" json:"default_policy"`
	MaxQueriesPerRequest int    `yaml:"max_queries_per_request" json:"max_queries_per_request"`
	ReportHistory        int    `yaml:"report_history" json:"report_history"`
}

func init() {
	bizConfig = &BizConfig{}
	app := infra.GetApp()
	app.SetBizConfig(bizConfig)
}

package registry_ext

import (
	"context"
	"time"

	prom "github.com/grand-thief-cash/yggdrasil/infra/components/prometheus"
	"github.com/grand-thief-cash/yggdrasil/infra/components/telemetry"
	"github.com/grand-thief-cash/yggdrasil/infra/config"
	appconsts "github.com/grand-thief-cash/yggdrasil/infra/consts"
	"github.com/grand-thief-cash/yggdrasil/infra/core"
	"github.com/grand-thief-cash/yggdrasil/infra/registry"
	bizConfig "github.com/grand-thief-cash/yggdrasil/internal/config"
	bizConsts "github.com/grand-thief-cash/yggdrasil/internal/consts"
	"github.com/grand-thief-cash/yggdrasil/internal/graph"
	"github.com/grand-thief-cash/yggdrasil/internal/orchestrator"
	"github.com/grand-thief-cash/yggdrasil/internal/resource"
	"github.com/grand-thief-cash/yggdrasil/internal/service"
	"github.com/grand-thief-cash/yggdrasil/internal/tracing"
)

func init() {
	bizCfg := bizConfig.GetBizConfig()

	// shared graph store behind the resource registry
	registry.RegisterWithDeps(bizConsts.COMP_SVC_GRAPH_RESOURCE, []string{appconsts.COMPONENT_LOGGING}, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		rc := &bizCfg.GraphResource
		opener := func(ctx context.Context) (graph.Store, error) {
			return graph.Open(ctx, graph.Config{
				Driver: rc.Driver,
				Redis: graph.RedisOptions{
					Addrs:        rc.Redis.Addrs,
					DB:           rc.Redis.DB,
					Password:     rc.Redis.Password,
					PoolSize:     rc.Redis.PoolSize,
					DialTimeout:  time.Duration(rc.Redis.DialTimeoutMS) * time.Millisecond,
					ReadTimeout:  time.Duration(rc.Redis.ReadTimeoutMS) * time.Millisecond,
					WriteTimeout: time.Duration(rc.Redis.WriteTimeoutMS) * time.Millisecond,
				},
				SQL: graph.SQLOptions{
					Dialect:         rc.SQL.Dialect,
					DSN:             rc.SQL.DSN,
					MaxOpenConns:    rc.SQL.MaxOpenConns,
					MaxIdleConns:    rc.SQL.MaxIdleConns,
					ConnMaxLifetime: rc.SQL.ConnMaxLifetime(),
					AutoMigrate:     rc.SQL.AutoMigrate,
				},
			})
		}
		return true, resource.NewComponent(resource.NewRegistry(opener), rc.ShutdownGrace(), rc.EagerInit), nil
	})

	// orchestrator; observability adapters attach only when their
	// components are enabled
	registry.RegisterWithDeps(bizConsts.COMP_SVC_ORCHESTRATOR, []string{
		appconsts.COMPONENT_LOGGING, appconsts.COMPONENT_PROMETHEUS, appconsts.COMPONENT_TELEMETRY,
	}, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		oc := bizCfg.Orchestrator
		orch := orchestrator.New(orchestrator.Config{
			MaxWorkerPoolSize: oc.MaxWorkerPoolSize,
			MaxPendingTasks:   oc.MaxPendingTasks,
			DefaultDeadline:   oc.DefaultTaskDeadline(),
		})
		orch.AddObserver(tracing.NewLogObserver())
		if comp, err := c.Resolve(appconsts.COMPONENT_PROMETHEUS); err == nil {
			if pc, ok := comp.(*prom.Component); ok {
				orch.AddObserver(tracing.NewMetricsObserver(pc))
			}
		}
		if comp, err := c.Resolve(appconsts.COMPONENT_TELEMETRY); err == nil {
			if tc, ok := comp.(*telemetry.TelemetryComponent); ok {
				orch.AddObserver(tracing.NewSpanObserver(tc.Tracer("yggdrasil/orchestrator")))
			}
		}
		return true, orch, nil
	})

	// retrieval report ring
	registry.Register(bizConsts.COMP_SVC_REPORT_STORE, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, service.NewReportStore(bizCfg.Retrieval.ReportHistory), nil
	})

	// retrieval service; field injection fills the tagged deps
	registry.RegisterWithDeps(bizConsts.COMP_SVC_RETRIEVAL, []string{
		bizConsts.COMP_SVC_GRAPH_RESOURCE, bizConsts.COMP_SVC_ORCHESTRATOR, bizConsts.COMP_SVC_REPORT_STORE,
	}, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, service.NewRetrievalService(&bizCfg.Retrieval), nil
	})
}

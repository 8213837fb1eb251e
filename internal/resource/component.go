package resource

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/grand-thief-cash/yggdrasil/infra/components/logging"
	appconsts "github.com/grand-thief-cash/yggdrasil/infra/consts"
	"github.com/grand-thief-cash/yggdrasil/infra/core"
	"github.com/grand-thief-cash/yggdrasil/internal/consts"
)

// Component hosts the registry in the app lifecycle: eager init on Start
// when configured, drain-then-close on Stop with the configured grace.
type Component struct {
	*core.BaseComponent
	registry *Registry
	grace    time.Duration
	eager    bool
}

func NewComponent(reg *Registry, grace time.Duration, eager bool) *Component {
	return &Component{
		BaseComponent: core.NewBaseComponent(consts.COMP_SVC_GRAPH_RESOURCE, appconsts.COMPONENT_LOGGING),
		registry:      reg,
		grace:         grace,
		eager:         eager,
	}
}

func (c *Component) Registry() *Registry { return c.registry }

func (c *Component) Start(ctx context.Context) error {
	if err := c.BaseComponent.Start(ctx); err != nil {
		return err
	}
	if c.eager {
		if _, err := c.registry.Get(ctx); err != nil {
			return fmt.Errorf("eager graph init failed: %w", err)
		}
	}
	logging.Info(ctx, "graph resource component started",
		zap.Bool("eager", c.eager),
		zap.String("state", string(c.registry.State())),
	)
	return nil
}

func (c *Component) Stop(ctx context.Context) error {
	defer c.BaseComponent.Stop(ctx)
	err := c.registry.Shutdown(ctx, c.grace)
	logging.Info(ctx, "graph resource component stopped",
		zap.Duration("grace", c.grace),
		zap.Int("leases_left", c.registry.Leases()),
	)
	return err
}

func (c *Component) HealthCheck() error {
	if err := c.BaseComponent.HealthCheck(); err != nil {
		return err
	}
	switch st := c.registry.State(); st {
	case StateUninitialized:
		// lazy registry: nothing to probe yet
		return nil
	case StateReady:
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return c.registry.Ping(ctx)
	default:
		return fmt.Errorf("graph resource %s (leases=%d)", st, c.registry.Leases())
	}
}

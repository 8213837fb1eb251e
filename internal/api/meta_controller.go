package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/grand-thief-cash/yggdrasil/infra"
	"github.com/grand-thief-cash/yggdrasil/infra/components/http_server"
	"github.com/grand-thief-cash/yggdrasil/infra/core"
	bizConsts "github.com/grand-thief-cash/yggdrasil/internal/consts"
)

// version is stamped by main (ldflags -X friendly via main.Version).
var version = "dev"

// SetVersion records the build version served by the meta endpoint.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

type MetaController struct {
	*core.BaseComponent
	startedAt time.Time
}

func NewMetaController() *MetaController {
	return &MetaController{BaseComponent: core.NewBaseComponent(bizConsts.COMP_CTRL_META)}
}

func (c *MetaController) Start(ctx context.Context) error {
	c.startedAt = time.Now()
	return c.BaseComponent.Start(ctx)
}

func (c *MetaController) Stop(ctx context.Context) error { return c.BaseComponent.Stop(ctx) }

func init() {
	http_server.RegisterRoutes(func(r chi.Router, c *core.Container) error {
		comp, err := c.Resolve(bizConsts.COMP_CTRL_META)
		if err != nil {
			return err
		}
		ctrl, ok := comp.(*MetaController)
		if !ok {
			return fmt.Errorf("meta_ctrl type assertion failed")
		}
		r.Get("/api/v1/meta", ctrl.meta)
		return nil
	})
}

func (c *MetaController) meta(w http.ResponseWriter, r *http.Request) {
	cfg := infra.GetApp().GetConfig()
	appName, env := "", ""
	if cfg != nil && cfg.APPInfo != nil {
		appName = cfg.APPInfo.APPName
		env = cfg.APPInfo.ENV
	}
	writeJSON(w, map[string]any{
		"app":      appName,
		"env":      env,
		"version":  version,
		"uptime_s": int64(time.Since(c.startedAt).Seconds()),
	})
}

package registry_ext

import (
	"github.com/grand-thief-cash/yggdrasil/infra/config"
	appconsts "github.com/grand-thief-cash/yggdrasil/infra/consts"
	"github.com/grand-thief-cash/yggdrasil/infra/core"
	"github.com/grand-thief-cash/yggdrasil/infra/registry"
	"github.com/grand-thief-cash/yggdrasil/internal/api"
	bizConsts "github.com/grand-thief-cash/yggdrasil/internal/consts"
)

func init() {
	// the http server must start after the controllers it resolves routes from
	registry.ExtendRuntimeDependencies(appconsts.COMPONENT_HTTP_SERVER,
		bizConsts.COMP_CTRL_RETRIEVAL, bizConsts.COMP_CTRL_GRAPH, bizConsts.COMP_CTRL_META)

	registry.RegisterWithDeps(bizConsts.COMP_CTRL_RETRIEVAL, []string{
		bizConsts.COMP_SVC_RETRIEVAL, bizConsts.COMP_SVC_ORCHESTRATOR, bizConsts.COMP_SVC_GRAPH_RESOURCE,
	}, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, api.NewRetrievalController(), nil
	})

	registry.RegisterWithDeps(bizConsts.COMP_CTRL_GRAPH, []string{
		bizConsts.COMP_SVC_GRAPH_RESOURCE,
	}, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, api.NewGraphController(), nil
	})

	registry.Register(bizConsts.COMP_CTRL_META, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, api.NewMetaController(), nil
	})
}

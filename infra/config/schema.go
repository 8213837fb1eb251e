package config

import (
	"github.com/grand-thief-cash/yggdrasil/infra/components/http_server"
	"github.com/grand-thief-cash/yggdrasil/infra/components/logging"
	"github.com/grand-thief-cash/yggdrasil/infra/components/prometheus"
	"github.com/grand-thief-cash/yggdrasil/infra/components/telemetry"
)

// AppConfig is the framework-level configuration tree. The biz_config
// subtree is opaque to the framework: the loader re-decodes it into the
// pointer the project supplies via SetBizConfig.
type AppConfig struct {
	APPInfo    *APPInfo                      `yaml:"app_info" json:"app_info"`
	Logging    *logging.LoggingConfig        `yaml:"logging" json:"logging"`
	HTTPServer *http_server.HTTPServerConfig `yaml:"http_server" json:"http_server"`
	Telemetry  *telemetry.Config             `yaml:"telemetry" json:"telemetry"`
	Prometheus *prometheus.Config            `yaml:"prometheus" json:"prometheus"`
	BizConfig  any                           `yaml:"biz_config" json:"biz_config"`
}

type APPInfo struct {
	APPName string `yaml:"app_name" json:"app_name"`
	ENV     string `yaml:"env" json:"env"`
}

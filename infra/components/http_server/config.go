package http_server

import "time"

// HTTPServerConfig defines server settings.
type HTTPServerConfig struct {
	Enabled         bool          `yaml:"enabled" json:"enabled"`
	Address         string        `yaml:"address" json:"address"`                   // e.g. ":8080"
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`         // max time reading the entire request; protects against slowloris clients
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`       // max time to finish writing the response
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout"`         // keep-alive idle window
	GracefulTimeout time.Duration `yaml:"graceful_timeout" json:"graceful_timeout"` // shutdown bound for in-flight requests
	RequestTimeout  time.Duration `yaml:"request_timeout" json:"request_timeout"`   // per-request middleware timeout
	// Built-in endpoints
	EnableHealth bool `yaml:"enable_health" json:"enable_health"`
	EnablePprof  bool `yaml:"enable_pprof" json:"enable_pprof"`
	// ServiceName is injected from APPInfo.APPName, not from YAML.
	ServiceName string `yaml:"-" json:"-"`
}

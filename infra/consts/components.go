package consts

const (
	COMPONENT_LOGGING     = "logging"
	COMPONENT_HTTP_SERVER = "http_server"
	COMPONENT_TELEMETRY   = "telemetry"
	COMPONENT_PROMETHEUS  = "prometheus"
)

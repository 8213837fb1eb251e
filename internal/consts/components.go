package consts

// Component names for the yggdrasil project layer.
const (
	COMP_SVC_GRAPH_RESOURCE = "graph_resource"
	COMP_SVC_ORCHESTRATOR   = "orchestrator"
	COMP_SVC_REPORT_STORE   = "report_store"
	COMP_SVC_RETRIEVAL      = "retrieval_service"

	COMP_CTRL_RETRIEVAL = "retrieval_ctrl"
	COMP_CTRL_GRAPH     = "graph_ctrl"
	COMP_CTRL_META      = "meta_ctrl"
)

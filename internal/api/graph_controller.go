package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/grand-thief-cash/yggdrasil/infra/components/http_server"
	"github.com/grand-thief-cash/yggdrasil/infra/core"
	bizConsts "github.com/grand-thief-cash/yggdrasil/internal/consts"
	"github.com/grand-thief-cash/yggdrasil/internal/graph"
	"github.com/grand-thief-cash/yggdrasil/internal/resource"
)

type GraphController struct {
	*core.BaseComponent
	Res *resource.Component `infra:"dep:graph_resource"`
}

func NewGraphController() *GraphController {
	return &GraphController{BaseComponent: core.NewBaseComponent(bizConsts.COMP_CTRL_GRAPH)}
}

func init() {
	http_server.RegisterRoutes(func(r chi.Router, c *core.Container) error {
		comp, err := c.Resolve(bizConsts.COMP_CTRL_GRAPH)
		if err != nil {
			return err
		}
		ctrl, ok := comp.(*GraphController)
		if !ok {
			return fmt.Errorf("graph_ctrl type assertion failed")
		}

		r.Route("/api/v1/graph", func(r chi.Router) {
			r.Put("/", ctrl.upsert)
			r.Get("/stats", ctrl.stats)
			r.Get("/nodes/{id}", ctrl.getNode)
		})
		return nil
	})
}

func (c *GraphController) upsert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nodes []graph.Node `json:"nodes"`
		Edges []graph.Edge `json:"edges"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, 400, err.Error())
		return
	}
	if len(req.Nodes) == 0 && len(req.Edges) == 0 {
		writeErr(w, 400, "empty_payload")
		return
	}
	err := c.Res.Registry().WithLease(r.Context(), func(g graph.Querier) error {
		if len(req.Nodes) > 0 {
			if err := g.UpsertNodes(r.Context(), req.Nodes); err != nil {
				return err
			}
		}
		if len(req.Edges) > 0 {
			if err := g.UpsertEdges(r.Context(), req.Edges); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		writeGraphErr(w, err)
		return
	}
	writeJSON(w, map[string]any{"nodes": len(req.Nodes), "edges": len(req.Edges)})
}

func (c *GraphController) getNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var node *graph.Node
	var neighbors []string
	err := c.Res.Registry().WithLease(r.Context(), func(g graph.Querier) error {
		n, err := g.Node(r.Context(), id)
		if err != nil {
			return err
		}
		adj, err := g.Adjacency(r.Context(), id)
		if err != nil {
			return err
		}
		node, neighbors = n, adj
		return nil
	})
	if err != nil {
		writeGraphErr(w, err)
		return
	}
	writeJSON(w, map[string]any{"node": node, "neighbors": neighbors})
}

func (c *GraphController) stats(w http.ResponseWriter, r *http.Request) {
	var nodes, edges int64
	err := c.Res.Registry().WithLease(r.Context(), func(g graph.Querier) error {
		n, err := g.NodeCount(r.Context())
		if err != nil {
			return err
		}
		e, err := g.EdgeCount(r.Context())
		if err != nil {
			return err
		}
		nodes, edges = n, e
		return nil
	})
	if err != nil {
		writeGraphErr(w, err)
		return
	}
	writeJSON(w, map[string]any{"nodes": nodes, "edges": edges})
}

func writeGraphErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, graph.ErrNotFound):
		writeErr(w, 404, "node_not_found")
	case errors.Is(err, resource.ErrUnavailable):
		writeErr(w, 503, err.Error())
	default:
		writeErr(w, 500, err.Error())
	}
}

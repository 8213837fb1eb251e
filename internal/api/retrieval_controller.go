package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/grand-thief-cash/yggdrasil/infra/components/http_server"
	"github.com/grand-thief-cash/yggdrasil/infra/core"
	bizConsts "github.com/grand-thief-cash/yggdrasil/internal/consts"
	"github.com/grand-thief-cash/yggdrasil/internal/model"
	"github.com/grand-thief-cash/yggdrasil/internal/orchestrator"
	"github.com/grand-thief-cash/yggdrasil/internal/resource"
	"github.com/grand-thief-cash/yggdrasil/internal/service"
)

type RetrievalController struct {
	*core.BaseComponent
	Svc  *service.RetrievalService  `infra:"dep:retrieval_service"`
	Orch *orchestrator.Orchestrator `infra:"dep:orchestrator"`
	Res  *resource.Component        `infra:"dep:graph_resource"`
}

func NewRetrievalController() *RetrievalController {
	return &RetrievalController{BaseComponent: core.NewBaseComponent(bizConsts.COMP_CTRL_RETRIEVAL)}
}

func init() {
	http_server.RegisterRoutes(func(r chi.Router, c *core.Container) error {
		comp, err := c.Resolve(bizConsts.COMP_CTRL_RETRIEVAL)
		if err != nil {
			return err
		}
		ctrl, ok := comp.(*RetrievalController)
		if !ok {
			return fmt.Errorf("retrieval_ctrl type assertion failed")
		}

		r.Route("/api/v1/retrievals", func(r chi.Router) {
			r.Post("/", ctrl.submit)
			r.Get("/", ctrl.list)
			r.Get("/{id}", ctrl.get)
			r.Post("/{id}/cancel", ctrl.cancel)
		})
		r.Get("/api/v1/orchestrator/stats", ctrl.stats)
		return nil
	})
}

func (c *RetrievalController) submit(w http.ResponseWriter, r *http.Request) {
	var req model.RetrievalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, 400, err.Error())
		return
	}
	rep, err := c.Svc.Submit(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			writeErr(w, 400, err.Error())
		case errors.Is(err, orchestrator.ErrStopped):
			writeErr(w, 503, err.Error())
		default:
			writeErr(w, 500, err.Error())
		}
		return
	}
	if rep.Status == model.RetrievalRunning {
		writeCode(w, 202, rep)
		return
	}
	writeJSON(w, rep)
}

func (c *RetrievalController) get(w http.ResponseWriter, r *http.Request) {
	rep, ok := c.Svc.Get(chi.URLParam(r, "id"))
	if !ok {
		writeErr(w, 404, "report_not_found")
		return
	}
	if rep.Status == model.RetrievalRunning {
		writeCode(w, 202, rep)
		return
	}
	writeJSON(w, rep)
}

func (c *RetrievalController) list(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeErr(w, 400, "invalid_limit")
			return
		}
		limit = n
	}
	writeJSON(w, map[string]any{"items": c.Svc.List(limit)})
}

func (c *RetrievalController) cancel(w http.ResponseWriter, r *http.Request) {
	err := c.Svc.Cancel(chi.URLParam(r, "id"))
	switch {
	case err == nil:
		writeJSON(w, map[string]any{"cancelled": true})
	case errors.Is(err, service.ErrReportNotFound):
		writeErr(w, 404, err.Error())
	case errors.Is(err, service.ErrReportFinished):
		writeErr(w, 409, err.Error())
	case errors.Is(err, orchestrator.ErrStopped):
		writeErr(w, 503, err.Error())
	default:
		writeErr(w, 500, err.Error())
	}
}

func (c *RetrievalController) stats(w http.ResponseWriter, r *http.Request) {
	reg := c.Res.Registry()
	writeJSON(w, map[string]any{
		"orchestrator": c.Orch.Stats(),
		"resource": map[string]any{
			"state":  string(reg.State()),
			"leases": reg.Leases(),
		},
	})
}

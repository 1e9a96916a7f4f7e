// Package monitor serves the HTTP surface of the counting system: JSON
// status endpoints, result export, a count chart and the Prometheus
// scrape target.
package monitor

import (
	"net/http"

	"github.com/banshee-data/footfall.report/internal/httputil"
	"github.com/banshee-data/footfall.report/internal/metrics"
	"github.com/banshee-data/footfall.report/internal/orchestrator"
	"github.com/banshee-data/footfall.report/internal/version"
)

// WebServer exposes orchestrator state over HTTP.
type WebServer struct {
	orch    *orchestrator.Orchestrator
	metrics *metrics.Metrics
	mux     *http.ServeMux
}

// NewWebServer builds the server and registers its routes. metrics may be
// nil, in which case /metrics is not served.
func NewWebServer(orch *orchestrator.Orchestrator, m *metrics.Metrics) *WebServer {
	ws := &WebServer{
		orch:    orch,
		metrics: m,
		mux:     http.NewServeMux(),
	}

	ws.mux.HandleFunc("/api/health", ws.handleHealth)
	ws.mux.HandleFunc("/api/summary", ws.handleSummary)
	ws.mux.HandleFunc("/api/tasks", ws.handleTasks)
	ws.mux.HandleFunc("/api/results", ws.handleResults)
	ws.mux.HandleFunc("/api/export", ws.handleExport)
	ws.mux.HandleFunc("/charts/counts", ws.handleCountsChart)
	if m != nil {
		ws.mux.Handle("/metrics", m.Handler())
	}
	return ws
}

// Handler returns the server's route multiplexer.
func (ws *WebServer) Handler() http.Handler {
	return ws.mux
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (ws *WebServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, ws.orch.GetSummary())
}

// taskView is the JSON shape served for one task.
type taskView struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Source    string `json:"source"`
	Alias     string `json:"alias,omitempty"`
	Threshold int    `json:"threshold"`
	Priority  int    `json:"priority"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

func (ws *WebServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	tasks := ws.orch.Tasks()
	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, taskView{
			ID:        t.ID,
			Kind:      t.Kind,
			Source:    t.Source,
			Alias:     t.Alias,
			Threshold: t.Threshold,
			Priority:  t.Priority,
			Status:    t.Status,
			Error:     t.Err,
		})
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"tasks": views})
}

func (ws *WebServer) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	all := ws.orch.Results().All()
	if taskID := r.URL.Query().Get("task_id"); taskID != "" {
		history, ok := all[taskID]
		if !ok {
			httputil.NotFound(w, "no results for task "+taskID)
			return
		}
		httputil.WriteJSONOK(w, map[string]interface{}{taskID: history})
		return
	}
	httputil.WriteJSONOK(w, all)
}

func (ws *WebServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	paths, err := ws.orch.ExportResults(format)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"exported": paths})
}

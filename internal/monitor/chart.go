package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/footfall.report/internal/httputil"
)

// handleCountsChart renders a bar chart (HTML) of per-task in/out totals
// using go-echarts. This is an operator convenience endpoint; structured
// data lives at /api/summary.
func (ws *WebServer) handleCountsChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	summary := ws.orch.GetSummary()

	taskIDs := make([]string, 0, len(summary.Tasks))
	for id := range summary.Tasks {
		taskIDs = append(taskIDs, id)
	}
	sort.Strings(taskIDs)

	inData := make([]opts.BarData, 0, len(taskIDs))
	outData := make([]opts.BarData, 0, len(taskIDs))
	for _, id := range taskIDs {
		ts := summary.Tasks[id]
		inData = append(inData, opts.BarData{Value: ts.TotalIn})
		outData = append(outData, opts.BarData{Value: ts.TotalOut})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Footfall Counts", Width: "1100px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "People counts by stream",
			Subtitle: fmt.Sprintf("tasks=%d net=%d", summary.TotalTasks, summary.Overall.NetCount),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(taskIDs).
		AddSeries("in", inData).
		AddSeries("out", outData)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

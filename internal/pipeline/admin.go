package pipeline

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/beat.report/internal/httputil"
	"github.com/banshee-data/beat.report/internal/version"
)

type statsResponse struct {
	Version version.Info `json:"version"`
	Stats
}

// AttachAdminRoutes mounts the pipeline debug pages on mux under /debug/.
func (p *Pipeline) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("beat-stats", "pipeline counters and tempo (JSON)", p.handleStats)
	debug.HandleFunc("beat-chart", "recent inter-beat intervals and filter period", p.handleChart)
	debug.HandleSilentFunc("beat-history", p.handleHistory)
}

func (p *Pipeline) handleStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, statsResponse{Version: version.Get(), Stats: p.Stats()})
}

func (p *Pipeline) handleHistory(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, p.History())
}

func (p *Pipeline) handleChart(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := renderChart(&buf, p.History(), p.Stats()); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func renderChart(buf *bytes.Buffer, history []HistoryPoint, s Stats) error {
	x := make([]string, 0, len(history))
	period := make([]opts.LineData, 0, len(history))
	ibi := make([]opts.LineData, 0, len(history))
	conf := make([]opts.LineData, 0, len(history))
	for _, pt := range history {
		x = append(x, fmt.Sprintf("%.2f", pt.RelativeTime))
		period = append(period, opts.LineData{Value: pt.Period})
		if pt.IBI > 0 {
			ibi = append(ibi, opts.LineData{Value: pt.IBI})
		} else {
			ibi = append(ibi, opts.LineData{Value: nil})
		}
		conf = append(conf, opts.LineData{Value: pt.ConfidenceStd})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Beat tracking", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Beat period",
			Subtitle: fmt.Sprintf("%.1f BPM, processed=%d duplicates=%d evicted=%d", s.Tempo.BPM, s.Processed, s.Duplicates, s.Queue.Evicted),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "seconds", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(x).
		AddSeries("period", period).
		AddSeries("ibi", ibi).
		AddSeries("confidence_std", conf)
	return line.Render(buf)
}

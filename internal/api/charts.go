package api

import (
	"bytes"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/cabinet.report/internal/camera"
	"github.com/banshee-data/cabinet.report/internal/httputil"
)

// eventChart renders an HTML bar chart of daily in/out event volume.
// Query params: device_id (optional), days (default 14).
func (s *Server) eventChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	days := 14
	if d := r.URL.Query().Get("days"); d != "" {
		v, err := strconv.Atoi(d)
		if err != nil || v < 1 || v > 365 {
			httputil.BadRequest(w, "invalid 'days' parameter")
			return
		}
		days = v
	}
	deviceID := r.URL.Query().Get("device_id")

	since := time.Now().AddDate(0, 0, -days)
	counts, err := s.db.EventCountsByDay(r.Context(), deviceID, since)
	if err != nil {
		httputil.InternalServerError(w, "failed to aggregate events")
		return
	}

	// Pivot rows into one series per direction over a shared day axis.
	daySet := make(map[string]bool)
	byDay := map[string]map[string]int{}
	for _, c := range counts {
		daySet[c.Day] = true
		if byDay[c.Direction] == nil {
			byDay[c.Direction] = make(map[string]int)
		}
		byDay[c.Direction][c.Day] = c.Count
	}
	dayAxis := make([]string, 0, len(daySet))
	for day := range daySet {
		dayAxis = append(dayAxis, day)
	}
	sort.Strings(dayAxis)

	bar := charts.NewBar()
	title := "Detection events per day"
	if deviceID != "" {
		title += " - " + deviceID
	}
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Cabinet Events", Width: "1000px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(dayAxis)

	for _, direction := range []string{string(camera.DirectionIn), string(camera.DirectionOut)} {
		series := make([]opts.BarData, len(dayAxis))
		for i, day := range dayAxis {
			series[i] = opts.BarData{Value: byDay[direction][day]}
		}
		bar.AddSeries(direction, series)
	}

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		httputil.InternalServerError(w, "failed to render chart")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

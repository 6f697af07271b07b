package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/bode.report/internal/bode"
)

// RenderHTML writes an interactive page with the gain and phase charts of
// r. It also renders partial results while a sweep is running.
func RenderHTML(w io.Writer, r *bode.SweepResult) error {
	page := components.NewPage()
	page.PageTitle = "Bode plot"
	page.AddCharts(gainChart(r), phaseChart(r))
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

func subtitle(r *bode.SweepResult) string {
	return fmt.Sprintf("run %s, %d points, %g Vpp, %d trigger errors, %d anomalies",
		r.RunID.String()[:8], len(r.Points), r.Amplitude,
		r.Count(bode.FlagTriggerError), r.Count(bode.FlagAnomaly))
}

func globalOpts(title, subtitleText, yName string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitleText}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "5%"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "log", Name: "Hz", NameLocation: "end"}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName, NameLocation: "middle", NameGap: 40}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
	}
}

func gainChart(r *bode.SweepResult) *charts.Line {
	var gain, ref []opts.LineData
	var trig []opts.ScatterData
	for _, pt := range r.Points {
		if pt.Flag == bode.FlagTriggerError {
			trig = append(trig, opts.ScatterData{Value: []interface{}{pt.Freq, 0}})
			continue
		}
		if pt.Plottable() {
			gain = append(gain, opts.LineData{Value: []interface{}{pt.Freq, pt.GainDB}})
		}
	}
	if n := len(r.Points); n > 0 {
		ref = []opts.LineData{
			{Value: []interface{}{r.Points[0].Freq, -3}},
			{Value: []interface{}{r.Points[n-1].Freq, -3}},
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(globalOpts("Amplitude", subtitle(r), "dB")...)
	line.AddSeries("gain", gain, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}))
	line.AddSeries("-3 dB", ref, charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed", Color: "#787878"}))
	if len(trig) > 0 {
		line.Overlap(markerSeries("trigger error", trig, "#d62728"))
	}
	return line
}

func phaseChart(r *bode.SweepResult) *charts.Line {
	var phase []opts.LineData
	markers := map[bode.Flag][]opts.ScatterData{}
	for _, pt := range r.Points {
		if pt.Flag == bode.FlagTriggerError {
			markers[pt.Flag] = append(markers[pt.Flag], opts.ScatterData{Value: []interface{}{pt.Freq, 0}})
			continue
		}
		phase = append(phase, opts.LineData{Value: []interface{}{pt.Freq, pt.PhaseDeg}})
		if pt.Flag != bode.FlagNormal {
			markers[pt.Flag] = append(markers[pt.Flag], opts.ScatterData{Value: []interface{}{pt.Freq, pt.PhaseDeg}})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(globalOpts("Phase", "", "deg")...)
	line.AddSeries("phase", phase, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}))
	for _, m := range []struct {
		flag  bode.Flag
		color string
	}{
		{bode.FlagTriggerError, "#d62728"},
		{bode.FlagLowAmplitudeUnreliablePhase, "#e6be00"},
		{bode.FlagAnomaly, "#ff7f0e"},
	} {
		if data := markers[m.flag]; len(data) > 0 {
			line.Overlap(markerSeries(m.flag.String(), data, m.color))
		}
	}
	return line
}

func markerSeries(name string, data []opts.ScatterData, color string) *charts.Scatter {
	s := charts.NewScatter()
	s.AddSeries(name, data,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: color}),
	)
	return s
}

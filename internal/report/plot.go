package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/bode.report/internal/bode"
)

var (
	traceColor     = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	referenceColor = color.RGBA{R: 120, G: 120, B: 120, A: 255}
	triggerColor   = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	lowAmpColor    = color.RGBA{R: 230, G: 190, B: 0, A: 255}
	anomalyColor   = color.RGBA{R: 255, G: 127, B: 14, A: 255}
)

const (
	plotWidth  = 10 * vg.Inch
	plotHeight = 5 * vg.Inch
)

// AmplitudePlot draws gain in dB against log frequency with a -3 dB
// reference line. Trigger errors are marked at 0 dB.
func AmplitudePlot(r *bode.SweepResult) (*plot.Plot, error) {
	p := newBodePlot(r, "Amplitude", "Gain (dB)")

	ref := plotter.NewFunction(func(float64) float64 { return -3 })
	ref.Color = referenceColor
	ref.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(ref)
	p.Legend.Add("-3 dB", ref)

	var trace, trig plotter.XYs
	for _, pt := range r.Points {
		switch {
		case pt.Flag == bode.FlagTriggerError:
			trig = append(trig, plotter.XY{X: pt.Freq, Y: 0})
		case pt.Plottable():
			trace = append(trace, plotter.XY{X: pt.Freq, Y: pt.GainDB})
		}
	}
	if err := addTrace(p, "gain", trace); err != nil {
		return nil, err
	}
	if err := addMarkers(p, "trigger error", trig, triggerColor, draw.CrossGlyph{}); err != nil {
		return nil, err
	}
	return p, nil
}

// PhasePlot draws phase in degrees against log frequency. Phases of
// low-amplitude and anomalous points are marked; trigger errors sit at 0.
func PhasePlot(r *bode.SweepResult) (*plot.Plot, error) {
	p := newBodePlot(r, "Phase", "Phase (deg)")

	var trace, trig, low, anom plotter.XYs
	for _, pt := range r.Points {
		xy := plotter.XY{X: pt.Freq, Y: pt.PhaseDeg}
		switch pt.Flag {
		case bode.FlagTriggerError:
			trig = append(trig, plotter.XY{X: pt.Freq, Y: 0})
			continue
		case bode.FlagLowAmplitudeUnreliablePhase:
			low = append(low, xy)
		case bode.FlagAnomaly:
			anom = append(anom, xy)
		}
		trace = append(trace, xy)
	}
	if err := addTrace(p, "phase", trace); err != nil {
		return nil, err
	}
	for _, m := range []struct {
		name  string
		xys   plotter.XYs
		color color.Color
		shape draw.GlyphDrawer
	}{
		{"trigger error", trig, triggerColor, draw.CrossGlyph{}},
		{"low amplitude", low, lowAmpColor, draw.TriangleGlyph{}},
		{"anomaly", anom, anomalyColor, draw.CircleGlyph{}},
	} {
		if err := addMarkers(p, m.name, m.xys, m.color, m.shape); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func newBodePlot(r *bode.SweepResult, title, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - %g to %g Hz, %g Vpp", title, r.Plan.StartFreq, r.Plan.EndFreq, r.Amplitude)
	p.X.Label.Text = "Frequency (Hz)"
	p.Y.Label.Text = yLabel
	// an explicit positive range keeps the log axis valid with no data
	if r.Plan.StartFreq > 0 && r.Plan.EndFreq > r.Plan.StartFreq {
		p.X.Min, p.X.Max = r.Plan.StartFreq, r.Plan.EndFreq
		p.X.Scale = plot.LogScale{}
		p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	}
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p
}

func addTrace(p *plot.Plot, name string, xys plotter.XYs) error {
	if len(xys) == 0 {
		return nil
	}
	line, points, err := plotter.NewLinePoints(xys)
	if err != nil {
		return fmt.Errorf("%s trace: %w", name, err)
	}
	line.Color = traceColor
	line.Width = vg.Points(1.5)
	points.Color = traceColor
	points.Radius = vg.Points(2)
	p.Add(line, points)
	p.Legend.Add(name, line, points)
	return nil
}

func addMarkers(p *plot.Plot, name string, xys plotter.XYs, c color.Color, shape draw.GlyphDrawer) error {
	if len(xys) == 0 {
		return nil
	}
	s, err := plotter.NewScatter(xys)
	if err != nil {
		return fmt.Errorf("%s markers: %w", name, err)
	}
	s.Color = c
	s.Shape = shape
	s.Radius = vg.Points(4)
	p.Add(s)
	p.Legend.Add(name, s)
	return nil
}

// SaveAmplitudePlot renders AmplitudePlot to a PNG (or any format the file
// extension names).
func SaveAmplitudePlot(path string, r *bode.SweepResult) error {
	p, err := AmplitudePlot(r)
	if err != nil {
		return err
	}
	return p.Save(plotWidth, plotHeight, path)
}

// SavePhasePlot renders PhasePlot to path.
func SavePhasePlot(path string, r *bode.SweepResult) error {
	p, err := PhasePlot(r)
	if err != nil {
		return err
	}
	return p.Save(plotWidth, plotHeight, path)
}

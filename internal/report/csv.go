package report

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"

	"github.com/banshee-data/bode.report/internal/bode"
)

// CSVHeader is the first row written by WriteCSV.
var CSVHeader = []string{
	"index", "freq_hz", "input_peak_v", "output_peak_v", "gain_db",
	"phase_deg", "vertical_scale_v_div", "trigger", "flag",
}

// WriteCSV writes one row per point. A non-finite gain is an empty cell.
func WriteCSV(w io.Writer, r *bode.SweepResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, p := range r.Points {
		gain := ""
		if !math.IsNaN(p.GainDB) && !math.IsInf(p.GainDB, 0) {
			gain = ftoa(p.GainDB)
		}
		row := []string{
			strconv.Itoa(p.Index),
			ftoa(p.Freq),
			ftoa(p.InputPeak),
			ftoa(p.OutputPeak),
			gain,
			ftoa(p.PhaseDeg),
			ftoa(p.VerticalScaleUsed),
			p.TriggerOutcome.String(),
			p.Flag.String(),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

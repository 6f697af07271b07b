// Package report writes the artifacts of a finished sweep: a CSV table,
// amplitude and phase PNG charts, an interactive HTML chart and the raw
// result as JSON, all under one per-run output directory.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/bode.report/internal/bode"
	"github.com/banshee-data/bode.report/internal/monitoring"
)

// File names inside a run directory.
const (
	CSVFile       = "bode.csv"
	AmplitudePNG  = "amplitude.png"
	PhasePNG      = "phase.png"
	HTMLFile      = "bode.html"
	ResultJSON    = "result.json"
	dirTimeLayout = "20060102-150405"
)

// RunDir returns <root>/<start time>_<first 8 chars of the run id>.
func RunDir(root string, r *bode.SweepResult) string {
	return filepath.Join(root, fmt.Sprintf("%s_%s", r.StartedAt.UTC().Format(dirTimeLayout), r.RunID.String()[:8]))
}

// MakeOutputDir creates the run directory for r and returns its path.
func MakeOutputDir(root string, r *bode.SweepResult) (string, error) {
	dir := RunDir(root, r)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	return dir, nil
}

// WriteAll writes every artifact for r into a new run directory under root
// and returns the directory.
func WriteAll(root string, r *bode.SweepResult) (string, error) {
	dir, err := MakeOutputDir(root, r)
	if err != nil {
		return "", err
	}

	writers := []struct {
		name  string
		write func(string, *bode.SweepResult) error
	}{
		{CSVFile, writeCSVFile},
		{ResultJSON, writeJSONFile},
		{AmplitudePNG, SaveAmplitudePlot},
		{PhasePNG, SavePhasePlot},
		{HTMLFile, writeHTMLFile},
	}
	for _, w := range writers {
		if err := w.write(filepath.Join(dir, w.name), r); err != nil {
			return dir, fmt.Errorf("write %s: %w", w.name, err)
		}
	}
	monitoring.Logf("report: wrote %d files to %s", len(writers), dir)
	return dir, nil
}

func writeJSONFile(path string, r *bode.SweepResult) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func writeCSVFile(path string, r *bode.SweepResult) error {
	return createAndWrite(path, func(f *os.File) error { return WriteCSV(f, r) })
}

func writeHTMLFile(path string, r *bode.SweepResult) error {
	return createAndWrite(path, func(f *os.File) error { return RenderHTML(f, r) })
}

func createAndWrite(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

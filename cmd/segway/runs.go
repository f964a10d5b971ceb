package main

import (
	"fmt"
	"math"
	"os"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/segway/internal/analysis"
	"github.com/san-kum/segway/internal/export"
	"github.com/san-kum/segway/internal/physics"
	"github.com/san-kum/segway/internal/sim"
	"github.com/san-kum/segway/internal/storage"
	"github.com/san-kum/segway/internal/viz"
)

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.New(dataDir).List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENARIO\tTIME\tDURATION\tKP\tKD\tTILT RMS\tFELL")
	for _, run := range runs {
		fell := "-"
		if run.FellAt >= 0 {
			fell = fmt.Sprintf("%.2fs", run.FellAt)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1fs\t%.2f\t%.2f\t%.4f\t%s\n",
			run.ID,
			run.Scenario,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Kp,
			run.Kd,
			run.Metrics["tilt_rms"],
			fell,
		)
	}
	return w.Flush()
}

func loadRun(id string) (*sim.Result, error) {
	result, err := storage.New(dataDir).LoadResult(id)
	if err != nil {
		return nil, err
	}
	if len(result.States) == 0 {
		return nil, fmt.Errorf("run %s has no samples", id)
	}
	return result, nil
}

func degrees(rad []float64) []float64 {
	out := make([]float64, len(rad))
	for i, v := range rad {
		out[i] = v * 180 / math.Pi
	}
	return out
}

func controlSeries(result *sim.Result, index int) []float64 {
	out := make([]float64, len(result.Controls))
	for i, u := range result.Controls {
		if index < len(u) {
			out[i] = u[index]
		}
	}
	return out
}

func plotRun(cmd *cobra.Command, args []string) error {
	result, err := loadRun(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", args[0])
	fmt.Printf("scenario: %s\n", result.Scenario)
	fmt.Printf("samples: %d\n\n", len(result.States))

	tilt := degrees(result.Series(physics.Tilt))
	speed := result.Series(physics.Vel)
	plots := []struct {
		caption string
		data    [][]float64
	}{
		{"tilt [deg]", [][]float64{tilt}},
		{"speed [m/s]", [][]float64{speed}},
		{"duty left / right", [][]float64{controlSeries(result, physics.LeftDuty), controlSeries(result, physics.RightDuty)}},
		{"battery sense [V]", [][]float64{result.Battery}},
	}
	for _, p := range plots {
		graph := asciigraph.PlotMany(p.data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(p.caption),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	if svgOut == "" {
		return nil
	}
	svg := export.TracesToSVG(result.Times, []export.Trace{
		{Name: "tilt", Color: "#f25f5c", Values: tilt},
		{Name: "speed", Color: "#7fd1b9", Values: speed},
	}, 900, 300)
	if err := os.WriteFile(svgOut, []byte(svg), 0644); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", svgOut)
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	result, err := loadRun(args[0])
	if err != nil {
		return err
	}

	// Only the ridden part says anything about the controller.
	var times, tilt []float64
	for i, x := range result.States {
		if result.Active[i] {
			times = append(times, result.Times[i])
			tilt = append(tilt, x[physics.Tilt])
		}
	}
	if len(tilt) < 2 {
		return fmt.Errorf("run %s was never ridden", args[0])
	}

	s := analysis.Summarize(times, tilt, band, result.Dt)
	fmt.Printf("tilt analysis: %s (%d active samples)\n\n", args[0], len(tilt))
	fmt.Printf("peak: %.2f°\n", s.Peak*180/math.Pi)
	fmt.Printf("rms: %.2f°\n", s.RMS*180/math.Pi)
	fmt.Printf("mean: %+.2f°\n", s.Mean*180/math.Pi)
	if s.SettledAt < 0 {
		fmt.Printf("always within ±%.3f rad\n", band)
	} else {
		fmt.Printf("settled within ±%.3f rad after %.2fs\n", band, s.SettledAt)
	}
	if s.Frequency > 0 {
		fmt.Printf("dominant frequency: %.3f hz (period %.3f s)\n", s.Frequency, 1/s.Frequency)
	}

	freqs, amp := analysis.Spectrum(tilt, result.Dt)
	if len(amp) > 2 {
		limit := len(amp) / 4
		if limit < 2 {
			limit = len(amp)
		}
		fmt.Println()
		fmt.Println(asciigraph.Plot(amp[1:limit],
			asciigraph.Height(12),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("tilt amplitude, 0 to %.1f hz", freqs[limit-1])),
		))
	}
	return nil
}

func phasePlot(cmd *cobra.Command, args []string) error {
	result, err := loadRun(args[0])
	if err != nil {
		return err
	}
	points := analysis.PhasePortrait(
		degrees(result.Series(physics.Tilt)),
		degrees(result.Series(physics.TiltRate)),
	)
	fmt.Printf("phase portrait: %s\n", args[0])
	fmt.Println("x: tilt [deg], y: tilt rate [deg/s]")
	fmt.Println()
	fmt.Println(analysis.PhasePortraitToASCII(points, 70, 20))
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	result, err := loadRun(args[0])
	if err != nil {
		return err
	}

	switch format {
	case "json":
		return storage.ExportJSON(os.Stdout, result)
	case "csv":
		return storage.ExportCSV(os.Stdout, result)
	case "svg":
		i := len(result.States) - 1
		if at >= 0 {
			for i > 0 && result.Times[i-1] >= at {
				i--
			}
		}
		x, u := result.States[i], result.Controls[i]
		frame := viz.Frame(x, u[physics.Lean], result.Active[i])
		_, err := fmt.Fprintln(os.Stdout, export.CanvasToSVG(frame, 4))
		return err
	}
	return fmt.Errorf("unknown format %q (json, csv, svg)", format)
}

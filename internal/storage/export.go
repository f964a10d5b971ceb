package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/segway/internal/sim"
)

type ExportData struct {
	Scenario string             `json:"scenario"`
	Seed     int64              `json:"seed"`
	Dt       float64            `json:"dt"`
	Steps    int                `json:"steps"`
	CutoffAt float64            `json:"cutoff_at"`
	FellAt   float64            `json:"fell_at"`
	Columns  []string           `json:"columns"`
	Times    []float64          `json:"times"`
	States   [][]float64        `json:"states"`
	Controls [][]float64        `json:"controls"`
	Active   []bool             `json:"active"`
	Battery  []float64          `json:"battery"`
	Metrics  map[string]float64 `json:"metrics"`
}

// ExportJSON writes the whole run as one indented JSON document.
func ExportJSON(w io.Writer, result *sim.Result) error {
	data := ExportData{
		Scenario: result.Scenario,
		Seed:     result.Seed,
		Dt:       result.Dt,
		Steps:    result.StepsTaken,
		CutoffAt: result.CutoffAt,
		FellAt:   result.FellAt,
		Columns:  header,
		Times:    result.Times,
		States:   make([][]float64, len(result.States)),
		Controls: make([][]float64, len(result.Controls)),
		Active:   result.Active,
		Battery:  result.Battery,
		Metrics:  result.Metrics,
	}
	for i, s := range result.States {
		data.States[i] = s
	}
	for i, c := range result.Controls {
		data.Controls[i] = c
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// ExportCSV writes the run in the same layout as states.csv.
func ExportCSV(w io.Writer, result *sim.Result) error {
	return encodeStates(w, result)
}

// Package storage keeps simulation runs on disk: one directory per run with
// metadata.json and states.csv.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/segway/internal/dynamo"
	"github.com/san-kum/segway/internal/sim"
)

var ErrNotFound = errors.New("storage: run not found")

var header = []string{
	"time", "x", "v", "tilt", "tilt_rate", "yaw", "yaw_rate",
	"duty_left", "duty_right", "lean", "active", "battery",
}

const (
	stateCols   = 6
	controlCols = 3
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Scenario   string             `json:"scenario"`
	Plant      string             `json:"plant"`
	Integrator string             `json:"integrator"`
	Timestamp  time.Time          `json:"timestamp"`
	Seed       int64              `json:"seed"`
	Dt         float64            `json:"dt"`
	Duration   float64            `json:"duration"`
	Kp         float64            `json:"kp"`
	Kd         float64            `json:"kd"`
	CutoffAt   float64            `json:"cutoff_at"`
	FellAt     float64            `json:"fell_at"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Save writes a run and returns its ID. ID, Timestamp, Seed, Dt, the event
// times and the metrics are filled in from the result.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
	if err := s.Init(); err != nil {
		return "", err
	}
	meta.Timestamp = time.Now()
	meta.Seed = result.Seed
	meta.Dt = result.Dt
	meta.CutoffAt = result.CutoffAt
	meta.FellAt = result.FellAt
	meta.Metrics = result.Metrics
	if meta.Scenario == "" {
		meta.Scenario = result.Scenario
	}

	runDir, err := s.mkRunDir(meta)
	if err != nil {
		return "", err
	}
	meta.ID = filepath.Base(runDir)

	if err := writeJSON(filepath.Join(runDir, "metadata.json"), meta); err != nil {
		return "", err
	}
	if err := writeStates(filepath.Join(runDir, "states.csv"), result); err != nil {
		return "", err
	}
	return meta.ID, nil
}

func (s *Store) mkRunDir(meta RunMetadata) (string, error) {
	base := fmt.Sprintf("%s_%s", meta.Scenario, meta.Timestamp.Format("20060102-150405"))
	for i := 0; ; i++ {
		id := base
		if i > 0 {
			id = fmt.Sprintf("%s_%d", base, i)
		}
		dir := filepath.Join(s.baseDir, id)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", err
		}
	}
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeStates(path string, result *sim.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encodeStates(f, result); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func encodeStates(out io.Writer, result *sim.Result) error {
	w := csv.NewWriter(out)
	if err := w.Write(header); err != nil {
		return err
	}

	format := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	row := make([]string, 0, len(header))
	for i, t := range result.Times {
		row = append(row[:0], format(t))
		for j := 0; j < stateCols; j++ {
			row = append(row, format(at(result.States, i, j)))
		}
		for j := 0; j < controlCols; j++ {
			row = append(row, format(at(result.Controls, i, j)))
		}
		active := "0"
		if i < len(result.Active) && result.Active[i] {
			active = "1"
		}
		battery := 0.0
		if i < len(result.Battery) {
			battery = result.Battery[i]
		}
		row = append(row, active, format(battery))

		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func at[T ~[]float64](rows []T, i, j int) float64 {
	if i >= len(rows) || j >= len(rows[i]) {
		return 0
	}
	return rows[i][j]
}

// List returns the stored runs, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%s metadata: %w", runID, err)
	}
	return &meta, nil
}

// LoadResult reads a run back into a Result.
func (s *Store) LoadResult(runID string) (*sim.Result, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.baseDir, runID, "states.csv"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s states: %w", runID, err)
	}

	result := &sim.Result{
		Scenario: meta.Scenario,
		Seed:     meta.Seed,
		Dt:       meta.Dt,
		CutoffAt: meta.CutoffAt,
		FellAt:   meta.FellAt,
		Metrics:  meta.Metrics,
	}
	if len(records) < 2 {
		return result, nil
	}

	for n, record := range records[1:] {
		vals := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s states line %d: %w", runID, n+2, err)
			}
			vals[j] = v
		}
		result.Times = append(result.Times, vals[0])
		result.States = append(result.States, dynamo.State(vals[1:1+stateCols]))
		result.Controls = append(result.Controls, dynamo.Control(vals[1+stateCols:1+stateCols+controlCols]))
		result.Active = append(result.Active, vals[1+stateCols+controlCols] != 0)
		result.Battery = append(result.Battery, vals[2+stateCols+controlCols])
	}
	result.StepsTaken = len(result.Times) - 1
	return result, nil
}

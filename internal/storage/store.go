// Package storage keeps simulated runs on disk, one directory per run.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/crawlerctl/internal/sim"
)

const (
	metadataFile = "metadata.json"
	traceFile    = "trace.csv"
)

var ErrRunNotFound = errors.New("storage: run not found")

var traceHeader = []string{
	"time_ms", "state", "reverse_armed",
	"raw_throttle", "raw_steering", "throttle", "steering",
	"esc_duty", "servo_duty", "lights", "horn",
}

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
	ID          string             `json:"id"`
	Scenario    string             `json:"scenario"`
	Description string             `json:"description,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
	DurationMs  int64              `json:"duration_ms"`
	Samples     int                `json:"samples"`
	States      []string           `json:"states"`
	Metrics     map[string]float64 `json:"metrics"`
}

// NewRunID names a run after its scenario plus a short random suffix.
func NewRunID(scenario string) string {
	return fmt.Sprintf("%s_%s", scenario, uuid.NewString()[:8])
}

func (s *Store) Save(sc *sim.Scenario, result *sim.Result) (string, error) {
	runID := NewRunID(sc.Name)
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:          runID,
		Scenario:    sc.Name,
		Description: sc.Description,
		Timestamp:   time.Now(),
		DurationMs:  result.Duration.Milliseconds(),
		Samples:     len(result.Samples),
		States:      result.States(),
		Metrics:     result.Metrics,
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeTrace(filepath.Join(runDir, traceFile), result.Samples); err != nil {
		return "", err
	}
	return runID, nil
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

func writeTrace(path string, samples []sim.Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(traceHeader); err != nil {
		return err
	}
	for _, s := range samples {
		row := []string{
			strconv.FormatInt(s.Time.Milliseconds(), 10),
			s.State,
			strconv.FormatBool(s.ReverseArmed),
			formatFloat(s.RawThrottle),
			formatFloat(s.RawSteering),
			formatFloat(s.Throttle),
			formatFloat(s.Steering),
			strconv.FormatUint(uint64(s.EscDuty), 10),
			strconv.FormatUint(uint64(s.ServoDuty), 10),
			strconv.FormatBool(s.Lights),
			strconv.FormatBool(s.Horn),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }

// List returns every readable run, newest first.
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
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: %s metadata: %w", runID, err)
	}
	return &meta, nil
}

// LoadTrace reads a run's samples back. Rows that fail to parse are skipped.
func (s *Store) LoadTrace(runID string) ([]sim.Sample, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, traceFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []sim.Sample{}, nil
	}

	samples := make([]sim.Sample, 0, len(records)-1)
	for _, record := range records[1:] {
		sample, err := parseRow(record)
		if err != nil {
			continue
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

func parseRow(record []string) (sim.Sample, error) {
	if len(record) != len(traceHeader) {
		return sim.Sample{}, fmt.Errorf("expected %d fields, got %d", len(traceHeader), len(record))
	}

	var (
		s    sim.Sample
		errs []error
	)
	parseF := func(v string) float64 {
		f, err := strconv.ParseFloat(v, 64)
		errs = append(errs, err)
		return f
	}
	parseU := func(v string) uint32 {
		u, err := strconv.ParseUint(v, 10, 32)
		errs = append(errs, err)
		return uint32(u)
	}
	parseB := func(v string) bool {
		b, err := strconv.ParseBool(v)
		errs = append(errs, err)
		return b
	}

	ms, err := strconv.ParseInt(record[0], 10, 64)
	errs = append(errs, err)
	s.Time = time.Duration(ms) * time.Millisecond
	s.State = record[1]
	s.ReverseArmed = parseB(record[2])
	s.RawThrottle = parseF(record[3])
	s.RawSteering = parseF(record[4])
	s.Throttle = parseF(record[5])
	s.Steering = parseF(record[6])
	s.EscDuty = parseU(record[7])
	s.ServoDuty = parseU(record[8])
	s.Lights = parseB(record[9])
	s.Horn = parseB(record[10])

	return s, errors.Join(errs...)
}

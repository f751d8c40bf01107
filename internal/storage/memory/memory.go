// internal/storage/memory/memory.go
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/orbitkit/autopilot/internal/config"
	"github.com/orbitkit/autopilot/internal/model"
)

const resumeFileName = "resume.json"

// FlightRecord groups a finished flight with the telemetry sampled during it.
type FlightRecord struct {
	Flight    model.Flight            `json:"flight"`
	Telemetry []model.TelemetrySample `json:"telemetry"`
}

// Backend keeps everything in memory. When OutputDir is set, resume records
// are mirrored to resume.json on every change and each finished flight is
// exported as <flightId>.json.
type Backend struct {
	cfg config.MemoryConfig

	resume    map[string]model.ResumeRecord
	telemetry map[string][]model.TelemetrySample // keyed by FlightID, until the flight is recorded
	flights   []FlightRecord

	idCounter uint
	mu        sync.RWMutex
}

func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:       cfg,
		resume:    make(map[string]model.ResumeRecord),
		telemetry: make(map[string][]model.TelemetrySample),
	}
}

// Init creates the output directory and loads any resume records left by a
// previous process.
func (b *Backend) Init() error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	if err := os.MkdirAll(b.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	data, err := os.ReadFile(b.resumePath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading resume file: %w", err)
	}

	var records map[string]model.ResumeRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("decoding resume file: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range records {
		b.resume[k] = v
	}
	return nil
}

func (b *Backend) Close() error {
	return nil
}

func (b *Backend) SaveResume(r *model.ResumeRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resume[r.VehicleName] = *r
	return b.writeResumeLocked()
}

func (b *Backend) LoadResume(vehicleName string) (*model.ResumeRecord, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.resume[vehicleName]
	if !ok {
		return nil, false, nil
	}
	return &rec, true, nil
}

func (b *Backend) ClearResume(vehicleName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.resume[vehicleName]; !ok {
		return nil
	}
	delete(b.resume, vehicleName)
	return b.writeResumeLocked()
}

// RecordFlight assigns an ID, attaches buffered telemetry and exports the flight.
func (b *Backend) RecordFlight(f *model.Flight) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	f.ID = b.idCounter

	rec := FlightRecord{Flight: *f, Telemetry: b.telemetry[f.FlightID]}
	delete(b.telemetry, f.FlightID)
	b.flights = append(b.flights, rec)

	if b.cfg.OutputDir == "" {
		return nil
	}
	return writeJSON(filepath.Join(b.cfg.OutputDir, f.FlightID+".json"), rec)
}

func (b *Backend) RecordTelemetry(s *model.TelemetrySample) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.telemetry[s.FlightID] = append(b.telemetry[s.FlightID], *s)
	return nil
}

// Flush is a no-op: nothing is buffered outside memory.
func (b *Backend) Flush() error {
	return nil
}

// Flights returns recorded flights in recording order.
func (b *Backend) Flights() []FlightRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]FlightRecord(nil), b.flights...)
}

// PendingTelemetry returns samples for a flight that has not been recorded yet.
func (b *Backend) PendingTelemetry(flightID string) []model.TelemetrySample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]model.TelemetrySample(nil), b.telemetry[flightID]...)
}

// Vehicles lists vehicles with a stored resume record, sorted.
func (b *Backend) Vehicles() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.resume))
	for k := range b.resume {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (b *Backend) resumePath() string {
	return filepath.Join(b.cfg.OutputDir, resumeFileName)
}

func (b *Backend) writeResumeLocked() error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	return writeJSON(b.resumePath(), b.resume)
}

// writeJSON writes through a temp file so a crash never leaves a torn file.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// internal/storage/storage.go
package storage

import "github.com/orbitkit/autopilot/internal/model"

// Backend is the interface all storage implementations must satisfy.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Resume state, one record per vehicle. Writes are durable when they return.
	SaveResume(r *model.ResumeRecord) error
	LoadResume(vehicleName string) (rec *model.ResumeRecord, ok bool, err error)
	ClearResume(vehicleName string) error

	// Flight history
	RecordFlight(f *model.Flight) error
	RecordTelemetry(s *model.TelemetrySample) error

	// Flush writes any buffered telemetry before returning.
	Flush() error
}

// Snapshotter is implemented by backends that can copy their data to a file.
type Snapshotter interface {
	Snapshot(path string) error
}

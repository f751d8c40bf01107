// Package gormstorage implements storage.Backend on top of GORM. Resume and
// flight records are written synchronously; telemetry samples are queued and
// written in batches by a background writer.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/orbitkit/autopilot/internal/database"
	"github.com/orbitkit/autopilot/internal/model"
	"github.com/orbitkit/autopilot/internal/queue"
)

// DefaultWriteInterval is the telemetry writer period used by the sqlite and postgres backends.
const DefaultWriteInterval = 2 * time.Second

const (
	defaultQueueLimit = 10000
	batchSize         = 500
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger

	// WriteInterval is how often queued telemetry is written. Zero disables the
	// background writer; telemetry is then written only on Flush and Close.
	WriteInterval time.Duration
	QueueLimit    int
}

// Backend implements storage.Backend with GORM.
type Backend struct {
	deps      Dependencies
	telemetry *queue.Queue[model.TelemetrySample]

	writeMu  sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.QueueLimit <= 0 {
		deps.QueueLimit = defaultQueueLimit
	}
	return &Backend{
		deps:      deps,
		telemetry: queue.NewBounded[model.TelemetrySample](deps.QueueLimit),
	}
}

// Init migrates the schema and starts the telemetry writer.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return errors.New("gorm backend has no database")
	}
	b.deps.Logger.Info("Migrating schema", "dialect", b.deps.DB.Name())
	if err := database.Migrate(b.deps.DB); err != nil {
		return err
	}

	if b.deps.WriteInterval > 0 {
		b.stopChan = make(chan struct{})
		b.done = make(chan struct{})
		go b.writeLoop()
	}
	return nil
}

// Close stops the writer and writes whatever is still queued.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		<-b.done
		b.stopChan = nil
	}
	if b.deps.DB == nil {
		return nil
	}
	return b.Flush()
}

// DB exposes the underlying connection for backend-specific maintenance.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

func (b *Backend) SaveResume(r *model.ResumeRecord) error {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}
	err := b.deps.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "vehicle_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "target", "updated_at"}),
	}).Create(r).Error
	if err != nil {
		return fmt.Errorf("saving resume state for %s: %w", r.VehicleName, err)
	}
	return nil
}

func (b *Backend) LoadResume(vehicleName string) (*model.ResumeRecord, bool, error) {
	var rec model.ResumeRecord
	err := b.deps.DB.Where("vehicle_name = ?", vehicleName).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading resume state for %s: %w", vehicleName, err)
	}
	return &rec, true, nil
}

func (b *Backend) ClearResume(vehicleName string) error {
	err := b.deps.DB.Where("vehicle_name = ?", vehicleName).Delete(&model.ResumeRecord{}).Error
	if err != nil {
		return fmt.Errorf("clearing resume state for %s: %w", vehicleName, err)
	}
	return nil
}

// RecordFlight writes queued telemetry first so samples never outlive their flight row.
func (b *Backend) RecordFlight(f *model.Flight) error {
	if err := b.Flush(); err != nil {
		return err
	}
	if err := b.deps.DB.Create(f).Error; err != nil {
		return fmt.Errorf("inserting flight %s: %w", f.FlightID, err)
	}
	return nil
}

func (b *Backend) RecordTelemetry(s *model.TelemetrySample) error {
	b.telemetry.Push(*s)
	return nil
}

// Pending returns the number of queued telemetry samples.
func (b *Backend) Pending() int {
	return b.telemetry.Len()
}

// Flush writes all queued telemetry. Failed batches are put back in the queue.
func (b *Backend) Flush() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	for {
		batch := b.telemetry.Drain(batchSize)
		if len(batch) == 0 {
			return nil
		}
		if err := b.deps.DB.CreateInBatches(batch, batchSize).Error; err != nil {
			b.telemetry.Requeue(batch...)
			return fmt.Errorf("writing %d telemetry samples: %w", len(batch), err)
		}
	}
}

func (b *Backend) writeLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.WriteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			n := b.telemetry.Len()
			if n == 0 {
				continue
			}
			if err := b.Flush(); err != nil {
				b.deps.Logger.Error("telemetry write failed", "error", err, "pending", b.telemetry.Len())
				continue
			}
			b.deps.Logger.Debug("telemetry written", "samples", n, "duration", time.Since(start))
		}
	}
}

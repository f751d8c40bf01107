package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"

	"github.com/orbitkit/autopilot/internal/config"
	"github.com/orbitkit/autopilot/internal/model"
)

// ErrDisabled is returned by Connect when influx output is switched off.
var ErrDisabled = errors.New("influx telemetry is disabled")

const (
	measurementTelemetry = "flight_telemetry"
	measurementFlight    = "flight_end"
	retentionSeconds     = 60 * 60 * 24 * 30
)

// Manager writes flight telemetry to InfluxDB, or to a gzip line-protocol
// backup file when the server cannot be reached.
type Manager struct {
	cfg    config.InfluxConfig
	log    *slog.Logger
	client influxdb2.Client
	writer influxdb2_api.WriteAPI

	backupFile   *os.File
	BackupWriter *gzip.Writer
	IsValid      bool
}

func NewManager(cfg config.InfluxConfig, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{cfg: cfg, log: log}
}

// Connect pings the server and prepares the bucket. An unreachable server is
// not an error: points go to the backup file instead.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.client = influxdb2.NewClientWithOptions(
		m.cfg.URL(),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	running, err := m.client.Ping(pingCtx)
	if err != nil || !running {
		m.IsValid = false
		m.log.Warn("InfluxDB unreachable, writing to backup file", "url", m.cfg.URL(), "backupPath", m.cfg.BackupPath, "error", err)
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}

	m.writer = m.client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.log.Error("Error sending data to InfluxDB", "bucket", m.cfg.Bucket, "error", writeErr)
		}
	}(m.writer.Errors())

	m.IsValid = true
	m.log.Info("InfluxDB client initialized", "url", m.cfg.URL(), "bucket", m.cfg.Bucket)
	return nil
}

func (m *Manager) openBackup() error {
	if m.BackupWriter != nil {
		return nil
	}
	if dir := filepath.Dir(m.cfg.BackupPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating backup dir: %w", err)
		}
	}
	file, err := os.OpenFile(m.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgs := m.client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.log.Info("Organization not found, creating", "org", m.cfg.Org)
		org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org)
		if err != nil {
			return fmt.Errorf("creating organization %s: %w", m.cfg.Org, err)
		}
	}

	if _, err := m.client.BucketsAPI().FindBucketByName(ctx, m.cfg.Bucket); err == nil {
		return nil
	}
	m.log.Info("Bucket not found, creating", "bucket", m.cfg.Bucket)
	rule := domain.RetentionRuleTypeExpire
	_, err = m.client.BucketsAPI().CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
		Type:         &rule,
		EverySeconds: retentionSeconds,
	})
	if err != nil {
		return fmt.Errorf("creating bucket %s: %w", m.cfg.Bucket, err)
	}
	return nil
}

// WriteSample records one telemetry sample.
func (m *Manager) WriteSample(s model.TelemetrySample, vehicleName, kind string) error {
	return m.WritePoint(SamplePoint(s, vehicleName, kind))
}

// WriteFlight records the end of a flight.
func (m *Manager) WriteFlight(f model.Flight) error {
	return m.WritePoint(FlightPoint(f))
}

// WritePoint sends a point to InfluxDB or appends it to the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	if m.IsValid {
		m.writer.WritePoint(point)
		return nil
	}
	if m.BackupWriter == nil {
		return errors.New("influxDB client not initialized and backup writer not available")
	}
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if _, err := m.BackupWriter.Write([]byte(line)); err != nil {
		return fmt.Errorf("writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Close flushes pending points and releases the client and backup file.
func (m *Manager) Close() error {
	var errs []error
	if m.writer != nil {
		m.writer.Flush()
	}
	if m.client != nil {
		m.client.Close()
	}
	if m.BackupWriter != nil {
		errs = append(errs, m.BackupWriter.Close())
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	return errors.Join(errs...)
}

// SamplePoint converts a telemetry sample to a line protocol point.
func SamplePoint(s model.TelemetrySample, vehicleName, kind string) *influxdb2_write.Point {
	return influxdb2.NewPoint(measurementTelemetry,
		map[string]string{
			"flight_id": s.FlightID,
			"vehicle":   vehicleName,
			"kind":      kind,
			"stage":     strconv.Itoa(s.Stage),
		},
		map[string]any{
			"tick":                int64(s.Tick),
			"distance":            s.DistanceToTarget,
			"speed":               s.Speed,
			"closing_speed":       s.ClosingSpeed,
			"perpendicular_speed": s.PerpendicularSpeed,
			"thrust_ratio":        s.ThrustRatio,
			"aim_error":           s.AimError,
			"pos_x":               s.Position.X,
			"pos_y":               s.Position.Y,
			"pos_z":               s.Position.Z,
		},
		s.Time,
	)
}

// FlightPoint converts a finished flight to a line protocol point.
func FlightPoint(f model.Flight) *influxdb2_write.Point {
	return influxdb2.NewPoint(measurementFlight,
		map[string]string{
			"flight_id": f.FlightID,
			"vehicle":   f.VehicleName,
			"kind":      f.Kind,
		},
		map[string]any{
			"reason":        f.Reason,
			"final_stage":   int64(f.FinalStage),
			"ticks":         int64(f.Ticks),
			"desired_speed": f.DesiredSpeed,
			"duration_s":    f.EndTime.Sub(f.StartTime).Seconds(),
		},
		f.EndTime,
	)
}

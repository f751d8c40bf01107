package gormstorage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/orbitkit/autopilot/internal/database"
	"github.com/orbitkit/autopilot/internal/model"
)

// newTestBackend uses a private in-memory SQLite database and no background writer.
func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.OpenSQLite("")
	require.NoError(t, err)

	b := New(Dependencies{DB: db})
	require.NoError(t, b.Init())
	t.Cleanup(func() { b.Close() })
	return b
}

func TestInit_RequiresDB(t *testing.T) {
	b := New(Dependencies{})
	assert.Error(t, b.Init())
}

func TestResume_Upsert(t *testing.T) {
	b := newTestBackend(t)

	_, ok, err := b.LoadResume("Prospector")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.SaveResume(&model.ResumeRecord{VehicleName: "Prospector", Token: "RetroCruise|100|1", Target: "[0,0,-5000]"}))
	require.NoError(t, b.SaveResume(&model.ResumeRecord{VehicleName: "Prospector", Token: "RetroCruise|100|2", Target: "[0,0,-5000]"}))

	rec, ok, err := b.LoadResume("Prospector")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "RetroCruise|100|2", rec.Token)
	assert.False(t, rec.UpdatedAt.IsZero())

	var count int64
	require.NoError(t, b.DB().Model(&model.ResumeRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "second save should update in place")

	require.NoError(t, b.ClearResume("Prospector"))
	_, ok, err = b.LoadResume("Prospector")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTelemetry_QueuedUntilFlush(t *testing.T) {
	b := newTestBackend(t)

	for i := 1; i <= 3; i++ {
		require.NoError(t, b.RecordTelemetry(&model.TelemetrySample{
			Time:     time.Date(2026, 10, 16, 9, 0, i, 0, time.UTC),
			FlightID: "f-1",
			Tick:     uint(i * 60),
			Position: model.Vec3{X: 1, Y: 2, Z: float64(-i)},
		}))
	}
	assert.Equal(t, 3, b.Pending())

	var count int64
	require.NoError(t, b.DB().Model(&model.TelemetrySample{}).Count(&count).Error)
	assert.Zero(t, count, "nothing written before flush")

	require.NoError(t, b.Flush())
	assert.Zero(t, b.Pending())

	var samples []model.TelemetrySample
	require.NoError(t, b.DB().Order("tick").Find(&samples).Error)
	require.Len(t, samples, 3)
	assert.Equal(t, -3.0, samples[2].Position.Z)
}

func TestRecordFlight_FlushesTelemetryFirst(t *testing.T) {
	b := newTestBackend(t)

	require.NoError(t, b.RecordTelemetry(&model.TelemetrySample{FlightID: "f-2", Tick: 60}))

	f := &model.Flight{
		FlightID:    "f-2",
		VehicleName: "Hauler",
		Kind:        "OneWayCruise",
		Reason:      "Destination Reached",
		Summary:     datatypes.JSON(`{"stages":["None","Complete"]}`),
	}
	require.NoError(t, b.RecordFlight(f))
	assert.NotZero(t, f.ID)
	assert.Zero(t, b.Pending())

	var stored model.Flight
	require.NoError(t, b.DB().First(&stored, "flight_id = ?", "f-2").Error)
	assert.Equal(t, "Hauler", stored.VehicleName)
	assert.JSONEq(t, `{"stages":["None","Complete"]}`, string(stored.Summary))
}

func TestBackgroundWriter(t *testing.T) {
	db, err := database.OpenSQLite("")
	require.NoError(t, err)

	b := New(Dependencies{DB: db, WriteInterval: 10 * time.Millisecond})
	require.NoError(t, b.Init())

	require.NoError(t, b.RecordTelemetry(&model.TelemetrySample{FlightID: "f-3", Tick: 1}))

	assert.Eventually(t, func() bool { return b.Pending() == 0 }, time.Second, 10*time.Millisecond)
	require.NoError(t, b.Close())

	var count int64
	require.NoError(t, db.Model(&model.TelemetrySample{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestQueueLimitDropsOldest(t *testing.T) {
	db, err := database.OpenSQLite("")
	require.NoError(t, err)
	b := New(Dependencies{DB: db, QueueLimit: 2})
	require.NoError(t, b.Init())

	for i := 1; i <= 3; i++ {
		require.NoError(t, b.RecordTelemetry(&model.TelemetrySample{FlightID: "f-4", Tick: uint(i)}))
	}
	require.NoError(t, b.Close())

	var ticks []uint
	require.NoError(t, db.Model(&model.TelemetrySample{}).Order("tick").Pluck("tick", &ticks).Error)
	assert.Equal(t, []uint{2, 3}, ticks)
}

func TestTimestamps_RoundTripOnSQLite(t *testing.T) {
	b := newTestBackend(t)
	at := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

	require.NoError(t, b.SaveResume(&model.ResumeRecord{VehicleName: "Tug", Token: "RetroCruise|100|2", Target: "0,0,-5000", UpdatedAt: at}))
	require.NoError(t, b.RecordTelemetry(&model.TelemetrySample{Time: at, FlightID: "f-5", Tick: 60}))
	require.NoError(t, b.RecordFlight(&model.Flight{FlightID: "f-5", VehicleName: "Tug", StartTime: at, EndTime: at.Add(time.Minute)}))

	rec, ok, err := b.LoadResume("Tug")
	require.NoError(t, err)
	require.True(t, ok)
	assert.WithinDuration(t, at, rec.UpdatedAt, time.Second)

	var f model.Flight
	require.NoError(t, b.DB().First(&f, "flight_id = ?", "f-5").Error)
	assert.WithinDuration(t, at, f.StartTime, time.Second)
	assert.WithinDuration(t, at.Add(time.Minute), f.EndTime, time.Second)

	var s model.TelemetrySample
	require.NoError(t, b.DB().First(&s, "flight_id = ?", "f-5").Error)
	assert.WithinDuration(t, at, s.Time, time.Second)
}

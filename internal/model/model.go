package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels lists every struct here that maps to a table.
var DatabaseModels = []interface{}{
	&ResumeRecord{},
	&Flight{},
	&TelemetrySample{},
}

// ResumeRecord is the persisted resume token for one vehicle. Only one
// flight per vehicle can be resumed, so the vehicle name is the key.
type ResumeRecord struct {
	VehicleName string    `json:"vehicleName" gorm:"primaryKey;size:127"`
	Token       string    `json:"token" gorm:"size:255"`
	Target      string    `json:"target" gorm:"size:255"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (*ResumeRecord) TableName() string {
	return "resume_records"
}

// Flight is written once when a controller terminates.
type Flight struct {
	gorm.Model
	FlightID     string         `json:"flightId" gorm:"size:36;uniqueIndex:idx_flight_id"`
	VehicleName  string         `json:"vehicleName" gorm:"size:127;index:idx_flight_vehicle"`
	Kind         string         `json:"kind" gorm:"size:32"`
	Target       string         `json:"target" gorm:"size:255"`
	DesiredSpeed float64        `json:"desiredSpeed"`
	StartTime    time.Time      `json:"startTime" gorm:"index:idx_flight_start"`
	EndTime      time.Time      `json:"endTime"`
	Ticks        uint           `json:"ticks"`
	FinalStage   int            `json:"finalStage"`
	Reason       string         `json:"reason" gorm:"size:127"`
	Summary      datatypes.JSON `json:"summary"`
}

func (*Flight) TableName() string {
	return "flights"
}

// Vec3 is a position or velocity flattened into three columns.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// TelemetrySample is one periodic snapshot of a running flight.
type TelemetrySample struct {
	ID                 uint      `json:"id" gorm:"primarykey;autoIncrement"`
	Time               time.Time `json:"time" gorm:"index:idx_telemetry_time"`
	FlightID           string    `json:"flightId" gorm:"size:36;index:idx_telemetry_flight"`
	Tick               uint      `json:"tick"`
	Stage              int       `json:"stage"`
	Position           Vec3      `json:"position" gorm:"embedded;embeddedPrefix:pos_"`
	Velocity           Vec3      `json:"velocity" gorm:"embedded;embeddedPrefix:vel_"`
	DistanceToTarget   float64   `json:"distanceToTarget"`
	Speed              float64   `json:"speed"`
	ClosingSpeed       float64   `json:"closingSpeed"`
	PerpendicularSpeed float64   `json:"perpendicularSpeed"`
	ThrustRatio        float64   `json:"thrustRatio"`
	AimError           float64   `json:"aimError"`
}

func (*TelemetrySample) TableName() string {
	return "telemetry_samples"
}

// FlightSummary is the JSON stored in Flight.Summary.
type FlightSummary struct {
	Stages         []string `json:"stages"`
	FinalDistance  float64  `json:"finalDistance"`
	FinalSpeed     float64  `json:"finalSpeed"`
	PlannedETA     float64  `json:"plannedEta,omitempty"`
	PlannedPeak    float64  `json:"plannedPeakSpeed,omitempty"`
	SamplesWritten int      `json:"samplesWritten"`
}

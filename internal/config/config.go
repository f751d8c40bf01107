package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileName is the JSON file Load looks for in the config directory.
const ConfigFileName = "autopilot.cfg.json"

// CruiseConfig holds the cruise state machine tuning.
type CruiseConfig struct {
	MaxThrustRatio                  float64 `json:"maxThrustRatio" mapstructure:"maxThrustRatio"`
	DecelerationMargin              float64 `json:"decelerationMargin" mapstructure:"decelerationMargin"`
	StopTimeAndDistanceMulti        float64 `json:"stopTimeAndDistanceMulti" mapstructure:"stopTimeAndDistanceMulti"`
	MaxInitialPerpendicularVelocity float64 `json:"maxInitialPerpendicularVelocity" mapstructure:"maxInitialPerpendicularVelocity"`
	CompletionSpeed                 float64 `json:"completionSpeed" mapstructure:"completionSpeed"`
	ArrivalDistance                 float64 `json:"arrivalDistance" mapstructure:"arrivalDistance"`
	AlignToleranceDeg               float64 `json:"alignTolerance" mapstructure:"alignTolerance"`
	DeactivateReverseThrust         bool    `json:"deactivateReverseThrust" mapstructure:"deactivateReverseThrust"`
	PreferDampeners                 bool    `json:"preferDampeners" mapstructure:"preferDampeners"`
	OvershootPolicy                 string  `json:"overshootPolicy" mapstructure:"overshootPolicy"`
	OvershootTolerance              float64 `json:"overshootTolerance" mapstructure:"overshootTolerance"`
	LateralCorrection               bool    `json:"lateralCorrection" mapstructure:"lateralCorrection"`
	IncludeLateralInPlan            bool    `json:"includeLateralInPlan" mapstructure:"includeLateralInPlan"`
	CapacityRefreshTicks            int     `json:"capacityRefreshTicks" mapstructure:"capacityRefreshTicks"`
	MassRefreshTicks                int     `json:"massRefreshTicks" mapstructure:"massRefreshTicks"`
	PlanRefreshTicks                int     `json:"planRefreshTicks" mapstructure:"planRefreshTicks"`
	TickRate                        float64 `json:"tickRate" mapstructure:"tickRate"`
}

// Overshoot policies.
const (
	OvershootAbort    = "abort"
	OvershootContinue = "continue"
)

// AimConfig holds the adaptive aim thresholds.
type AimConfig struct {
	GyroMaxRPM           float64 `json:"gyroMaxRPM" mapstructure:"gyroMaxRPM"`
	SmallVehicle         bool    `json:"smallVehicle" mapstructure:"smallVehicle"`
	AmplifyThresholdDeg  float64 `json:"amplifyThreshold" mapstructure:"amplifyThreshold"`
	ErrorThresholdDeg    float64 `json:"errorThreshold" mapstructure:"errorThreshold"`
	VelocityThresholdDeg float64 `json:"velocityThreshold" mapstructure:"velocityThreshold"`
	OnTargetTicks        int     `json:"onTargetTicks" mapstructure:"onTargetTicks"`
	UseMaxObservedDecel  bool    `json:"useMaxObservedDecel" mapstructure:"useMaxObservedDecel"`
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir string `json:"outputDir" mapstructure:"outputDir"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// DSN returns the Postgres connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		c.Host, c.Port, c.Username, c.Password, c.Database)
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	Type              string         `json:"type" mapstructure:"type"`
	TelemetryInterval int            `json:"telemetryInterval" mapstructure:"telemetryInterval"`
	Memory            MemoryConfig   `json:"memory" mapstructure:"memory"`
	SQLite            SQLiteConfig   `json:"sqlite" mapstructure:"sqlite"`
	Postgres          PostgresConfig `json:"postgres" mapstructure:"postgres"`
}

// InfluxConfig holds InfluxDB telemetry settings
type InfluxConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	Host       string `json:"host" mapstructure:"host"`
	Port       string `json:"port" mapstructure:"port"`
	Protocol   string `json:"protocol" mapstructure:"protocol"`
	Token      string `json:"token" mapstructure:"token"`
	Org        string `json:"org" mapstructure:"org"`
	Bucket     string `json:"bucket" mapstructure:"bucket"`
	BackupPath string `json:"backupPath" mapstructure:"backupPath"`
}

// URL returns the InfluxDB server URL.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// LogConfig holds logging settings
type LogConfig struct {
	Level          string
	Dir            string
	GraylogEnabled bool
	GraylogAddress string
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(ConfigFileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// SetDefaults registers every default value. Load calls it; tests and the
// headless runner call it directly when no file is present.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./autopilotlogs")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("cruise.maxThrustRatio", 1.0)
	viper.SetDefault("cruise.decelerationMargin", 10.0)
	viper.SetDefault("cruise.stopTimeAndDistanceMulti", 1.05)
	viper.SetDefault("cruise.maxInitialPerpendicularVelocity", 5.0)
	viper.SetDefault("cruise.completionSpeed", 0.05)
	viper.SetDefault("cruise.arrivalDistance", 10.0)
	viper.SetDefault("cruise.alignTolerance", 2.0)
	viper.SetDefault("cruise.deactivateReverseThrust", true)
	viper.SetDefault("cruise.preferDampeners", true)
	viper.SetDefault("cruise.overshootPolicy", OvershootAbort)
	viper.SetDefault("cruise.overshootTolerance", 0.01)
	viper.SetDefault("cruise.lateralCorrection", true)
	viper.SetDefault("cruise.includeLateralInPlan", false)
	viper.SetDefault("cruise.capacityRefreshTicks", 30)
	viper.SetDefault("cruise.massRefreshTicks", 60)
	viper.SetDefault("cruise.planRefreshTicks", 10)
	viper.SetDefault("cruise.tickRate", 60.0)

	viper.SetDefault("aim.gyroMaxRPM", 30.0)
	viper.SetDefault("aim.smallVehicle", false)
	viper.SetDefault("aim.amplifyThreshold", 10.0)
	viper.SetDefault("aim.errorThreshold", 0.025)
	viper.SetDefault("aim.velocityThreshold", 0.01)
	viper.SetDefault("aim.onTargetTicks", 5)
	viper.SetDefault("aim.useMaxObservedDecel", true)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.telemetryInterval", 60)
	viper.SetDefault("storage.memory.outputDir", "./flights")
	viper.SetDefault("storage.sqlite.path", "./autopilot.db")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "postgres")
	viper.SetDefault("storage.postgres.database", "autopilot")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "autopilot")
	viper.SetDefault("influx.bucket", "flight_telemetry")
	viper.SetDefault("influx.backupPath", "./autopilotlogs/telemetry_backup.lp.gz")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "autopilot")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetCruiseConfig returns the cruise tuning.
func GetCruiseConfig() CruiseConfig {
	return CruiseConfig{
		MaxThrustRatio:                  viper.GetFloat64("cruise.maxThrustRatio"),
		DecelerationMargin:              viper.GetFloat64("cruise.decelerationMargin"),
		StopTimeAndDistanceMulti:        viper.GetFloat64("cruise.stopTimeAndDistanceMulti"),
		MaxInitialPerpendicularVelocity: viper.GetFloat64("cruise.maxInitialPerpendicularVelocity"),
		CompletionSpeed:                 viper.GetFloat64("cruise.completionSpeed"),
		ArrivalDistance:                 viper.GetFloat64("cruise.arrivalDistance"),
		AlignToleranceDeg:               viper.GetFloat64("cruise.alignTolerance"),
		DeactivateReverseThrust:         viper.GetBool("cruise.deactivateReverseThrust"),
		PreferDampeners:                 viper.GetBool("cruise.preferDampeners"),
		OvershootPolicy:                 viper.GetString("cruise.overshootPolicy"),
		OvershootTolerance:              viper.GetFloat64("cruise.overshootTolerance"),
		LateralCorrection:               viper.GetBool("cruise.lateralCorrection"),
		IncludeLateralInPlan:            viper.GetBool("cruise.includeLateralInPlan"),
		CapacityRefreshTicks:            viper.GetInt("cruise.capacityRefreshTicks"),
		MassRefreshTicks:                viper.GetInt("cruise.massRefreshTicks"),
		PlanRefreshTicks:                viper.GetInt("cruise.planRefreshTicks"),
		TickRate:                        viper.GetFloat64("cruise.tickRate"),
	}
}

// GetAimConfig returns the adaptive aim thresholds.
func GetAimConfig() AimConfig {
	return AimConfig{
		GyroMaxRPM:           viper.GetFloat64("aim.gyroMaxRPM"),
		SmallVehicle:         viper.GetBool("aim.smallVehicle"),
		AmplifyThresholdDeg:  viper.GetFloat64("aim.amplifyThreshold"),
		ErrorThresholdDeg:    viper.GetFloat64("aim.errorThreshold"),
		VelocityThresholdDeg: viper.GetFloat64("aim.velocityThreshold"),
		OnTargetTicks:        viper.GetInt("aim.onTargetTicks"),
		UseMaxObservedDecel:  viper.GetBool("aim.useMaxObservedDecel"),
	}
}

// GetStorageConfig returns the storage backend configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:              viper.GetString("storage.type"),
		TelemetryInterval: viper.GetInt("storage.telemetryInterval"),
		Memory: MemoryConfig{
			OutputDir: viper.GetString("storage.memory.outputDir"),
		},
		SQLite: SQLiteConfig{
			Path: viper.GetString("storage.sqlite.path"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("storage.postgres.host"),
			Port:     viper.GetString("storage.postgres.port"),
			Username: viper.GetString("storage.postgres.username"),
			Password: viper.GetString("storage.postgres.password"),
			Database: viper.GetString("storage.postgres.database"),
		},
	}
}

// GetInfluxConfig returns the InfluxDB telemetry configuration.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:    viper.GetBool("influx.enabled"),
		Host:       viper.GetString("influx.host"),
		Port:       viper.GetString("influx.port"),
		Protocol:   viper.GetString("influx.protocol"),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetLogConfig returns the logging configuration.
func GetLogConfig() LogConfig {
	return LogConfig{
		Level:          viper.GetString("logLevel"),
		Dir:            viper.GetString("logsDir"),
		GraylogEnabled: viper.GetBool("graylog.enabled"),
		GraylogAddress: viper.GetString("graylog.address"),
	}
}

// DefaultCruiseConfig returns the built-in cruise defaults without touching viper.
func DefaultCruiseConfig() CruiseConfig {
	return CruiseConfig{
		MaxThrustRatio:                  1.0,
		DecelerationMargin:              10.0,
		StopTimeAndDistanceMulti:        1.05,
		MaxInitialPerpendicularVelocity: 5.0,
		CompletionSpeed:                 0.05,
		ArrivalDistance:                 10.0,
		AlignToleranceDeg:               2.0,
		DeactivateReverseThrust:         true,
		PreferDampeners:                 true,
		OvershootPolicy:                 OvershootAbort,
		OvershootTolerance:              0.01,
		LateralCorrection:               true,
		CapacityRefreshTicks:            30,
		MassRefreshTicks:                60,
		PlanRefreshTicks:                10,
		TickRate:                        60.0,
	}
}

// DefaultAimConfig returns the built-in aim defaults without touching viper.
func DefaultAimConfig() AimConfig {
	return AimConfig{
		GyroMaxRPM:           30,
		AmplifyThresholdDeg:  10,
		ErrorThresholdDeg:    0.025,
		VelocityThresholdDeg: 0.01,
		OnTargetTicks:        5,
		UseMaxObservedDecel:  true,
	}
}

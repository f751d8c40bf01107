package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/orbitkit/autopilot/internal/config"
	"github.com/orbitkit/autopilot/internal/controllers"
	"github.com/orbitkit/autopilot/internal/dispatcher"
	"github.com/orbitkit/autopilot/internal/flight"
	"github.com/orbitkit/autopilot/internal/handlers"
	"github.com/orbitkit/autopilot/internal/influx"
	"github.com/orbitkit/autopilot/internal/logging"
	"github.com/orbitkit/autopilot/internal/monitor"
	intOtel "github.com/orbitkit/autopilot/internal/otel"
	"github.com/orbitkit/autopilot/internal/sim"
	"github.com/orbitkit/autopilot/internal/storage"
	"github.com/orbitkit/autopilot/pkg/host"

	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.1.0"
	BuildDate      string = "unknown"

	AppName     string = "autopilot"
	VehicleName string = "sim-1"
)

// global variables
var (
	// ConfigDir holds autopilot.cfg.json. Overridden by AUTOPILOT_CONFIG_DIR.
	ConfigDir string = "."

	LogFilePath string
	LogFile     *os.File
	graylog     io.WriteCloser

	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	SessionStartTime time.Time = time.Now()

	// Services
	flightContext   *flight.Context
	handlerService  *handlers.Service
	monitorService  *monitor.Service
	eventDispatcher *dispatcher.Dispatcher
	bridge          *host.Bridge
	storageBackend  storage.Backend
	influxManager   *influx.Manager

	vehicle  *sim.Vehicle
	beacon   *sim.Object
	tickRate float64
)

const usage = `usage:
  autopilot fly <x,y,z> <speed> [retro|oneway]   fly the simulated vehicle to a point
  autopilot resume                               continue the stored flight
  autopilot serve                                answer host commands on stdin
`

// setup loads configuration and brings up logging, telemetry and storage.
func setup() error {
	if dir := os.Getenv("AUTOPILOT_CONFIG_DIR"); dir != "" {
		ConfigDir = dir
	}

	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(logging.Options{Level: "info"})
	Logger = SlogManager.Logger()

	if err := config.Load(ConfigDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", ConfigDir)
	}

	logCfg := config.GetLogConfig()
	var err error
	LogFile, err = logging.OpenLogFile(logCfg.Dir, AppName, SessionStartTime)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err)
	} else {
		LogFilePath = LogFile.Name()
	}

	// a nil *os.File must not become a non-nil io.Writer
	var fileWriter io.Writer
	if LogFile != nil {
		fileWriter = LogFile
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.FromSettings(otelCfg, fileWriter))
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
			OTelProvider = nil
		} else {
			Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	var graylogWriter io.Writer
	if logCfg.GraylogEnabled {
		graylog, err = logging.DialGraylog(logCfg.GraylogAddress)
		if err != nil {
			Logger.Warn("Graylog unavailable", "error", err)
		} else {
			graylogWriter = graylog
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}

	flightContext = flight.NewContext()
	SlogManager.Setup(logging.Options{
		Level:    logCfg.Level,
		File:     fileWriter,
		Graylog:  graylogWriter,
		Provider: otelLogProvider,
		Context:  flightContext.LogAttrs,
	})
	Logger = SlogManager.Logger()
	Logger.Info("Starting up...", "version", CurrentVersion, "build", BuildDate, "log", LogFilePath)

	if err := initStorage(); err != nil {
		return err
	}
	initInflux()

	cruiseCfg := config.GetCruiseConfig()
	tickRate = cruiseCfg.TickRate
	if tickRate <= 0 {
		tickRate = 60
	}
	vehicle = newVehicle()
	beacon = newBeacon()

	handlerService = handlers.NewService(handlers.Dependencies{
		Vehicle:     vehicle,
		VehicleName: VehicleName,
		Thrusters:   vehicle.Groups(),
		Gyros:       vehicle.Gyros(),
		Builder: controllers.Factory{
			Cruise:  cruiseCfg,
			Aim:     config.GetAimConfig(),
			Targets: beacon,
		},
		Backend:           storageBackend,
		Influx:            influxManager,
		Logger:            SlogManager.Component("autopilot"),
		TelemetryInterval: config.GetStorageConfig().TelemetryInterval,
	}, flightContext)

	eventDispatcher, err = dispatcher.New(SlogManager.Component("dispatcher"))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	registerLifecycleHandlers(eventDispatcher)
	handlerService.Register(eventDispatcher)
	bridge = host.New(eventDispatcher, CurrentVersion)

	monitorService = monitor.NewService(monitor.Dependencies{
		Status: handlerService.Status,
		Dir:    logCfg.Dir,
		Logger: SlogManager.Component("monitor"),
	})
	if err := monitorService.Start(); err != nil {
		Logger.Warn("Status monitor not started", "error", err)
	}
	return nil
}

func initStorage() error {
	cfg := config.GetStorageConfig()
	backend, err := storage.NewBackend(cfg, SlogManager.Component("storage"))
	if err != nil {
		return err
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("initializing %s storage: %w", cfg.Type, err)
	}
	storageBackend = backend
	Logger.Info("Storage initialized", "type", cfg.Type)
	return nil
}

func initInflux() {
	cfg := config.GetInfluxConfig()
	m := influx.NewManager(cfg, SlogManager.Component("influx"))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := m.Connect(ctx)
	switch {
	case errors.Is(err, influx.ErrDisabled):
		return
	case err != nil:
		Logger.Warn("InfluxDB setup failed", "error", err)
	}
	if m.IsValid || m.BackupWriter != nil {
		influxManager = m
	}
}

func registerLifecycleHandlers(d *dispatcher.Dispatcher) {
	d.Register(":VERSION:", func(e dispatcher.Event) (any, error) {
		return []string{CurrentVersion, BuildDate}, nil
	})

	d.Register(":GETDIR:LOG:", func(e dispatcher.Event) (any, error) {
		return LogFilePath, nil
	})

	// :STEP: advances the simulation, ticking the autopilot before each step.
	d.Register(":STEP:", func(e dispatcher.Event) (any, error) {
		n, err := parseSteps(e.Args)
		if err != nil {
			return nil, err
		}
		return step(n), nil
	})

	d.Register(":SAVE:", func(e dispatcher.Event) (any, error) {
		snapshot, err := save(config.GetLogConfig().Dir)
		if err != nil {
			return nil, err
		}
		if OTelProvider != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := OTelProvider.Flush(ctx); err != nil {
				Logger.Warn("Failed to flush OTel data", "error", err)
			}
		}
		if snapshot != "" {
			return snapshot, nil
		}
		return "ok", nil
	}, dispatcher.Logged())
}

// shutdown flushes and closes everything setup opened. The stored resume
// state is kept so an interrupted flight can be resumed.
func shutdown() {
	if monitorService != nil {
		monitorService.Stop()
	}
	if storageBackend != nil {
		if err := storageBackend.Close(); err != nil {
			Logger.Error("Failed to close storage", "error", err)
		}
	}
	if influxManager != nil {
		if err := influxManager.Close(); err != nil {
			Logger.Error("Failed to close InfluxDB", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "flushing logs: %v\n", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "stopping OTel: %v\n", err)
		}
	}
	if graylog != nil {
		graylog.Close()
	}
	if LogFile != nil {
		LogFile.Close()
	}
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Print(usage)
		os.Exit(2)
	}

	if err := setup(); err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		shutdown()
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch strings.ToLower(args[0]) {
	case "fly":
		err = fly(ctx, args[1:])
	case "resume":
		err = resume(ctx)
	case "serve":
		err = bridge.Serve(ctx, os.Stdin, os.Stdout)
	default:
		fmt.Print(usage)
		err = fmt.Errorf("unknown command %q", args[0])
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		Logger.Error("Run failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		shutdown()
		os.Exit(1)
	}
}

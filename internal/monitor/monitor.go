package monitor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const defaultInterval = time.Second

// StatusFunc renders the current autopilot status.
type StatusFunc func() string

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Status   StatusFunc
	Dir      string // status.txt is written here
	Interval time.Duration
	Logger   *slog.Logger
}

// Service periodically mirrors the autopilot status to a text file so an
// operator can follow a flight without attaching to the host.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.Mutex
	stopChan  chan struct{}
	done      chan struct{}
}

func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = defaultInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}
}

// Path returns the status file location.
func (s *Service) Path() string {
	return filepath.Join(s.deps.Dir, "status.txt")
}

func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// WriteOnce renders the status and replaces the file contents.
func (s *Service) WriteOnce() error {
	body := s.deps.Status()
	tmp := s.Path() + ".tmp"
	if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil {
		return fmt.Errorf("writing status: %w", err)
	}
	if err := os.Rename(tmp, s.Path()); err != nil {
		return fmt.Errorf("replacing status: %w", err)
	}
	return nil
}

// Start launches the writer goroutine. Calling Start twice is a no-op.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	if err := os.MkdirAll(s.deps.Dir, 0o755); err != nil {
		return fmt.Errorf("creating status dir: %w", err)
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(s.stopChan, s.done)
	return nil
}

func (s *Service) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	s.deps.Logger.Debug("Starting status monitor", "path", s.Path(), "interval", s.deps.Interval)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.WriteOnce(); err != nil {
				s.deps.Logger.Error("Error writing status file", "error", err)
			}
		}
	}
}

// Stop halts the writer and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}

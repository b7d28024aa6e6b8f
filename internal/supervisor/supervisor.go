// Package supervisor spawns and manages capture child processes. Each child
// is identified by a synthetic process id of the form stream_<streamID>;
// the supervisor keeps the id->handle map, parses the child's progress
// output, and reports exits to the recording lifecycle manager.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/streamvault/streamvault/internal/config"
	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/observability"
)

// CaptureStatus is the supervisor-level state of a capture child.
type CaptureStatus string

const (
	// StatusRecording indicates the child is running.
	StatusRecording CaptureStatus = "recording"
	// StatusStopping indicates termination has been requested.
	StatusStopping CaptureStatus = "stopping"
	// StatusStopped indicates the child exited.
	StatusStopped CaptureStatus = "stopped"
)

// CaptureRequest describes a capture to start.
type CaptureRequest struct {
	StreamID        models.ULID
	ProcessID       string
	StreamerName    string
	ChannelURL      string
	OutputPath      string
	Quality         string
	CodecPreference string
	ProxyURL        string
}

// CaptureProgress is a point-in-time view of a capture's progress. Duration
// is nil while the output parser has not seen a usable marker; callers fall
// back to heartbeat-only reporting in that case.
type CaptureProgress struct {
	Status          CaptureStatus `json:"status"`
	DurationSeconds *float64      `json:"duration_seconds,omitempty"`
	BytesWritten    int64         `json:"bytes_written"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// ExitFunc is called when a capture child exits for any reason. exitErr is
// nil on a clean (code 0) exit.
type ExitFunc func(processID string, exitErr error)

// Handle owns one capture child.
type Handle struct {
	ProcessID string
	PID       int
	StartedAt time.Time

	cmd    *exec.Cmd
	parser *progressParser
	logw   *rotatingWriter

	mu     sync.Mutex
	status CaptureStatus
	done   chan struct{}
}

// Supervisor spawns, tracks and terminates capture children.
type Supervisor struct {
	captureCfg       config.CaptureConfig
	terminateTimeout time.Duration
	log              *slog.Logger
	onExit           ExitFunc

	mu           sync.RWMutex
	handles      map[string]*Handle
	shuttingDown bool
}

// New creates a Supervisor.
func New(captureCfg config.CaptureConfig, terminateTimeout time.Duration, log *slog.Logger, onExit ExitFunc) *Supervisor {
	if terminateTimeout <= 0 {
		terminateTimeout = 15 * time.Second
	}
	return &Supervisor{
		captureCfg:       captureCfg,
		terminateTimeout: terminateTimeout,
		log:              observability.WithComponent(log, "supervisor"),
		onExit:           onExit,
		handles:          make(map[string]*Handle),
	}
}

// ProcessIDForStream returns the synthetic process id for a stream.
func ProcessIDForStream(streamID models.ULID) string {
	return "stream_" + streamID.String()
}

// captureBinary returns the configured capture tool, defaulting to
// streamlink on PATH.
func (s *Supervisor) captureBinary() string {
	if s.captureCfg.BinaryPath != "" {
		return s.captureCfg.BinaryPath
	}
	return "streamlink"
}

// buildArgs assembles the capture tool invocation.
func (s *Supervisor) buildArgs(req CaptureRequest) []string {
	args := []string{
		"--loglevel", "info",
		"--progress", "force",
		"--retry-streams", "5",
		"--twitch-disable-ads",
	}
	if req.CodecPreference != "" {
		args = append(args, "--twitch-supported-codecs", req.CodecPreference)
	}
	proxy := req.ProxyURL
	if proxy == "" {
		proxy = s.captureCfg.ProxyURL
	}
	if proxy != "" {
		args = append(args, "--http-proxy", proxy)
	}
	args = append(args, "-o", req.OutputPath, req.ChannelURL, req.Quality)
	return args
}

// StartCapture spawns a capture child. The returned handle is owned by the
// supervisor; callers refer to it by process id afterwards.
func (s *Supervisor) StartCapture(ctx context.Context, req CaptureRequest) (*Handle, error) {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return nil, models.ErrShuttingDown
	}
	if _, exists := s.handles[req.ProcessID]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("capture %s already active: %w", req.ProcessID, models.ErrAlreadyRecording)
	}
	s.mu.Unlock()

	logw, err := newRotatingWriter(s.captureCfg.LogDir, req.StreamerName, s.captureCfg.LogMaxSize.Bytes(), s.captureCfg.LogMaxFiles)
	if err != nil {
		return nil, fmt.Errorf("opening capture log: %w", err)
	}

	parser := newProgressParser()

	// Child lifetime is controlled by Terminate, not the start context.
	cmd := exec.Command(s.captureBinary(), s.buildArgs(req)...)
	cmd.Stdout = io.MultiWriter(parser, logw)
	cmd.Stderr = io.MultiWriter(parser, logw)

	if err := cmd.Start(); err != nil {
		logw.Close()
		return nil, fmt.Errorf("starting capture: %w", err)
	}

	h := &Handle{
		ProcessID: req.ProcessID,
		PID:       cmd.Process.Pid,
		StartedAt: time.Now(),
		cmd:       cmd,
		parser:    parser,
		logw:      logw,
		status:    StatusRecording,
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	s.handles[req.ProcessID] = h
	s.mu.Unlock()

	s.log.Info("capture started",
		"process_id", req.ProcessID,
		"pid", h.PID,
		"streamer", req.StreamerName,
		"quality", req.Quality,
		"output", req.OutputPath)

	go s.reap(h)

	return h, nil
}

// reap waits for the child and reports its exit.
func (s *Supervisor) reap(h *Handle) {
	err := h.cmd.Wait()

	h.mu.Lock()
	h.status = StatusStopped
	h.mu.Unlock()
	close(h.done)
	h.logw.Close()

	s.mu.Lock()
	delete(s.handles, h.ProcessID)
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("capture exited with error", "process_id", h.ProcessID, "pid", h.PID, "error", err)
	} else {
		s.log.Info("capture exited cleanly", "process_id", h.ProcessID, "pid", h.PID)
	}

	if s.onExit != nil {
		s.onExit(h.ProcessID, err)
	}
}

// IsActive reports whether a capture child is still running. The handle map
// is cross-checked against the OS so a wedged reap cannot make a dead child
// look alive.
func (s *Supervisor) IsActive(processID string) bool {
	s.mu.RLock()
	h, ok := s.handles[processID]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	select {
	case <-h.done:
		return false
	default:
	}

	alive, err := process.PidExists(int32(h.PID))
	if err != nil {
		// Can't ask the OS; trust the handle.
		return true
	}
	return alive
}

// Progress returns the current progress of a capture, if it is tracked.
func (s *Supervisor) Progress(processID string) (CaptureProgress, bool) {
	s.mu.RLock()
	h, ok := s.handles[processID]
	s.mu.RUnlock()
	if !ok {
		return CaptureProgress{}, false
	}

	h.mu.Lock()
	status := h.status
	h.mu.Unlock()

	snap := h.parser.Snapshot()
	return CaptureProgress{
		Status:          status,
		DurationSeconds: snap.DurationSeconds,
		BytesWritten:    snap.BytesWritten,
		UpdatedAt:       snap.UpdatedAt,
	}, true
}

/// Terminate stops a capture child: graceful interrupt first, SIGKILL after
// the configured wait. Returns false when the process id is unknown.
func (s *Supervisor) Terminate(processID string) bool {
	s.mu.RLock()
	h, ok := s.handles[processID]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	h.mu.Lock()
	h.status = StatusStopping
	h.mu.Unlock()

	// SIGINT lets the capture tool flush and finalize its output.
	if err := h.cmd.Process.Signal(syscall.SIGINT); err != nil {
		s.log.Debug("interrupt failed, child may already be gone", "process_id", processID, "error", err)
	}

	select {
	case <-h.done:
		return true
	case <-time.After(s.terminateTimeout):
	}

	s.log.Warn("capture did not exit after interrupt, killing", "process_id", processID, "pid", h.PID)
	if err := h.cmd.Process.Kill(); err != nil {
		s.log.Error("kill failed", "process_id", processID, "error", err)
	}
	<-h.done
	return true
}

// ActiveProcessIDs returns the ids of all tracked captures.
func (s *Supervisor) ActiveProcessIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.handles))
	for id := range s.handles {
		ids = append(ids, id)
	}
	return ids
}

// GracefulShutdown refuses new captures and terminates the running ones,
// bounded by ctx.
func (s *Supervisor) GracefulShutdown(ctx context.Context) {
	s.mu.Lock()
	s.shuttingDown = true
	ids := make([]string, 0, len(s.handles))
	for id := range s.handles {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			s.Terminate(id)
		}(id)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("all captures terminated")
	case <-ctx.Done():
		s.log.Warn("shutdown deadline reached with captures still terminating")
	}
}

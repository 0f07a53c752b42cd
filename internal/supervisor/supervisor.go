// Package supervisor owns the compositor child process: spawn, output
// capture, graceful-then-forceful termination and crash auto-restart.
package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Defaults for termination and restart timing.
const (
	DefaultGracePeriod  = 3 * time.Second
	DefaultRestartDelay = 1 * time.Second
)

// EventType tags a lifecycle event.
type EventType int

const (
	// EventStarted fires after a successful spawn.
	EventStarted EventType = iota
	// EventStopped fires on every exit path, including failed spawns.
	EventStopped
	// EventReady fires once per run when the output matcher sees the
	// compositor's readiness line.
	EventReady
)

// Event is a typed lifecycle notification.
type Event struct {
	Type     EventType
	ExitCode int // EventStopped only; -1 for failed spawn or signal death
	// Unexpected is set on EventStopped when no Stop call preceded the exit.
	Unexpected bool
}

// LineFunc receives one captured output line at a time.
type LineFunc func(line string)

// Options tune a Supervisor. Zero values select the defaults.
type Options struct {
	GracePeriod  time.Duration
	RestartDelay time.Duration
	// ReadyMatcher reports whether an output line signals readiness.
	// Nil disables ready detection.
	ReadyMatcher func(line string) bool
	// Output receives every captured line after it is buffered. Optional.
	Output LineFunc
}

// DefaultReadyMatcher matches the line gamescope prints once its nested
// Xwayland is accepting clients.
func DefaultReadyMatcher(line string) bool {
	return strings.Contains(line, "Starting Xwayland on")
}

// Supervisor manages a single compositor process. Start and Stop are
// idempotent no-ops outside their valid precondition state, so callers never
// need to pre-check IsRunning.
type Supervisor struct {
	mu            sync.Mutex
	cmd           *exec.Cmd
	running       bool
	starting      bool
	stopRequested bool
	autoRestart   bool
	restartTimer  *time.Timer
	lastArgv      []string
	waitDone      chan struct{}
	readySeen     bool

	grace        time.Duration
	restartDelay time.Duration
	readyMatcher func(string) bool
	output       LineFunc

	buf    *ring
	events chan Event
}

// New creates an idle supervisor.
func New(opts Options) *Supervisor {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = DefaultRestartDelay
	}
	return &Supervisor{
		grace:        opts.GracePeriod,
		restartDelay: opts.RestartDelay,
		readyMatcher: opts.ReadyMatcher,
		output:       opts.Output,
		buf:          newRing(LogBufferSize),
		events:       make(chan Event, 64),
	}
}

// Events returns the lifecycle event channel. Events are dropped with a
// warning if nobody drains the channel.
func (s *Supervisor) Events() <-chan Event { return s.events }

// IsRunning reports whether a child is currently running.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetAutoRestart enables or disables the crash restart policy.
func (s *Supervisor) SetAutoRestart(enabled bool) {
	s.mu.Lock()
	s.autoRestart = enabled
	s.mu.Unlock()
}

// LogLines returns the buffered output, oldest first.
func (s *Supervisor) LogLines() []string { return s.buf.Snapshot() }

// Start spawns the child with stdout and stderr merged into one stream.
// A warning is logged and nil returned when a child is already running.
// On spawn failure the supervisor stays idle and EventStopped{-1} is emitted.
func (s *Supervisor) Start(argv []string) error {
	s.mu.Lock()
	if s.running || s.starting {
		s.mu.Unlock()
		slog.Warn("Compositor is already running")
		s.logLine("Compositor is already running")
		return nil
	}
	if len(argv) == 0 {
		s.mu.Unlock()
		return errors.New("start: empty argument vector")
	}
	s.starting = true
	s.stopRequested = false
	s.readySeen = false
	s.mu.Unlock()

	s.logLine("Starting: " + strings.Join(argv, " "))

	// #nosec G204 -- argv is assembled by the configuration layer.
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	pr, pw, err := os.Pipe()
	if err != nil {
		s.finishSpawnFailure(fmt.Errorf("merge pipe: %w", err))
		return err
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		_ = pr.Close()
		s.finishSpawnFailure(err)
		return err
	}
	// The child holds the write end now; the parent only reads.
	_ = pw.Close()

	s.mu.Lock()
	s.cmd = cmd
	s.running = true
	s.starting = false
	s.lastArgv = slices.Clone(argv)
	s.waitDone = make(chan struct{})
	s.mu.Unlock()

	slog.Info("Compositor started", "pid", cmd.Process.Pid)
	s.emit(Event{Type: EventStarted})

	go s.readLoop(pr)
	go s.waitLoop(cmd)
	return nil
}

func (s *Supervisor) finishSpawnFailure(err error) {
	s.mu.Lock()
	s.starting = false
	s.mu.Unlock()
	slog.Error("Failed to start compositor", "error", err)
	s.logLine("Failed to start compositor: " + err.Error())
	s.emit(Event{Type: EventStopped, ExitCode: -1, Unexpected: false})
}

// Stop requests termination: SIGTERM to the process group, SIGKILL after the
// grace period. It cancels any pending auto-restart, returns immediately when
// nothing is running, and otherwise blocks until the child has exited.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	// The stop flag and timer cancellation apply even when idle: a restart
	// scheduled after a crash must never survive a user-initiated stop.
	s.stopRequested = true
	s.cancelRestartLocked()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cmd := s.cmd
	wd := s.waitDone
	s.mu.Unlock()

	s.logLine("Stopping compositor...")
	slog.Info("Stopping compositor", "pid", cmd.Process.Pid)
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)

	select {
	case <-wd:
	case <-time.After(s.grace):
		s.logLine("Force killing compositor...")
		slog.Warn("Grace period elapsed, sending SIGKILL", "pid", cmd.Process.Pid)
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-wd
	}
	return nil
}

// cancelRestartLocked stops a pending restart timer. Safe to call twice or
// when none is pending. Caller holds s.mu.
func (s *Supervisor) cancelRestartLocked() {
	if s.restartTimer != nil {
		s.restartTimer.Stop()
		s.restartTimer = nil
	}
}

func (s *Supervisor) waitLoop(cmd *exec.Cmd) {
	err := cmd.Wait()
	code := exitCodeOf(cmd, err)

	s.mu.Lock()
	s.running = false
	s.cmd = nil
	userStop := s.stopRequested
	autoRestart := s.autoRestart
	argv := s.lastArgv
	if s.waitDone != nil {
		close(s.waitDone)
		s.waitDone = nil
	}
	s.mu.Unlock()

	s.logLine(fmt.Sprintf("Compositor exited with code %d", code))
	slog.Info("Compositor exited", "code", code, "user_stop", userStop)
	s.emit(Event{Type: EventStopped, ExitCode: code, Unexpected: !userStop})

	if !userStop && autoRestart && code != 0 {
		s.scheduleRestart(argv)
	}
}

// scheduleRestart arms a single restart attempt. The stop flag is re-checked
// synchronously when the timer fires so a Stop that lands in between wins.
func (s *Supervisor) scheduleRestart(argv []string) {
	s.mu.Lock()
	if s.restartTimer != nil || s.stopRequested {
		s.mu.Unlock()
		return
	}
	s.restartTimer = time.AfterFunc(s.restartDelay, func() {
		s.mu.Lock()
		s.restartTimer = nil
		cancelled := s.stopRequested || s.running || s.starting
		s.mu.Unlock()
		if cancelled {
			return
		}
		s.logLine("Auto-restarting compositor...")
		slog.Info("Auto-restarting compositor")
		_ = s.Start(argv)
	})
	s.mu.Unlock()
	s.logLine(fmt.Sprintf("Will restart in %s...", s.restartDelay))
}

func (s *Supervisor) readLoop(r io.ReadCloser) {
	defer func() { _ = r.Close() }()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		s.logLine(line)
		s.maybeReady(line)
	}
	// Read errors and EOF end the loop quietly; process-state tracking is
	// independent of stream closure.
}

func (s *Supervisor) maybeReady(line string) {
	if s.readyMatcher == nil || !s.readyMatcher(line) {
		return
	}
	s.mu.Lock()
	already := s.readySeen
	s.readySeen = true
	s.mu.Unlock()
	if !already {
		s.emit(Event{Type: EventReady})
	}
}

func (s *Supervisor) logLine(line string) {
	s.buf.Append(line)
	if s.output != nil {
		s.output(line)
	}
}

func (s *Supervisor) emit(e Event) {
	select {
	case s.events <- e:
	default:
		slog.Warn("Lifecycle event dropped, channel full", "type", e.Type)
	}
}

func exitCodeOf(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

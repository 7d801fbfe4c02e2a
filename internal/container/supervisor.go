package container

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"aurora/internal/pkg/errors"
	"aurora/internal/pkg/logger"
)

// DefaultKillGrace is how long a terminated workload may take to exit before
// it is killed.
const DefaultKillGrace = 30 * time.Second

// JobExecutionError reports a workload that exited with a non-zero status.
func JobExecutionError(code int, logPath string) *errors.Error {
	return errors.Execution(code, "process failed with non-zero exit code, check logs for details").
		WithField("log_path", logPath)
}

// Result describes a finished run. LogPath is always set.
type Result struct {
	ExitCode int
	LogPath  string
	TimedOut bool
	Duration time.Duration
}

type Deps struct {
	Launcher Launcher
	Cleaner  Cleaner
	Platform Platform
	// Console receives every output line, defaults to os.Stdout.
	Console   io.Writer
	Log       *logger.Logger
	KillGrace time.Duration
	// OpenLog opens the per-run log file, defaults to creating path.
	OpenLog func(path string) (io.WriteCloser, error)
}

type Supervisor struct {
	launcher  Launcher
	cleaner   Cleaner
	builder   Builder
	console   io.Writer
	log       *logger.Logger
	killGrace time.Duration
	openLog   func(string) (io.WriteCloser, error)
}

func NewSupervisor(d Deps) *Supervisor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("container")

	s := &Supervisor{
		launcher:  d.Launcher,
		cleaner:   d.Cleaner,
		builder:   Builder{Platform: d.Platform},
		console:   d.Console,
		log:       log,
		killGrace: d.KillGrace,
		openLog:   d.OpenLog,
	}
	if s.launcher == nil {
		s.launcher = ExecLauncher{}
	}
	if s.cleaner == nil {
		s.cleaner = DockerCleaner{Log: log}
	}
	if s.console == nil {
		s.console = os.Stdout
	}
	if s.killGrace <= 0 {
		s.killGrace = DefaultKillGrace
	}
	if s.openLog == nil {
		s.openLog = createLog
	}
	return s
}

func createLog(path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.Create(path)
}

// Command returns the full docker command line for inv.
func (s *Supervisor) Command(inv Invocation) []string {
	return append([]string{DockerBinary}, s.builder.Args(inv)...)
}

// Run executes inv and blocks until the workload exited and its container was
// cleaned up. Output lines are echoed to the console and appended to the run
// log. When the timeout fires or ctx is canceled the workload gets SIGTERM and
// its remaining output is discarded. Cleanup runs exactly once for every
// started workload, whatever the outcome.
func (s *Supervisor) Run(ctx context.Context, inv Invocation) (res Result, err error) {
	const op = "container.run"

	res.LogPath = inv.LogPath
	if err := inv.Validate(); err != nil {
		return res, err
	}
	log := s.log.WithFields(map[string]any{"container": inv.Name, "image": inv.Image})

	runLog, err := s.openLog(inv.LogPath)
	if err != nil {
		return res, errors.Wrap(err, op, "failed to open run log").WithField("log_path", inv.LogPath)
	}
	defer runLog.Close()

	command := strings.Join(s.Command(inv), " ")
	log.Info("running docker command", "command", command)
	if _, err := io.WriteString(runLog, "Running Docker command: "+command+"\n"); err != nil {
		return res, errors.Wrap(err, op, "failed to write run log").WithField("log_path", inv.LogPath)
	}

	start := time.Now()
	proc, err := s.launcher.Start(ctx, s.builder.Args(inv))
	if err != nil {
		return res, errors.Wrap(err, op, "failed to start container")
	}
	defer func() {
		s.cleaner.Cleanup(context.WithoutCancel(ctx), inv.Name)
	}()

	lines := readLines(proc.Output())
	timer := time.NewTimer(inv.Timeout)
	defer timer.Stop()

	var primary error
	terminated := false

loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			s.echo(line)
			if _, werr := io.WriteString(runLog, line); werr != nil {
				primary = errors.Wrap(werr, op, "failed to write run log").WithField("log_path", inv.LogPath)
				log.Error("run log write failed, terminating container", "error", werr.Error())
				s.terminate(proc, log)
				terminated = true
				break loop
			}
		case <-timer.C:
			res.TimedOut = true
			log.Warn("timeout reached, terminating container", "timeout", inv.Timeout.String())
			s.terminate(proc, log)
			terminated = true
			break loop
		case <-ctx.Done():
			log.Warn("run canceled, terminating container", "reason", context.Cause(ctx).Error())
			s.terminate(proc, log)
			terminated = true
			break loop
		}
	}

	// keep the pipe flowing so a terminated workload can exit
	go func() {
		for range lines {
		}
	}()

	var deadline <-chan time.Time
	var canceled <-chan struct{}
	if !terminated {
		// output closed early, the workload may still be running
		deadline, canceled = timer.C, ctx.Done()
	}
	code, werr := s.wait(ctx, proc, waitSignals{deadline: deadline, canceled: canceled, terminated: terminated}, &res, log)
	_ = proc.Close()
	res.ExitCode = code
	res.Duration = time.Since(start)

	log.Info("container exited", "exit_code", code, "duration_ms", res.Duration.Milliseconds())

	switch {
	case primary != nil:
		return res, primary
	case werr != nil:
		return res, errors.Wrap(werr, op, "failed to wait for container")
	case code != 0:
		return res, JobExecutionError(code, inv.LogPath).WithField("timed_out", res.TimedOut)
	}
	return res, nil
}

func (s *Supervisor) echo(line string) {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	_, _ = io.WriteString(s.console, line)
}

func (s *Supervisor) terminate(p Process, log *logger.Logger) {
	if err := p.Terminate(); err != nil {
		log.Warn("failed to signal container process", "error", err.Error())
	}
}

type waitResult struct {
	code int
	err  error
}

// waitSignals are the stop conditions still armed while waiting for exit.
type waitSignals struct {
	deadline   <-chan time.Time
	canceled   <-chan struct{}
	terminated bool
}

// wait collects the exit status. The timeout and cancellation still apply
// until the workload exits. A terminated workload that does not exit within
// the kill grace is killed.
func (s *Supervisor) wait(ctx context.Context, p Process, sig waitSignals, res *Result, log *logger.Logger) (int, error) {
	done := make(chan waitResult, 1)
	go func() {
		code, err := p.Wait()
		done <- waitResult{code: code, err: err}
	}()

	var (
		grace      <-chan time.Time
		graceTimer *time.Timer
	)
	startGrace := func() {
		graceTimer = time.NewTimer(s.killGrace)
		grace = graceTimer.C
	}
	defer func() {
		if graceTimer != nil {
			graceTimer.Stop()
		}
	}()
	if sig.terminated {
		startGrace()
	}

	for {
		select {
		case r := <-done:
			return r.code, r.err
		case <-sig.deadline:
			res.TimedOut = true
			log.Warn("timeout reached after output closed, terminating container")
			s.terminate(p, log)
			sig.deadline, sig.canceled = nil, nil
			startGrace()
		case <-sig.canceled:
			log.Warn("run canceled after output closed, terminating container", "reason", context.Cause(ctx).Error())
			s.terminate(p, log)
			sig.deadline, sig.canceled = nil, nil
			startGrace()
		case <-grace:
			log.Warn("container process ignored SIGTERM, killing", "grace", s.killGrace.String())
			if err := p.Kill(); err != nil {
				log.Warn("failed to kill container process", "error", err.Error())
			}
			r := <-done
			return r.code, r.err
		}
	}
}

// readLines turns r into a channel of lines, newline included. The channel
// is closed on EOF or read error.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		br := bufio.NewReaderSize(r, 64*1024)
		for {
			line, err := br.ReadString('\n')
			if line != "" {
				lines <- line
			}
			if err != nil {
				return
			}
		}
	}()
	return lines
}

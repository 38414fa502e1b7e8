package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/ktagawa/agentq/pkg/shellformat"
)

// maxCapturedOutput bounds how much of each stream is retained per run.
// Streams keep draining past the cap so the child never blocks on a full
// pipe; the excess is dropped.
const maxCapturedOutput = 1 << 20

// Request describes one child process invocation.
type Request struct {
	Path    string
	Args    []string
	Env     []string // appended to the daemon's environment
	Dir     string
	Stdin   string
	Timeout time.Duration
	// KillGrace is how long the child gets between SIGTERM and SIGKILL.
	KillGrace time.Duration
}

// Result captures how the child ended. Stdout and Stderr hold whatever was
// produced before the end, on every path including timeout and kill.
type Result struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	TimedOut  bool
	Cancelled bool
	Duration  time.Duration
}

// Runner executes CLI processes with bounded capture and forced teardown.
type Runner struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run starts the child and blocks until it is fully reaped. The returned
// error covers spawn failures only; a non-zero exit, timeout, or cancel is
// reported through Result.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, req.Path, req.Args...)
	cmd.Dir = req.Dir
	cmd.Env = append(os.Environ(), req.Env...)
	if req.Stdin != "" {
		cmd.Stdin = bytes.NewReader([]byte(req.Stdin))
	}
	// On context cancellation the child gets SIGTERM first, then SIGKILL
	// after the grace period.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	if req.KillGrace > 0 {
		cmd.WaitDelay = req.KillGrace
	} else {
		cmd.WaitDelay = 10 * time.Second
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", req.Path, err)
	}
	r.logger.Debug("child process started",
		slog.Int("pid", cmd.Process.Pid),
		slog.String("command", shellformat.Command(req.Path, req.Args...)))

	var stdout, stderr cappedBuffer
	var wg sync.WaitGroup
	wg.Add(2)
	go drain(&wg, stdoutPipe, &stdout)
	go drain(&wg, stderrPipe, &stderr)
	wg.Wait()

	waitErr := cmd.Wait()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	switch {
	case waitErr == nil:
		res.ExitCode = 0
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
		res.ExitCode = -1
	case errors.Is(ctx.Err(), context.Canceled):
		res.Cancelled = true
		res.ExitCode = -1
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			res.Stderr = res.Stderr + "\n" + waitErr.Error()
		}
	}

	r.logger.Debug("child process reaped",
		slog.Int("pid", cmd.Process.Pid),
		slog.Int("exit_code", res.ExitCode),
		slog.Bool("timed_out", res.TimedOut),
		slog.Duration("duration", res.Duration))
	return res, nil
}

func drain(wg *sync.WaitGroup, pipe io.ReadCloser, buf *cappedBuffer) {
	defer wg.Done()
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		buf.WriteLine(scanner.Text())
	}
}

// cappedBuffer accumulates lines up to maxCapturedOutput bytes and silently
// drops the rest.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	truncated bool
}

func (b *cappedBuffer) WriteLine(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buf.Len() >= maxCapturedOutput {
		b.truncated = true
		return
	}
	b.buf.WriteString(line)
	b.buf.WriteByte('\n')
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return b.buf.String() + "\n[output truncated]\n"
	}
	return b.buf.String()
}

// Package tool launches the external bouncer import tool once per input
// file under a wall-clock watchdog.
package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	maxStdoutBytes = 64 * 1024
	maxStderrBytes = 64 * 1024
)

// Request describes a single invocation.
type Request struct {
	File    string
	LogDir  string
	Timeout time.Duration // zero means the invoker's default
}

// Result is what the process reported. ExitCode is the raw process status
// and may disagree with the tool's own log.
type Result struct {
	ID       string
	ExitCode int
	Duration time.Duration
	PID      int
	Stdout   string
	Stderr   string
}

// Invoker runs the import tool against one file.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Result, error)
}

// Options configure a Runner.
type Options struct {
	Path           string
	Subcommand     string
	LogDirEnv      string
	License        string
	Env            map[string]string
	DefaultTimeout time.Duration
}

// Runner is the os/exec backed Invoker.
type Runner struct {
	path       string
	subcommand string
	logDirEnv  string
	baseEnv    []string
	timeout    time.Duration
}

// NewRunner builds a Runner. The launch environment is the current process
// environment plus the configured extras; the log directory variable is
// added per invocation.
func NewRunner(opts Options) *Runner {
	if opts.LogDirEnv == "" {
		opts.LogDirEnv = "REPO_LOG_DIR"
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 360 * time.Second
	}

	env := os.Environ()
	keys := make([]string, 0, len(opts.Env))
	for k := range opts.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+opts.Env[k])
	}
	if opts.License != "" {
		env = append(env, "REPO_LICENSE="+opts.License)
	}

	return &Runner{
		path:       opts.Path,
		subcommand: opts.Subcommand,
		logDirEnv:  opts.LogDirEnv,
		baseEnv:    env,
		timeout:    opts.DefaultTimeout,
	}
}

// Args returns the argument vector for file, without the binary.
func (r *Runner) Args(file string) []string {
	if r.subcommand == "" {
		return []string{file}
	}
	return []string{r.subcommand, file}
}

// Env returns the launch environment for an invocation logging to logDir.
func (r *Runner) Env(logDir string) []string {
	env := make([]string, len(r.baseEnv), len(r.baseEnv)+1)
	copy(env, r.baseEnv)
	return append(env, r.logDirEnv+"="+logDir)
}

// Invoke runs the tool and waits for it. On timeout the whole process group
// is killed and reaped, and the partial Result is returned with ErrTimeout.
func (r *Runner) Invoke(ctx context.Context, req Request) (*Result, error) {
	execID := uuid.New().String()
	logger := log.With().
		Str("exec_id", execID).
		Str("file", req.File).
		Logger()

	if req.File == "" || req.LogDir == "" {
		return nil, &InvocationError{File: req.File, Op: "validate", Err: fmt.Errorf("%w: file and log dir are required", ErrInvalidRequest)}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, r.path, r.Args(req.File)...) // #nosec G204 -- binary and subcommand come from operator config
	cmd.Env = r.Env(req.LogDir)
	setProcessGroup(cmd)
	cmd.WaitDelay = 5 * time.Second

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	logger.Debug().Str("log_dir", req.LogDir).Dur("timeout", timeout).Msg("starting import tool")

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := &Result{
		ID:       execID,
		Duration: duration,
		Stdout:   truncateOutput(stdoutBuf.String(), maxStdoutBytes),
		Stderr:   truncateOutput(stderrBuf.String(), maxStderrBytes),
	}
	if cmd.Process != nil {
		result.PID = cmd.Process.Pid
	}

	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			logger.Warn().Dur("timeout", timeout).Msg("import tool timed out, process group killed")
			result.ExitCode = -1
			return result, ErrTimeout
		}
		if ctx.Err() != nil {
			return nil, &InvocationError{File: req.File, Op: "wait", Err: ctx.Err()}
		}

		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
				err = fmt.Errorf("%w: %s: %v", ErrToolNotFound, r.path, err)
			}
			return nil, &InvocationError{File: req.File, Op: "start", Err: err}
		}
		result.ExitCode = exitErr.ExitCode()
	}

	logger.Debug().
		Int("exit_code", result.ExitCode).
		Dur("duration", duration).
		Msg("import tool exited")

	return result, nil
}

func truncateOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return "[output truncated] ...\n" + s[len(s)-maxBytes:]
}

// Package sandbox runs model-written Python for the chart generator in a
// child interpreter confined to a session's working directory.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SandboxConfig configures the sandbox executor.
type SandboxConfig struct {
	Interpreter    string        `json:"interpreter" yaml:"interpreter"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
	MaxOutputBytes int           `json:"max_output_bytes" yaml:"max_output_bytes"`
	Disabled       bool          `json:"disabled" yaml:"disabled"`
}

// DefaultSandboxConfig returns conservative defaults.
func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{
		Interpreter:    "python3",
		Timeout:        30 * time.Second,
		MaxOutputBytes: 64 * 1024,
	}
}

// ExecutionRequest represents a code execution request.
type ExecutionRequest struct {
	ID      string        `json:"id"`
	Code    string        `json:"code"`
	WorkDir string        `json:"work_dir"`
	Timeout time.Duration `json:"timeout,omitempty"`
}

// ExecutionResult represents the result of code execution.
type ExecutionResult struct {
	ID        string        `json:"id"`
	Success   bool          `json:"success"`
	ExitCode  int           `json:"exit_code"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Truncated bool          `json:"truncated,omitempty"`
}

// ExecutionBackend defines the interface for execution backends.
type ExecutionBackend interface {
	Execute(ctx context.Context, req *ExecutionRequest, config SandboxConfig) (*ExecutionResult, error)
	Name() string
}

// ExecutorStats tracks execution statistics.
type ExecutorStats struct {
	TotalExecutions   int64         `json:"total_executions"`
	SuccessExecutions int64         `json:"success_executions"`
	FailedExecutions  int64         `json:"failed_executions"`
	TimeoutExecutions int64         `json:"timeout_executions"`
	TotalDuration     time.Duration `json:"total_duration"`
}

// ErrSandboxDisabled is returned when code execution is turned off.
var ErrSandboxDisabled = errors.New("code execution is disabled")

// SandboxExecutor executes code through a backend with timeout and output limits.
type SandboxExecutor struct {
	config  SandboxConfig
	backend ExecutionBackend
	logger  *zap.Logger
	mu      sync.RWMutex
	stats   ExecutorStats
}

// NewSandboxExecutor creates a new sandbox executor.
func NewSandboxExecutor(config SandboxConfig, backend ExecutionBackend, logger *zap.Logger) *SandboxExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxOutputBytes <= 0 {
		config.MaxOutputBytes = 64 * 1024
	}
	if backend == nil {
		backend = NewProcessBackend(logger)
	}
	return &SandboxExecutor{
		config:  config,
		backend: backend,
		logger:  logger,
	}
}

// Execute runs code in the sandbox.
func (s *SandboxExecutor) Execute(ctx context.Context, req *ExecutionRequest) (*ExecutionResult, error) {
	if s.config.Disabled {
		return nil, ErrSandboxDisabled
	}
	if strings.TrimSpace(req.Code) == "" {
		return nil, fmt.Errorf("code is required")
	}
	if req.WorkDir == "" {
		return nil, fmt.Errorf("work dir is required")
	}

	start := time.Now()
	timeout := s.config.Timeout
	if req.Timeout > 0 && req.Timeout < timeout {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Debug("executing code",
		zap.String("id", req.ID),
		zap.String("backend", s.backend.Name()),
		zap.Int("code_length", len(req.Code)))

	result, err := s.backend.Execute(ctx, req, s.config)

	s.mu.Lock()
	s.stats.TotalExecutions++
	s.stats.TotalDuration += time.Since(start)
	if err != nil || !result.Success {
		s.stats.FailedExecutions++
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.stats.TimeoutExecutions++
		}
	} else {
		s.stats.SuccessExecutions++
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	if len(result.Stdout) > s.config.MaxOutputBytes {
		result.Stdout = result.Stdout[:s.config.MaxOutputBytes]
		result.Truncated = true
	}
	if len(result.Stderr) > s.config.MaxOutputBytes {
		result.Stderr = result.Stderr[:s.config.MaxOutputBytes]
		result.Truncated = true
	}

	result.Duration = time.Since(start)
	return result, nil
}

// RunPython executes code and returns its stdout; a failed run is an error
// carrying the interpreter's stderr.
func (s *SandboxExecutor) RunPython(ctx context.Context, workDir, code string) (string, error) {
	res, err := s.Execute(ctx, &ExecutionRequest{Code: code, WorkDir: workDir})
	if err != nil {
		return "", err
	}
	if !res.Success {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = res.Error
		}
		return res.Stdout, fmt.Errorf("%s", msg)
	}
	return res.Stdout, nil
}

// Stats returns execution statistics.
func (s *SandboxExecutor) Stats() ExecutorStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// ProcessBackend runs the interpreter as a local child process.
type ProcessBackend struct {
	logger *zap.Logger
}

// NewProcessBackend creates a process-based execution backend.
func NewProcessBackend(logger *zap.Logger) *ProcessBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessBackend{logger: logger}
}

func (p *ProcessBackend) Name() string { return "process" }

// Execute feeds the code to the interpreter on stdin with the working
// directory set to req.WorkDir.
func (p *ProcessBackend) Execute(ctx context.Context, req *ExecutionRequest, config SandboxConfig) (*ExecutionResult, error) {
	interpreter := config.Interpreter
	if interpreter == "" {
		interpreter = "python3"
	}
	path, err := exec.LookPath(interpreter)
	if err != nil {
		return nil, fmt.Errorf("interpreter %s not found: %w", interpreter, err)
	}

	cmd := exec.CommandContext(ctx, path, "-")
	cmd.Dir = req.WorkDir
	cmd.Stdin = strings.NewReader(req.Code)
	cmd.Env = []string{"PYTHONUNBUFFERED=1", "MPLBACKEND=Agg", "HOME=" + req.WorkDir}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	result := &ExecutionResult{
		ID:      req.ID,
		Success: runErr == nil,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}
	if runErr != nil {
		if ctx.Err() != nil {
			result.Error = fmt.Sprintf("execution timed out: %v", ctx.Err())
		} else {
			result.Error = runErr.Error()
		}
		p.logger.Debug("code execution failed", zap.String("id", req.ID), zap.Error(runErr))
	}
	return result, nil
}

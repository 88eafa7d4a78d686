// Package latex materializes a virtual file set into an exclusively-owned
// scratch directory, runs the typesetting toolchain, and returns either PDF
// bytes or the toolchain's own diagnostics. The scratch directory is removed
// on every exit path.
package latex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrTimeout means the toolchain exceeded the wall-clock budget and was
	// killed. Partial scratch state is still cleaned up.
	ErrTimeout = errors.New("latex compilation timed out")

	// ErrUnsafePath means an aux file path was absolute or escaped the
	// scratch root via "..". Nothing is written for such a request.
	ErrUnsafePath = errors.New("aux file path escapes the scratch directory")
)

// Error is a compilation failure. Log carries the captured toolchain output
// verbatim — authors debugging LaTeX need the real diagnostics, so callers
// pass it through to the response.
type Error struct {
	Log string
}

func (e *Error) Error() string {
	return "latex compilation failed"
}

type Config struct {
	// BaseDir hosts the per-invocation scratch directories.
	BaseDir string
	// Command is the toolchain binary, pdflatex unless configured otherwise.
	Command string
	// Timeout bounds the whole compilation (both passes together).
	Timeout time.Duration
}

type Compiler struct {
	baseDir string
	command string
	timeout time.Duration
	logger  *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Compiler, error) {
	if cfg.BaseDir == "" {
		cfg.BaseDir = filepath.Join(os.TempDir(), "cotex")
	}
	if cfg.Command == "" {
		cfg.Command = "pdflatex"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create latex base dir: %w", err)
	}
	return &Compiler{
		baseDir: cfg.BaseDir,
		command: cfg.Command,
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

// Compile writes mainContent as main.tex plus every aux file at its relative
// path, runs the toolchain, and returns the produced PDF bytes.
//
// The toolchain runs once, and a second time only if the first pass
// succeeded — the second pass resolves cross-references and citations.
// A zero exit with no PDF on disk is a failure, not a silent success.
func (c *Compiler) Compile(ctx context.Context, mainContent string, auxFiles map[string]string) ([]byte, error) {
	// Unpredictable per-invocation directory: concurrent compilations never
	// share scratch state, so no locking is needed.
	scratch, err := os.MkdirTemp(c.baseDir, "job-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			c.logger.Warn("failed to remove scratch dir",
				zap.String("dir", scratch), zap.Error(err))
		}
	}()

	if err := os.WriteFile(filepath.Join(scratch, "main.tex"), []byte(mainContent), 0o644); err != nil {
		return nil, fmt.Errorf("write main.tex: %w", err)
	}

	for name, content := range auxFiles {
		target, err := securePath(scratch, name)
		if err != nil {
			return nil, fmt.Errorf("aux file %q: %w", name, err)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, fmt.Errorf("create aux dir for %q: %w", name, err)
		}
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("write aux file %q: %w", name, err)
		}
	}

	// One wall-clock budget covers both passes.
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	log, err := c.run(runCtx, scratch)
	if err != nil {
		return nil, c.classify(runCtx, log, err)
	}

	// Second pass, only after a clean first pass.
	log, err = c.run(runCtx, scratch)
	if err != nil {
		return nil, c.classify(runCtx, log, err)
	}

	pdf, err := os.ReadFile(filepath.Join(scratch, "main.pdf"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &Error{Log: "toolchain exited cleanly but the PDF output was not produced"}
		}
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	c.logger.Info("compilation succeeded",
		zap.Int("pdf_bytes", len(pdf)),
		zap.Int("aux_files", len(auxFiles)),
	)
	return pdf, nil
}

func (c *Compiler) run(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, c.command, "-interaction=nonstopmode", "main.tex")
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	// pdflatex writes most diagnostics to stdout; keep both streams.
	log := stderr.String()
	if out := stdout.String(); out != "" {
		if log != "" {
			log += "\n"
		}
		log += out
	}
	return log, err
}

func (c *Compiler) classify(ctx context.Context, log string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		c.logger.Warn("compilation killed on timeout", zap.Duration("timeout", c.timeout))
		return ErrTimeout
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &Error{Log: log}
	}
	return fmt.Errorf("run %s: %w", c.command, err)
}

// securePath resolves an aux file name inside root, rejecting absolute paths
// and anything that climbs out via "..".
func securePath(root, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) {
		return "", ErrUnsafePath
	}
	clean := filepath.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrUnsafePath
	}
	return filepath.Join(root, clean), nil
}

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/joseph-ayodele/labreport/internal/common"
)

const (
	// DefaultMaxCommandOutput caps how much stdout a local OCR run may return.
	DefaultMaxCommandOutput = 4 << 20
	stderrTailBytes         = 8 << 10
)

// Command is one invocation of a local OCR binary.
type Command struct {
	Binary string
	Args   []string
	// Env entries are added on top of the current process environment.
	Env []string
}

// CommandRunner executes a Command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, c Command) ([]byte, error)
}

// ExecError is returned when the binary could not start or exited non-zero.
type ExecError struct {
	Binary string
	Stderr string
	Err    error
}

func (e *ExecError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", e.Binary, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Binary, e.Err, e.Stderr)
}

func (e *ExecError) Unwrap() error { return e.Err }

// hostRunner runs binaries on the local machine.
type hostRunner struct {
	maxOutput int
	logger    *slog.Logger
}

func newHostRunner(maxOutput int, logger *slog.Logger) hostRunner {
	if maxOutput <= 0 {
		maxOutput = DefaultMaxCommandOutput
	}
	return hostRunner{maxOutput: maxOutput, logger: logger}
}

func (r hostRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	rid := common.RequestIDFromContext(ctx)
	cmd := exec.CommandContext(ctx, c.Binary, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	stdout := &boundedBuffer{limit: r.maxOutput}
	stderr := &boundedBuffer{limit: stderrTailBytes}
	cmd.Stdout, cmd.Stderr = stdout, stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		ee := &ExecError{Binary: c.Binary, Stderr: strings.TrimSpace(stderr.String()), Err: err}
		r.logger.Error("ocr.command.failed", "req_id", rid, "binary", c.Binary, "elapsed_ms", elapsed, "error", ee)
		return nil, ee
	}
	if stdout.dropped > 0 {
		r.logger.Warn("ocr.command.output_capped", "req_id", rid, "binary", c.Binary, "dropped_bytes", stdout.dropped)
	}
	r.logger.Debug("ocr.command.ok", "req_id", rid, "binary", c.Binary, "elapsed_ms", elapsed, "stdout_bytes", stdout.Len())
	return stdout.Bytes(), nil
}

// boundedBuffer keeps the first limit bytes and counts the rest.
type boundedBuffer struct {
	bytes.Buffer
	limit   int
	dropped int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.Len()
	if room < 0 {
		room = 0
	}
	if len(p) > room {
		b.dropped += len(p) - room
		b.Buffer.Write(p[:room])
		return len(p), nil
	}
	return b.Buffer.Write(p)
}

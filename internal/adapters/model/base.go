package model

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/logging"
)

// Bounded stdio for spawned CLIs. An overflowing child is killed
// immediately rather than buffered without bound.
const (
	maxStdinBytes  = 2 << 20  // 2 MiB
	maxStdoutBytes = 10 << 20 // 10 MiB
)

// cliRunner executes a CLI child process without a shell, with a validated
// path, bounded stdio and process-group termination on cancel.
type cliRunner struct {
	name   string // provider key, for logging
	path   string // resolved absolute binary path
	logger *logging.Logger

	mu        sync.Mutex
	activeCmd *exec.Cmd
}

// newCLIRunner resolves and validates the binary path. A missing binary is
// a non-retryable construction failure.
func newCLIRunner(name, path string, logger *logging.Logger) (*cliRunner, error) {
	if path == "" {
		path = name
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, core.ErrValidation(core.CodeNoBinary,
			fmt.Sprintf("%s CLI not found at %q", name, path))
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &cliRunner{name: name, path: resolved, logger: logger}, nil
}

// commandResult holds the outcome of one CLI execution.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// boundedBuffer collects child stdout up to a limit, cancelling the command
// context when the limit is exceeded so the child dies immediately.
type boundedBuffer struct {
	buf      bytes.Buffer
	limit    int
	overflow bool
	kill     context.CancelFunc
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if b.buf.Len()+len(p) > b.limit {
		if !b.overflow {
			b.overflow = true
			b.kill()
		}
		// Report the bytes as consumed so the pipe drains while the kill
		// propagates.
		return len(p), nil
	}
	return b.buf.Write(p)
}

// run executes the CLI with the given args and stdin under the per-call
// timeout. Cancellation kills the whole process group and releases the
// pipes before the error is reported.
func (c *cliRunner) run(ctx context.Context, args []string, stdin string, timeout time.Duration) (*commandResult, error) {
	if len(stdin) > maxStdinBytes {
		return nil, &core.ModelError{
			Category: core.ErrCatValidation,
			Code:     core.CodeStdinOverflow,
			Message:  fmt.Sprintf("stdin %d bytes exceeds %d", len(stdin), maxStdinBytes),
		}
	}

	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// #nosec G204 -- path resolved via LookPath at construction; args are
	// engine-built, never shell-interpreted.
	cmd := exec.CommandContext(ctx, c.path, args...)
	configureProcAttr(cmd)
	cmd.Cancel = func() error { return terminateProcessGroup(cmd) }
	cmd.WaitDelay = 5 * time.Second

	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	stdout := &boundedBuffer{limit: maxStdoutBytes, kill: cancel}
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	cmd.Env = append(os.Environ(), "AGORA_MANAGED=true")

	c.logger.Debug("cli: executing",
		"adapter", c.name,
		"path", c.path,
		"args", args,
		"stdin_length", len(stdin),
		"timeout", timeout,
	)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, core.ErrTransport(fmt.Sprintf("starting %s: %v", c.name, err))
	}

	c.setActive(cmd)
	err := cmd.Wait()
	c.setActive(nil)

	result := &commandResult{
		Stdout:   stdout.buf.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if stdout.overflow {
		return result, &core.ModelError{
			Category: core.ErrCatTransport,
			Code:     core.CodeStdoutOverflow,
			Message:  fmt.Sprintf("%s stdout exceeded %d bytes, process killed", c.name, maxStdoutBytes),
		}
	}
	if ctx.Err() == context.DeadlineExceeded {
		return result, core.ErrTimeout(fmt.Sprintf("%s timed out after %v", c.name, timeout))
	}
	if ctx.Err() == context.Canceled {
		return result, core.ErrTimeout(fmt.Sprintf("%s cancelled", c.name)).WithCause(context.Canceled)
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, classifyCLIError(c.name, result)
		}
		return result, core.ErrTransport(fmt.Sprintf("executing %s: %v", c.name, err))
	}

	result.ExitCode = 0
	return result, nil
}

func (c *cliRunner) setActive(cmd *exec.Cmd) {
	c.mu.Lock()
	c.activeCmd = cmd
	c.mu.Unlock()
}

// ping verifies the binary still answers --version.
func (c *cliRunner) ping(ctx context.Context) error {
	_, err := c.run(ctx, []string{"--version"}, "", 15*time.Second)
	return err
}

// classifyCLIError maps a non-zero exit to the classified error set from
// stderr/stdout content.
func classifyCLIError(name string, result *commandResult) error {
	msg := strings.TrimSpace(result.Stderr)
	if msg == "" {
		msg = lastNonEmptyLine(result.Stdout)
	}
	if msg == "" {
		msg = "(no error output captured)"
	}
	lower := strings.ToLower(msg)

	if containsAny(lower, []string{"rate limit", "too many requests", "429", "quota"}) {
		return core.ErrRateLimit(msg, 0)
	}
	if containsAny(lower, []string{"unauthorized", "authentication", "api key", "credential"}) {
		return &core.ModelError{
			Category: core.ErrCatValidation,
			Code:     core.CodeNoCredential,
			Message:  msg,
		}
	}
	if containsAny(lower, []string{"connection", "network", "unreachable", "tls"}) {
		return core.ErrTransport(msg)
	}
	return core.ErrTransport(fmt.Sprintf("%s exited %d: %s", name, result.ExitCode, msg))
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			if len(line) > 200 {
				return line[:200] + "..."
			}
			return line
		}
	}
	return ""
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// estimateTokens approximates token counts at 4 characters per token.
func estimateTokens(text string) int {
	return len(text) / 4
}

// estimatedUsage builds an estimated usage record from prompt and
// completion text.
func estimatedUsage(prompt, completion string) core.TokenUsage {
	p, c := estimateTokens(prompt), estimateTokens(completion)
	return core.TokenUsage{Prompt: p, Completion: c, Total: p + c, Estimated: true}
}

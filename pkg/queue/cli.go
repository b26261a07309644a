package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// DefaultCommandTimeout bounds one batch of CLI commands. Zero disables
// the limit.
const DefaultCommandTimeout = 600 * time.Second

// CommandPayload is the task payload shape the CLI strategy understands: a
// list of shell command strings to run in order.
type CommandPayload struct {
	Commands []string `json:"commands"`
}

// CommandRunner is the Executor behind CLI queues. Instead of handing the
// task to the generic execution engine it runs the payload's command list,
// each command checked against an allow-list of patterns before anything
// is started. Combined with SyncStrategy it gives the full enqueue /
// reserve / verify / save lifecycle around shell work.
type CommandRunner struct {
	allowed     []*regexp.Regexp
	passthrough []*regexp.Regexp
	env         map[string]string
	timeout     time.Duration
	logger      *slog.Logger
}

// NewCommandRunner compiles the configured allow-list patterns and builds
// the runner. A queue with no allowed patterns rejects every command.
func NewCommandRunner(opts ...CommandRunnerOption) (*CommandRunner, error) {
	options := &commandRunnerOptions{
		timeout: DefaultCommandTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	allowed, err := compilePatterns(options.allowedCommands)
	if err != nil {
		return nil, fmt.Errorf("invalid command pattern: %w", err)
	}
	passthrough, err := compilePatterns(options.envPassthrough)
	if err != nil {
		return nil, fmt.Errorf("invalid environment pattern: %w", err)
	}

	return &CommandRunner{
		allowed:     allowed,
		passthrough: passthrough,
		env:         options.env,
		timeout:     options.timeout,
		logger:      options.logger,
	}, nil
}

// Execute runs the task's command list and concatenates stdout and stderr
// of all commands into the result message. The allow-list is enforced for
// the whole batch before the first command starts: one rejected command
// means no partial execution.
func (r *CommandRunner) Execute(ctx context.Context, task *Task) (Result, error) {
	var payload CommandPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		// Bare array payloads are accepted too.
		if aerr := json.Unmarshal(task.Payload, &payload.Commands); aerr != nil {
			return nil, fmt.Errorf("cli task payload is not a command list: %w", err)
		}
	}

	for _, cmd := range payload.Commands {
		if !r.commandAllowed(cmd) {
			return nil, fmt.Errorf("%w: %q", ErrCommandNotAllowed, cmd)
		}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	env := r.mergedEnv()

	var output strings.Builder
	for _, cmdline := range payload.Commands {
		r.logger.DebugContext(ctx, "running command", slog.String("command", cmdline))

		cmd := exec.CommandContext(ctx, "sh", "-c", cmdline)
		cmd.Env = env

		out, err := cmd.CombinedOutput()
		output.Write(out)
		if err != nil {
			return nil, fmt.Errorf("command %q failed: %w; output: %s", cmdline, err, output.String())
		}
	}

	return NewResult(output.String(), 0), nil
}

func (r *CommandRunner) commandAllowed(cmdline string) bool {
	for _, pattern := range r.allowed {
		if pattern.MatchString(cmdline) {
			return true
		}
	}
	return false
}

// mergedEnv filters the inherited OS environment through the passthrough
// allow-list, then overlays the explicit pairs. Explicit values may
// reference other variables as ${NAME}; references resolve against the
// merged set, unknown names expand to empty.
func (r *CommandRunner) mergedEnv() []string {
	merged := make(map[string]string)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		for _, pattern := range r.passthrough {
			if pattern.MatchString(name) {
				merged[name] = value
				break
			}
		}
	}

	for name, value := range r.env {
		merged[name] = os.Expand(value, func(ref string) string {
			return merged[ref]
		})
	}

	env := make([]string, 0, len(merged))
	for name, value := range merged {
		env = append(env, name+"="+value)
	}
	return env
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

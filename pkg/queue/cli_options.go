package queue

import (
	"log/slog"
	"time"
)

// CommandRunnerOption is a functional option for configuring a CommandRunner.
type CommandRunnerOption func(*commandRunnerOptions)

type commandRunnerOptions struct {
	allowedCommands []string
	envPassthrough  []string
	env             map[string]string
	timeout         time.Duration
	logger          *slog.Logger
}

// WithAllowedCommands sets the regex patterns a command must match to be
// executed. No patterns means every command is rejected.
func WithAllowedCommands(patterns ...string) CommandRunnerOption {
	return func(o *commandRunnerOptions) {
		o.allowedCommands = patterns
	}
}

// WithEnvPassthrough sets regex patterns selecting which inherited OS
// environment variables the commands see.
func WithEnvPassthrough(patterns ...string) CommandRunnerOption {
	return func(o *commandRunnerOptions) {
		o.envPassthrough = patterns
	}
}

// WithEnv sets explicit environment pairs for the commands. Values may
// reference other variables as ${NAME}.
func WithEnv(env map[string]string) CommandRunnerOption {
	return func(o *commandRunnerOptions) {
		o.env = env
	}
}

// WithCommandTimeout bounds the whole command batch. Zero disables the
// limit.
func WithCommandTimeout(timeout time.Duration) CommandRunnerOption {
	return func(o *commandRunnerOptions) {
		if timeout >= 0 {
			o.timeout = timeout
		}
	}
}

// WithCommandLogger sets the runner's logger.
func WithCommandLogger(logger *slog.Logger) CommandRunnerOption {
	return func(o *commandRunnerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

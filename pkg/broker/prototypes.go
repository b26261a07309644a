package broker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/queueworks/taskbroker/pkg/queue"
)

// Prototype identifiers for the built-in queue types.
const (
	PrototypeSync   = "sync"
	PrototypeAsync  = "async"
	PrototypeSilent = "silent"
	PrototypeCli    = "cli"
)

// Deps carries the collaborators a factory wires into every queue it
// builds.
type Deps struct {
	Store    queue.RecordStore
	Executor queue.Executor
	Logger   *slog.Logger
}

// Factory builds a queue from its definition. The registry resolves the
// definition's prototype string to a factory at load time, so an unknown
// prototype fails at startup rather than at first use.
type Factory func(def Definition, deps Deps) (*queue.Queue, error)

// Prototypes returns the built-in prototype-to-factory map. Callers may
// add their own entries before constructing the registry.
func Prototypes() map[string]Factory {
	return map[string]Factory{
		PrototypeSync: func(def Definition, deps Deps) (*queue.Queue, error) {
			return buildQueue(def, deps, deps.Executor, queue.SyncStrategy{})
		},
		PrototypeAsync: func(def Definition, deps Deps) (*queue.Queue, error) {
			return buildQueue(def, deps, deps.Executor, queue.AsyncStrategy{})
		},
		PrototypeSilent: func(def Definition, deps Deps) (*queue.Queue, error) {
			settings, err := parseSettings(def)
			if err != nil {
				return nil, err
			}
			return buildQueue(def, deps, deps.Executor, queue.SilentStrategy{
				SkipIfRunning: settings.SkipIfAlreadyRunning,
			})
		},
		PrototypeCli: func(def Definition, deps Deps) (*queue.Queue, error) {
			settings, err := parseSettings(def)
			if err != nil {
				return nil, err
			}
			runner, err := queue.NewCommandRunner(
				queue.WithAllowedCommands(settings.AllowedCommands...),
				queue.WithEnvPassthrough(settings.EnvPassthrough...),
				queue.WithEnv(settings.Env),
				queue.WithCommandTimeout(settings.commandTimeout()),
				queue.WithCommandLogger(deps.Logger),
			)
			if err != nil {
				return nil, fmt.Errorf("queue %q: %w", def.Alias, err)
			}
			return buildQueue(def, deps, runner, queue.SyncStrategy{})
		},
	}
}

// Settings is the strategy-specific configuration blob stored on a queue
// definition. Fields irrelevant to a given prototype are ignored.
type Settings struct {
	// RetentionDays overrides how long finished records are kept before
	// CleanUp removes them.
	RetentionDays int `json:"retention_days,omitempty"`

	// ErrorLogLevel overrides the severity failed runs are logged at:
	// debug, info, warn, or error.
	ErrorLogLevel string `json:"error_log_level,omitempty"`

	// SkipIfAlreadyRunning makes a silent queue skip execution while an
	// equal task is in flight.
	SkipIfAlreadyRunning bool `json:"skip_if_already_running,omitempty"`

	// AllowedCommands are the regex patterns a CLI command must match.
	AllowedCommands []string `json:"allowed_commands,omitempty"`

	// EnvPassthrough selects which inherited OS variables CLI commands see.
	EnvPassthrough []string `json:"env_passthrough,omitempty"`

	// Env sets explicit environment pairs for CLI commands; values may
	// reference other variables as ${NAME}.
	Env map[string]string `json:"env,omitempty"`

	// TimeoutSeconds bounds one CLI command batch. Zero keeps the default
	// of 600 seconds; negative disables the limit.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

func (s Settings) commandTimeout() time.Duration {
	switch {
	case s.TimeoutSeconds > 0:
		return time.Duration(s.TimeoutSeconds) * time.Second
	case s.TimeoutSeconds < 0:
		return 0
	}
	return queue.DefaultCommandTimeout
}

func (s Settings) retention() time.Duration {
	if s.RetentionDays > 0 {
		return time.Duration(s.RetentionDays) * 24 * time.Hour
	}
	return queue.DefaultRetention
}

func (s Settings) errorLevel() slog.Level {
	switch s.ErrorLogLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	}
	return slog.LevelError
}

func parseSettings(def Definition) (Settings, error) {
	var settings Settings
	if len(def.Config) == 0 {
		return settings, nil
	}
	if err := json.Unmarshal(def.Config, &settings); err != nil {
		return settings, fmt.Errorf("invalid config blob on queue %q: %w", def.Alias, err)
	}
	return settings, nil
}

func buildQueue(def Definition, deps Deps, exec queue.Executor, strategy queue.Strategy) (*queue.Queue, error) {
	settings, err := parseSettings(def)
	if err != nil {
		return nil, err
	}

	return queue.New(def.UID, deps.Store, exec, strategy,
		queue.WithQueueAlias(def.Alias),
		queue.WithTopicRule(def.Rule()),
		queue.WithAllowMultiHandling(def.AllowMultiHandling),
		queue.WithQueueUniqueMessageIDs(def.RequiresUniqueMessageIDs()),
		queue.WithQueueRetention(settings.retention()),
		queue.WithLogger(deps.Logger),
		queue.WithErrorLogLevel(settings.errorLevel()),
	)
}

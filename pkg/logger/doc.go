// Package logger builds configured slog.Logger instances for the rest of
// the module. All packages accept an injected *slog.Logger and fall back
// to slog.Default(); this factory is how an embedding application builds
// the one it injects.
package logger

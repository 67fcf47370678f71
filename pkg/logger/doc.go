// Package logger provides structured logging with configurable log levels.
// It wraps the standard log/slog package: text output for development and
// staging, JSON output in production.
package logger

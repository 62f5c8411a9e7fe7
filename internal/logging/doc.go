// Package logging configures structured slog logging for docrag.
//
// Logs are JSON lines written to a size-rotated file under ~/.docrag/logs/,
// optionally teed to stderr. Commands that speak a protocol on stdout (serve)
// must log to the file only.
package logging

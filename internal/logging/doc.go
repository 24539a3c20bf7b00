// Package logging provides structured, file-based logging with rotation
// for corpuscore. Logs are emitted as JSON via log/slog so they can be
// tailed and filtered by level or pattern with Viewer.
package logging

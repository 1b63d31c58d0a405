// Package common provides centralized logging infrastructure for the NoteBase services.
// This package implements log output routing that automatically directs error
// messages to stderr while sending other log levels to stdout, enabling proper
// stream separation for containerized and scripted environments.
//
// The logging system is built on logrus for structured logging capabilities with
// custom output handling that supports both development workflows and production
// deployment patterns. It provides a foundation for consistent logging across
// the API server and the indexing worker.
//
// Key Features:
//   - Automatic output stream routing based on log level
//   - Structured logging with JSON and text format support
//   - Container-friendly output separation for log aggregation
//   - Global logger instance for consistent usage patterns
//
// Output Routing Strategy:
//
//	Error-level messages are directed to stderr (for immediate attention and
//	error handling) while info, debug, and warning messages go to stdout
//	(for general log processing).
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter implements log output routing based on log content analysis.
// This custom writer examines log messages and directs them to the appropriate
// output stream (stdout vs stderr) based on their severity level.
//
// Routing Logic:
//
//	The splitter analyzes each log message for error indicators and routes
//	them accordingly:
//	- Error messages (containing "level=error") → stderr
//	- All other messages (info, debug, warn) → stdout
//
// Stream Separation Benefits:
//   - Monitoring systems can treat error streams with higher priority
//   - Container orchestrators can route error streams to alerting systems
//   - Log aggregation tools can apply different processing rules per stream
//   - Shell scripts can capture and handle error output separately
//
// Integration with Logrus:
//
//	Works with all logrus formatters including JSON and text formats. The
//	splitter operates on the final formatted output.
type OutputSplitter struct{}

// Write implements the io.Writer interface for the OutputSplitter.
// It examines the byte content for the literal string "level=error" which is
// produced by logrus when formatting error-level log entries, routing matches
// to stderr and everything else to stdout.
//
// The method is safe for concurrent use as it only performs read operations on
// the input data and writes to thread-safe OS streams.
func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger provides the global logger instance for the NoteBase services.
// This logger is pre-configured with the OutputSplitter for stream routing and
// serves as the central logging facility for the API server, the indexing
// worker, and the reconciler.
//
// Usage Patterns:
//
//	// Simple logging
//	Logger.Info("Service started")
//	Logger.Error("Database connection failed")
//
//	// Structured logging with fields
//	Logger.WithFields(logrus.Fields{
//	    "owner_id":    ownerID,
//	    "document_id": documentID,
//	}).Info("Document indexed")
//
//	// Error logging with context
//	Logger.WithError(err).Error("Failed to process event")
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}

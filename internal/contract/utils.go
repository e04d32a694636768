package contract

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/huangsam/digitaldiary/schema"
)

// Color variables for console output.
var (
	ActiveColor     = color.New(color.FgGreen, color.Bold) // ActiveColor marks the controlling worker.
	WaitingColor    = color.New(color.FgYellow)            // WaitingColor marks a worker pending activation.
	TransientColor  = color.New(color.FgCyan)              // TransientColor marks installing/activating.
	RedundantColor  = color.New(color.FgRed, color.Bold)   // RedundantColor marks failed or replaced workers.
	InfoPrefixColor = color.New(color.FgBlue)
)

// logOutput is where the Log helpers write. Tests may swap it.
var logOutput io.Writer = os.Stderr

// SetLogOutput redirects the Log helpers and returns the previous writer.
func SetLogOutput(w io.Writer) io.Writer {
	prev := logOutput
	logOutput = w
	return prev
}

// GetColorState returns a colored label for a worker state.
func GetColorState(state schema.WorkerState) string {
	text := string(state)
	switch state {
	case schema.StateActive:
		return ActiveColor.Sprint(text)
	case schema.StateWaiting:
		return WaitingColor.Sprint(text)
	case schema.StateRedundant:
		return RedundantColor.Sprint(text)
	default:
		return TransientColor.Sprint(text)
	}
}

// SelectOutputFile returns the appropriate file handle for output, based on the provided
// file path. An empty path means os.Stdout.
func SelectOutputFile(filePath string) (*os.File, error) {
	if filePath == "" {
		return os.Stdout, nil
	}
	return os.Create(filePath)
}

// LogFatal logs an error and exits the program.
func LogFatal(msg string, err error) {
	_, _ = fmt.Fprintf(logOutput, "Fatal %s: %v\n", msg, err)
	os.Exit(1)
}

// LogWarn logs a warning message.
func LogWarn(msg string, err error) {
	_, _ = fmt.Fprintf(logOutput, "Warn %s: %v\n", msg, err)
}

// LogInfo logs an informational message.
func LogInfo(format string, args ...any) {
	_, _ = fmt.Fprintf(logOutput, "%s %s\n", InfoPrefixColor.Sprint("Info"), fmt.Sprintf(format, args...))
}

// GetCacheDBFilePath returns the path to the SQLite DB file for cache storage.
func GetCacheDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".diary_cache.db"
	}
	return filepath.Join(homeDir, ".diary_cache.db")
}

// Package logging builds the arbor loggers shared by the command and its
// components.
package logging

import (
	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
	"github.com/ternarybob/arbor/writers"
)

// New returns a console logger at the given level (debug, info, warn, error).
func New(level string) arbor.ILogger {
	return arbor.NewLogger().WithConsoleWriter(models.WriterConfiguration{
		Type:             models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString(level)
}

// Discard returns a logger that drops every event. It owns a private writer
// list, so it never falls through to the globally registered writers.
func Discard() arbor.ILogger {
	return arbor.NewLogger().WithWriters([]writers.IWriter{discardWriter{}})
}

type discardWriter struct{}

func (w discardWriter) WithLevel(log.Level) writers.IWriter { return w }
func (discardWriter) Write(p []byte) (int, error)           { return len(p), nil }
func (discardWriter) GetFilePath() string                    { return "" }
func (discardWriter) Close() error                           { return nil }

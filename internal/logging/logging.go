// Package logging builds the process logger. Without a file everything goes
// to the given writer; with one, output is also written to a size-rotated
// file.
package logging

import (
	"io"
	"log"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/san-kum/segway/internal/config"
)

const flags = log.LstdFlags | log.Lmicroseconds

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger writing to w and, when cfg names a file, to that file.
// The closer releases the file.
func New(cfg config.LogConfig, w io.Writer, prefix string) (*log.Logger, io.Closer) {
	if cfg.File == "" {
		return log.New(w, prefix, flags), nopCloser{}
	}
	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return log.New(io.MultiWriter(w, file), prefix, flags), file
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

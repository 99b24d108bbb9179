package main

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"gortlbridge/shared"
)

// setupLogging applies the level and, when a log file is configured, tees
// the output into a size-rotated file. The returned closer flushes the file.
func setupLogging(cfg shared.LogConfig, out io.Writer) (io.Closer, error) {
	lvl, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(lvl)
	log.SetReportTimestamp(true)
	log.SetTimeFormat(time.DateTime)

	if cfg.File == "" {
		log.SetOutput(out)
		return nopCloser{}, nil
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(out, file))
	return file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

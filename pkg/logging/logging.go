package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how verbosely a process logs.
type Config struct {
	Dir        string
	File       string
	Level      string
	MaxSizeMB  int
	MaxBackups int
}

// New returns a logger writing to stdout and to a size-rotated file under cfg.Dir.
// An empty Dir disables the file output.
func New(cfg Config) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
		DisableColors:   true,
	})

	var out io.Writer = os.Stdout
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("log dir: %w", err)
		}
		name := cfg.File
		if name == "" {
			name = "scraper.log"
		}
		maxSize, backups := cfg.MaxSizeMB, cfg.MaxBackups
		if maxSize <= 0 {
			maxSize = 1
		}
		if backups <= 0 {
			backups = 5
		}
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, name),
			MaxSize:    maxSize,
			MaxBackups: backups,
		})
	}
	logger.SetOutput(out)
	return logger, nil
}

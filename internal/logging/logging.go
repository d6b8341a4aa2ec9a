// Package logging builds the process logger from the [logging] section.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caffeineduck/wasmlab/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a sugared logger configured by c. Directories of file output
// paths are created.
func New(c config.Logging) (*zap.SugaredLogger, error) {
	zc, err := zapConfig(c)
	if err != nil {
		return nil, err
	}
	if err := ensureLogFolders(zc.OutputPaths); err != nil {
		return nil, err
	}
	l, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l.Sugar(), nil
}

func zapConfig(c config.Logging) (zap.Config, error) {
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}

	if c.Level != "" {
		level, err := zap.ParseAtomicLevel(c.Level)
		if err != nil {
			return zap.Config{}, fmt.Errorf("logging level: %w", err)
		}
		zc.Level = level
	}
	switch c.Encoding {
	case "":
	case "json", "console":
		zc.Encoding = c.Encoding
	default:
		return zap.Config{}, fmt.Errorf("logging encoding %q: use json or console", c.Encoding)
	}
	if zc.Encoding == "console" {
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if len(c.OutputPaths) > 0 {
		zc.OutputPaths = c.OutputPaths
	}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc, nil
}

func ensureLogFolders(paths []string) error {
	for _, p := range paths {
		if p == "stdout" || p == "stderr" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("creating logging directory: %w", err)
		}
	}
	return nil
}

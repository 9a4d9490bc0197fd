// Package logging builds the process logger: a terminal-format handler
// writing to a size-rotated file and, optionally, to the console.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"example.org/recorderd"
)

// LevelOff is above every level a logger emits.
const LevelOff = log.LevelCrit + 1

// ParseLevel maps off, error, warn, info, debug and trace. Anything else is
// treated as error.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off":
		return LevelOff
	case "warn":
		return log.LevelWarn
	case "info":
		return log.LevelInfo
	case "debug":
		return log.LevelDebug
	case "trace":
		return log.LevelTrace
	}
	return log.LevelError
}

// New opens the rotating log file in config.Directory, which must already
// exist. The returned closer closes the file.
func New(config recorderd.LoggingConfig, console io.Writer) (log.Logger, io.Closer, error) {
	info, err := os.Stat(config.Directory)
	if err != nil || !info.IsDir() {
		return nil, nil, fmt.Errorf("logging directory: %s does not exist", config.Directory)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(config.Directory, config.File),
		MaxSize:    megabytes(config.Size),
		MaxBackups: config.Count,
	}
	var w io.Writer = file
	if config.Console && console != nil {
		w = io.MultiWriter(console, file)
	}
	handler := log.NewTerminalHandlerWithLevel(w, ParseLevel(config.Level), false)
	return log.NewLogger(handler), file, nil
}

// megabytes converts a byte limit to lumberjack's unit, rounding up.
func megabytes(size int64) int {
	const mb = 1 << 20
	if size <= 0 {
		return 1
	}
	return int((size + mb - 1) / mb)
}

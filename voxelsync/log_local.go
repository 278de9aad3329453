package voxelsync

import (
	"fmt"
	"log"

	"github.com/natefinch/lumberjack"
)

type stdLogger struct {
	*lumberjack.Logger
}

var logger Logger = stdLogger{}

// LogConfig configures the local rotating log file.
type LogConfig struct {
	Logfile string
	MaxSize int `toml:"max_log_size"`
	MaxAge  int `toml:"max_log_age"`
}

// SetLogger routes log messages to a rotating log file.  If no log file is
// specified, messages go to stdout via the standard log package.
func (c *LogConfig) SetLogger() {
	if c == nil || c.Logfile == "" {
		Infof("Sending log messages to stdout since no log file specified.")
		return
	}
	fmt.Printf("Sending log messages to: %s\n", c.Logfile)
	l := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize, // megabytes
		MaxAge:   c.MaxAge,  // days
	}
	log.SetOutput(l)
	logger = stdLogger{l}
}

// SetCustomLogger installs a caller-supplied Logger, e.g. to route engine
// logs into a host application's own logging system.
func SetCustomLogger(l Logger) {
	if l != nil {
		logger = l
	}
}

// Shutdown flushes and closes the current log sink.
func Shutdown() {
	logger.Shutdown()
}

// --- Logger implementation ----

func (slog stdLogger) printf(level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if slog.Logger != nil {
		slog.Write([]byte(" " + level + " " + msg))
	} else {
		log.Printf("%s", " "+level+" "+msg)
	}
}

func (slog stdLogger) Debugf(format string, args ...interface{}) {
	slog.printf("DEBUG", format, args...)
}

func (slog stdLogger) Infof(format string, args ...interface{}) {
	slog.printf("INFO", format, args...)
}

func (slog stdLogger) Warningf(format string, args ...interface{}) {
	slog.printf("WARNING", format, args...)
}

func (slog stdLogger) Errorf(format string, args ...interface{}) {
	slog.printf("ERROR", format, args...)
}

func (slog stdLogger) Criticalf(format string, args ...interface{}) {
	slog.printf("CRITICAL", format, args...)
}

func (slog stdLogger) Shutdown() {
	if slog.Logger != nil {
		slog.Close()
	}
}

package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build flag for debug mode - can be overridden at build time
// go build -ldflags "-X github.com/standardbeagle/tmxmatch/internal/debug.EnableDebug=true"
var EnableDebug = "false"

// MCPMode tracks if we're running as an MCP stdio server (set by main)
var MCPMode = false

var (
	loggerMu  sync.Mutex
	base      *zap.Logger // nil until first use or SetLogger
	debugFile *os.File
)

// SetMCPMode enables MCP mode which keeps log output off the protocol streams
func SetMCPMode(enabled bool) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	MCPMode = enabled
	if debugFile == nil {
		base = nil
	}
}

// IsDebugEnabled returns true if debug mode is enabled
func IsDebugEnabled() bool {
	if EnableDebug == "true" {
		return true
	}
	return os.Getenv("DEBUG") == "1" || os.Getenv("DEBUG") == "true"
}

// SetLogger installs the root logger used by every component.
// Pass nil to fall back to environment-driven defaults.
func SetLogger(l *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	base = l
}

// Logger returns a logger named after the component
func Logger(component string) *zap.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if base == nil {
		base = defaultLogger()
	}
	return base.Named(component)
}

func defaultLogger() *zap.Logger {
	// stdio carries the protocol in MCP mode, so only a log file may receive output
	if !IsDebugEnabled() || MCPMode {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// InitDebugLogFile routes all component loggers to a timestamped file.
// Returns the path to the log file. Call CloseDebugLog when done.
func InitDebugLogFile() (string, error) {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	logDir := filepath.Join(os.TempDir(), "tmxmatch-debug-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create debug log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02T150405")
	logPath := filepath.Join(logDir, fmt.Sprintf("debug-%s.log", timestamp))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create debug log file: %w", err)
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(file),
		zapcore.DebugLevel,
	)
	debugFile = file
	base = zap.New(core)
	return logPath, nil
}

// CloseDebugLog closes the debug log file if one is open.
func CloseDebugLog() error {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if debugFile == nil {
		return nil
	}
	if base != nil {
		_ = base.Sync()
	}
	err := debugFile.Close()
	debugFile = nil
	base = nil
	return err
}

// Fatal logs a catastrophic error and returns it instead of exiting.
func Fatal(component, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	Logger(component).Error("fatal", zap.String("detail", msg))
	return fmt.Errorf("fatal error: %s", msg)
}

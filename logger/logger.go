package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	MaxLogDirSize = 10 * 1024 * 1024 // 10MB
	LogFileName   = "blandpanel.log"
)

var (
	logFile     = &fileWriter{}
	logDir      string
	mu          sync.Mutex
	initialized bool
	stopCheck   chan struct{}

	console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05.000"}
	base    = newLogger(console)

	maxLogDirSize int64 = MaxLogDirSize
)

// fileWriter is the file half of the log output. Loggers keep a reference
// to it, so rotation swaps the file underneath instead of rebuilding them.
type fileWriter struct {
	mu sync.Mutex
	f  *os.File
}

func (w *fileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return len(p), nil
	}
	return w.f.Write(p)
}

// swap installs f and returns the previous file for the caller to close
func (w *fileWriter) swap(f *os.File) *os.File {
	w.mu.Lock()
	defer w.mu.Unlock()
	old := w.f
	w.f = f
	return old
}

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger().Level(currentLevel())
}

func currentLevel() zerolog.Level {
	if debugEnabled {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

var debugEnabled bool

// SetDebug toggles debug output (command / response traces)
func SetDebug(on bool) {
	mu.Lock()
	defer mu.Unlock()
	debugEnabled = on
	base = base.Level(currentLevel())
}

// SetOutput redirects log output, used by tests
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base = newLogger(w)
}

func current() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return base
}

// Init initializes the logger with a log directory
func Init(dir string) error {
	mu.Lock()
	defer mu.Unlock()

	if initialized {
		return nil
	}

	logDir = dir

	// Create log directory if it doesn't exist
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := openLogFile(os.O_APPEND)
	if err != nil {
		return err
	}
	logFile.swap(file)
	base = newLogger(zerolog.MultiLevelWriter(console, logFile))

	initialized = true
	stopCheck = make(chan struct{})

	// Check log directory size on startup
	go checkAndRotate()

	// Start periodic size check
	go periodicSizeCheck(stopCheck)

	base.Info().Msg("Logger initialized")
	return nil
}

func openLogFile(flag int) (*os.File, error) {
	logPath := filepath.Join(logDir, LogFileName)
	file, err := os.OpenFile(logPath, flag|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

// Close closes the log file
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if stopCheck != nil {
		close(stopCheck)
		stopCheck = nil
	}
	if old := logFile.swap(nil); old != nil {
		old.Close()
	}
	base = newLogger(console)
	initialized = false
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	l := current()
	l.Info().Msgf(format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	l := current()
	l.Error().Msgf(format, args...)
}

// Debug logs a debug message
func Debug(format string, args ...interface{}) {
	l := current()
	l.Debug().Msgf(format, args...)
}

// Exchange logs one command/reply pair with its outcome
func Exchange(command, reply, status string) {
	l := current()
	l.Debug().Str("cmd", command).Str("reply", reply).Str("status", status).Msg("exchange")
}

// Protocol logs protocol-level events
func Protocol(direction, event string, data []byte) {
	l := current()
	ev := l.Debug().Str("dir", direction).Str("event", event)
	if len(data) > 100 {
		ev.Int("data_len", len(data)).Hex("first_100", data[:100]).Msg("proto")
	} else {
		ev.Bytes("data", data).Msg("proto")
	}
}

// checkAndRotate checks directory size and rotates if necessary
func checkAndRotate() {
	mu.Lock()
	defer mu.Unlock()

	if !initialized {
		return
	}

	size, err := getDirSize(logDir)
	if err != nil {
		base.Error().Err(err).Msg("[LOGGER] error checking directory size")
		return
	}

	if size > maxLogDirSize {
		rotateOldLogs()
	}
}

// getDirSize calculates total size of files in directory
func getDirSize(dir string) (int64, error) {
	var size int64
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		size += info.Size()
	}
	return size, nil
}

// rotateOldLogs removes old log files when directory exceeds size limit.
// Caller holds mu.
func rotateOldLogs() {
	currentLogPath := filepath.Join(logDir, LogFileName)

	entries, err := os.ReadDir(logDir)
	if err != nil {
		base.Error().Err(err).Msg("[LOGGER] error reading log directory")
		return
	}

	// Remove old archived logs first (keep current log)
	for _, entry := range entries {
		if entry.Name() == LogFileName || entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(logDir, entry.Name())); err != nil {
			base.Error().Err(err).Str("file", entry.Name()).Msg("[LOGGER] error removing old log")
		} else {
			base.Info().Str("file", entry.Name()).Msg("[LOGGER] removed old log")
		}
	}

	size, _ := getDirSize(logDir)
	if size <= maxLogDirSize {
		return
	}

	// Current log is still too big, archive and truncate
	archiveName := fmt.Sprintf("blandpanel.%s.log", time.Now().Format("20060102-150405"))
	archivePath := filepath.Join(logDir, archiveName)

	// the old file stays open until the new one is swapped in
	os.Rename(currentLogPath, archivePath)

	file, err := openLogFile(os.O_TRUNC)
	if err != nil {
		if old := logFile.swap(nil); old != nil {
			old.Close()
		}
		base.Error().Err(err).Msg("[LOGGER] error creating new log file")
		return
	}
	if old := logFile.swap(file); old != nil {
		old.Close()
	}

	// Remove archive immediately if still over limit
	os.Remove(archivePath)

	base.Info().Msg("[LOGGER] log rotated and cleaned")
}

// periodicSizeCheck checks log directory size every hour
func periodicSizeCheck(stop <-chan struct{}) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			checkAndRotate()
		}
	}
}

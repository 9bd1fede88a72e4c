package ulogger

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// TestLogger discards everything.
type TestLogger struct{}

func (l TestLogger) LogLevel() int { return 0 }
func (l TestLogger) SetLogLevel(string) {}
func (l TestLogger) Debugf(string, ...interface{}) {}
func (l TestLogger) Infof(string, ...interface{}) {}
func (l TestLogger) Warnf(string, ...interface{}) {}
func (l TestLogger) Errorf(string, ...interface{}) {}
func (l TestLogger) Fatalf(string, ...interface{}) {}
func (l TestLogger) New(string, ...Option) Logger { return l }
func (l TestLogger) Duplicate(...Option) Logger { return l }

type TestingT interface {
	Errorf(format string, args ...interface{})
	FailNow()
	Logf(format string, args ...any)
}

type tHelper = interface {
	Helper()
}

// VerboseTestLogger forwards every line to t.Logf.
type VerboseTestLogger struct {
	t     TestingT
	mutex sync.Mutex
}

func NewVerboseTestLogger(t TestingT) *VerboseTestLogger {
	return &VerboseTestLogger{t: t}
}

func (l *VerboseTestLogger) LogLevel() int {
	return 0
}

func (l *VerboseTestLogger) SetLogLevel(level string) {}

func (l *VerboseTestLogger) New(service string, options ...Option) Logger {
	return l
}

func (l *VerboseTestLogger) Duplicate(options ...Option) Logger {
	return l
}

func (l *VerboseTestLogger) Debugf(format string, args ...interface{}) {
	l.logf("[DEBUG] "+format, args...)
}

func (l *VerboseTestLogger) Infof(format string, args ...interface{}) {
	l.logf("[INFO] "+format, args...)
}

func (l *VerboseTestLogger) Warnf(format string, args ...interface{}) {
	l.logf("[WARN] "+format, args...)
}

func (l *VerboseTestLogger) Errorf(format string, args ...interface{}) {
	l.logf("[ERROR] "+format, args...)
}

func (l *VerboseTestLogger) Fatalf(format string, args ...interface{}) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.t.Logf("[FATAL] "+format, args...)
	l.t.FailNow()
}

func (l *VerboseTestLogger) logf(format string, args ...interface{}) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.t.Logf(format, args...)
}

// ErrorTestLogger is silent below error level and counts Errorf calls, so tests can
// assert that a code path logged (or did not log) an error.
type ErrorTestLogger struct {
	t        TestingT
	errors   atomic.Int64
	shutdown atomic.Bool
}

func NewErrorTestLogger(t TestingT) *ErrorTestLogger {
	return &ErrorTestLogger{t: t}
}

// Shutdown prevents further access to testing.T once the test is cleaning up.
func (l *ErrorTestLogger) Shutdown() {
	l.shutdown.Store(true)
}

// ErrorCount returns the number of Errorf calls so far.
func (l *ErrorTestLogger) ErrorCount() int64 {
	return l.errors.Load()
}

func (l *ErrorTestLogger) LogLevel() int {
	return 0
}

func (l *ErrorTestLogger) SetLogLevel(level string) {}

func (l *ErrorTestLogger) New(service string, options ...Option) Logger {
	return l
}

func (l *ErrorTestLogger) Duplicate(options ...Option) Logger {
	return l
}

func (l *ErrorTestLogger) Debugf(format string, args ...interface{}) {}

func (l *ErrorTestLogger) Infof(format string, args ...interface{}) {}

func (l *ErrorTestLogger) Warnf(format string, args ...interface{}) {}

func (l *ErrorTestLogger) Errorf(format string, args ...interface{}) {
	l.errors.Add(1)

	if l.shutdown.Load() {
		return
	}

	if h, ok := l.t.(tHelper); ok {
		h.Helper()
	}

	_, file, line, _ := runtime.Caller(1)

	l.t.Logf(fmt.Sprintf("%s:%d: ERR_LEVEL %s", file, line, format), args...)
}

func (l *ErrorTestLogger) Fatalf(format string, args ...interface{}) {
	if l.shutdown.Load() {
		return
	}

	if h, ok := l.t.(tHelper); ok {
		h.Helper()
	}

	l.t.Logf("FATAL_LEVEL "+format, args...)
	l.t.FailNow()
}

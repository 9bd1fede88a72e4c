package ulogger_test

import (
	"bytes"
	"testing"

	"github.com/bsv-blockchain/addressindex/ulogger"
	"github.com/ordishs/gocore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroLoggerWritesToWriter(t *testing.T) {
	var buf bytes.Buffer

	logger := ulogger.NewZeroLogger("addrtest", ulogger.WithWriter(&buf), ulogger.WithLevel("DEBUG"))

	logger.Infof("indexed block %d", 42)
	logger.Debugf("debug line")

	out := buf.String()
	assert.Contains(t, out, "indexed block 42")
	assert.Contains(t, out, "debug line")
	assert.Equal(t, int(gocore.DEBUG), logger.LogLevel())
}

func TestZeroLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer

	logger := ulogger.NewZeroLogger("addrtest", ulogger.WithWriter(&buf), ulogger.WithLevel("ERROR"))

	logger.Infof("should not appear")
	logger.Warnf("should not appear either")
	logger.Errorf("visible")

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "visible")
}

func TestZeroLoggerChildInheritsWriter(t *testing.T) {
	var buf bytes.Buffer

	parent := ulogger.NewZeroLogger("parent", ulogger.WithWriter(&buf))
	child := parent.New("child")

	child.Infof("from child")
	require.Contains(t, buf.String(), "from child")
}

func TestNewTestLoggerType(t *testing.T) {
	logger := ulogger.New("x", ulogger.WithLoggerType("test"))
	_, ok := logger.(ulogger.TestLogger)
	require.True(t, ok)

	// must not panic
	logger.Errorf("ignored %s", "line")
}

func TestErrorTestLoggerCounts(t *testing.T) {
	logger := ulogger.NewErrorTestLogger(t)

	logger.Infof("ignored")
	logger.Errorf("first %d", 1)
	logger.Errorf("second")

	assert.Equal(t, int64(2), logger.ErrorCount())
}

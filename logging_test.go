package ahr

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLoggerLevels(t *testing.T) {
	var out, errOut bytes.Buffer
	l := NewDefaultLogger("AHR", false)
	l.out = log.New(&out, "", 0)
	l.err = log.New(&errOut, "", 0)

	l.Debugf("hidden %d", 1)
	assert.Empty(t, out.String())

	l.SetDebug(true)
	assert.True(t, l.DebugEnabled())
	l.Debugf("shown %d", 2)
	l.Infof("info")
	l.Warnf("careful")
	l.Errorf("broken: %v", "x")

	assert.Equal(t, "[AHR] DEBUG: shown 2\n[AHR] INFO: info\n", out.String())
	assert.Equal(t, "[AHR] WARN: careful\n[AHR] ERROR: broken: x\n", errOut.String())
}

func TestDefaultLoggerNoPrefix(t *testing.T) {
	var out bytes.Buffer
	l := NewDefaultLogger("", true)
	l.out = log.New(&out, "", 0)
	l.Infof("plain")
	assert.Equal(t, "INFO: plain\n", out.String())
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.SetDebug(true)
	assert.False(t, l.DebugEnabled())
	l.Errorf("nothing")
}

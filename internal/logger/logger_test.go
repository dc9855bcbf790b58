package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_JSONWhenNotDebug(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(false, buf)

	WithFields(map[string]interface{}{"k": "v"}).Info("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "v", line["k"])
}

func TestInit_DebugEnablesDebugLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(true, buf)

	Log().Debug("debug line")
	assert.True(t, strings.Contains(buf.String(), "debug line"))
}

func TestSecurity_SeparateChannel(t *testing.T) {
	app := &bytes.Buffer{}
	sec := &bytes.Buffer{}
	Init(false, app)
	InitSecurity(sec)

	Security().WithField("ip", "203.0.113.9").Warn("auto-block")

	assert.Empty(t, app.String())
	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(sec.Bytes(), &line))
	assert.Equal(t, "security", line["channel"])
	assert.Equal(t, "203.0.113.9", line["ip"])
}

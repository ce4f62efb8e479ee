package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithComponent(t *testing.T) {
	entry := Logger().WithComponent("stream_session")
	assert.Equal(t, "stream_session", entry.Entry.Data["component"])
}

func TestParseLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"":        logrus.InfoLevel,
		"report":  logrus.InfoLevel,
		" DEBUG ": logrus.DebugLevel,
		"warn":    logrus.WarnLevel,
	}
	for in, want := range cases {
		got, err := parseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseLevel("loud")
	assert.EqualError(t, err, "invalid log level 'loud'")
}

func TestConfigure(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	log := Logger()

	assert.Error(t, log.Configure("invalid", "json", "stdout", 0))
	assert.Error(t, log.Configure("info", "xml", "stdout", 0))

	require.NoError(t, log.Configure("report", "text", "stderr", 0))
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestConfigureEnvOverridesLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	log := Logger()
	require.NoError(t, log.Configure("info", "json", "stdout", 0))
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
}

func TestJSONOutputUsesRenamedKeys(t *testing.T) {
	log := Logger()
	var buf bytes.Buffer
	log.SetOutput(&buf)

	log.WithComponent("stream_session").WithFields(Fields{"cursor": "42"}).Info("frame applied")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "frame applied", line["message"])
	assert.Equal(t, "stream_session", line["component"])
	assert.Equal(t, "42", line["cursor"])
	assert.Contains(t, line, "timestamp")
}

func TestWarnAndErrorCountsByComponent(t *testing.T) {
	log := Logger()
	log.SetOutput(&bytes.Buffer{})

	before := reportFields()
	log.WithComponent("stream_supervisor").Warn("stream closed, reconnecting")
	log.WithComponent("snapshot_export").Warn("snapshot export failed")
	log.WithComponent("csv_sink").Error("write failed")
	log.WithComponent("dashboard").Warn("not counted")
	after := reportFields()

	assert.Equal(t, before["warns_stream"].(int64)+1, after["warns_stream"])
	assert.Equal(t, before["warns_export"].(int64)+1, after["warns_export"])
	assert.Equal(t, before["errors_export"].(int64)+1, after["errors_export"])
}

func TestTrafficCounters(t *testing.T) {
	before := reportFields()

	IncrementStreamRead(64)
	IncrementRestRead(512)
	IncrementExportWrite("kafka", 10)
	RecordChannelMessage("status", 5)
	RecordChannelMessage("status", 5)

	after := reportFields()
	assert.Equal(t, before["stream_reads"].(int64)+1, after["stream_reads"])
	assert.Equal(t, before["rest_reads"].(int64)+1, after["rest_reads"])
	assert.Equal(t, before["export_writes"].(int64)+1, after["export_writes"])

	channels := after["channels"].(map[string]map[string]int64)
	require.Contains(t, channels, "export_kafka")
	assert.GreaterOrEqual(t, channels["stream_sse"]["bytes"], int64(64))
	assert.GreaterOrEqual(t, channels["status"]["messages"], int64(2))
}

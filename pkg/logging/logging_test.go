package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_InvalidLevel(t *testing.T) {
	assert.Error(t, Init("loud", false))
}

func TestFromContext_AddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	InitWithOutput(&buf, logrus.DebugLevel, true)
	t.Cleanup(func() { _ = Init("info", false) })

	ctx := WithRequestID(context.Background(), "req-123")
	FromContext(ctx, "http").Info("handled")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "http", line["component"])
	assert.Equal(t, "req-123", line["request_id"])
	assert.Equal(t, "handled", line["msg"])
}

func TestRequestID_Missing(t *testing.T) {
	assert.Equal(t, "", RequestID(context.Background()))
}

func TestInit_ReachesEarlierComponents(t *testing.T) {
	early := Component("rollup")

	var buf bytes.Buffer
	InitWithOutput(&buf, logrus.WarnLevel, true)
	t.Cleanup(func() { _ = Init("info", false) })

	early.Info("filtered")
	early.Warn("kept")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "rollup", line["component"])
}

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext_AddsKnownFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "production", "debug")
	t.Cleanup(func() { Init("development", "") })

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithUserID(ctx, "user-1")
	ctx = WithConnID(ctx, "conn-1")

	CtxInfo(ctx, "hello", "chat_id", "chat-1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "user-1", entry["user_id"])
	assert.Equal(t, "conn-1", entry["conn_id"])
	assert.Equal(t, "chat-1", entry["chat_id"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("development", "").String())
	assert.Equal(t, "INFO", parseLevel("production", "").String())
	assert.Equal(t, "WARN", parseLevel("development", "WARN").String())
}

package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(DEBUG)
	SetRedactPII(true)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(INFO)
	})
	return &buf
}

func TestLog_RedactsPII(t *testing.T) {
	buf := capture(t)

	Info("offer sent", "customer_email", "john.doe@example.com", "phone", "5551999887766", "note", "ping ana@shop.com")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "offer sent", entry["msg"])
	assert.Equal(t, "jo***@example.com", entry["customer_email"])
	assert.Equal(t, "***7766", entry["phone"])
	assert.Equal(t, "ping an***@shop.com", entry["note"])
}

func TestLog_LevelFilter(t *testing.T) {
	buf := capture(t)
	SetLevel(WARN)

	Info("dropped")
	Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" Warning "))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("bogus"))
}

func TestRedactPhone(t *testing.T) {
	assert.Equal(t, "***", RedactPhone(""))
	assert.Equal(t, "***", RedactPhone("1234"))
	assert.Equal(t, "***2122", RedactPhone("+55 (51) 9969-2122"))
}

func TestLog_DanglingKey(t *testing.T) {
	buf := capture(t)
	SetRedactPII(false)

	Error("send failed", "customer_id", 42, "attempt")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "42", entry["customer_id"])
	assert.Equal(t, "(missing)", entry["attempt"])
}

package websocket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage(MessageTypeGateStatus, GateStatusData{
		Lane:   "entry",
		Status: "open",
	})
	require.NoError(t, err)
	assert.Equal(t, MessageTypeGateStatus, msg.Type)
	assert.NotZero(t, msg.Timestamp)

	var data GateStatusData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "entry", data.Lane)
	assert.Equal(t, "open", data.Status)
}

func TestNewMessageRejectsUnknownType(t *testing.T) {
	_, err := NewMessage("TIME_SYNC", nil)
	assert.Error(t, err)
}

func TestParseMessage(t *testing.T) {
	raw := []byte(`{"type":"REGISTER","data":{"source":"gate-node-1"},"timestamp":1}`)
	msg, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeRegister, msg.Type)

	var reg RegisterData
	require.NoError(t, json.Unmarshal(msg.Data, &reg))
	assert.Equal(t, "gate-node-1", reg.Source)
}

func TestParseMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseMessage([]byte(`{"type":"SPIN","timestamp":1}`))
	assert.Error(t, err, "the type set is closed")
}

func TestParseMessageRejectsMissingType(t *testing.T) {
	_, err := ParseMessage([]byte(`{"timestamp":1}`))
	assert.Error(t, err)
}

func TestParseMessageRejectsMalformedJSON(t *testing.T) {
	_, err := ParseMessage([]byte(`{not json`))
	assert.Error(t, err)
}

package client

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeMessage(t *testing.T, raw string) *WSStatusMessage {
	t.Helper()
	msg := &WSStatusMessage{}
	require.NoError(t, json.Unmarshal([]byte(raw), msg))
	return msg
}

func TestDecodeExecuting(t *testing.T) {
	msg := decodeMessage(t, `{"type": "executing", "data": {"node": "12", "prompt_id": "p1"}}`)
	data, ok := msg.Data.(*WSMessageDataExecuting)
	require.True(t, ok)
	require.NotNil(t, data.Node)
	assert.Equal(t, "12", *data.Node)
	assert.Equal(t, "p1", msg.PromptID())

	msg = decodeMessage(t, `{"type": "executing", "data": {"node": null, "prompt_id": "p1"}}`)
	data, ok = msg.Data.(*WSMessageDataExecuting)
	require.True(t, ok)
	assert.Nil(t, data.Node)
}

func TestDecodeProgressWithoutPromptID(t *testing.T) {
	msg := decodeMessage(t, `{"type": "progress", "data": {"value": 3, "max": 20}}`)
	data, ok := msg.Data.(*WSMessageDataProgress)
	require.True(t, ok)
	assert.Equal(t, 3, data.Value)
	assert.Equal(t, 20, data.Max)
	assert.Empty(t, msg.PromptID())
}

func TestDecodeStatus(t *testing.T) {
	msg := decodeMessage(t, `{"type": "status", "data": {"status": {"exec_info": {"queue_remaining": 2}}, "sid": "abc"}}`)
	data, ok := msg.Data.(*WSMessageDataStatus)
	require.True(t, ok)
	assert.Equal(t, 2, data.Status.ExecInfo.QueueRemaining)
	assert.Equal(t, "abc", data.SID)
	assert.Empty(t, msg.PromptID())
}

func TestDecodeExecutedOutputs(t *testing.T) {
	msg := decodeMessage(t, `{"type": "executed", "data": {"node": "9", "prompt_id": "p1", "output": {
		"images": [{"filename": "a.png", "subfolder": "", "type": "output"}, {"filename": "b.png", "type": "output"}],
		"text": ["hello"],
		"animated": [false]
	}}}`)
	data, ok := msg.Data.(*WSMessageDataExecuted)
	require.True(t, ok)
	assert.Equal(t, "9", data.Node)

	require.Len(t, data.Output["images"], 2)
	assert.Equal(t, DataOutput{Filename: "a.png", Type: "output"}, data.Output["images"][0])
	assert.Equal(t, "b.png", data.Output["images"][1].Filename)

	require.Len(t, data.Output["text"], 1)
	assert.Equal(t, DataOutput{Type: "text", Text: "hello"}, data.Output["text"][0])

	require.Len(t, data.Output["animated"], 1)
	assert.Equal(t, "unknown", data.Output["animated"][0].Type)
}

func TestDecodeExecutionError(t *testing.T) {
	msg := decodeMessage(t, `{"type": "execution_error", "data": {
		"prompt_id": "p1", "node_id": "4", "node_type": "CheckpointLoaderSimple",
		"executed": [], "exception_message": "no such file", "exception_type": "FileNotFoundError",
		"traceback": ["line 1"], "current_inputs": [], "current_outputs": {"1": []}
	}}`)
	data, ok := msg.Data.(*WSMessageExecutionError)
	require.True(t, ok)
	assert.Equal(t, "4", data.Node)
	assert.Equal(t, "FileNotFoundError", data.ExceptionType)
	assert.Equal(t, "p1", msg.PromptID())
}

func TestDecodeUnknownType(t *testing.T) {
	msg := decodeMessage(t, `{"type": "crystools.monitor", "data": {"cpu_utilization": 3.2}}`)
	assert.Equal(t, "crystools.monitor", msg.Type)
	assert.Nil(t, msg.Data)
	assert.Empty(t, msg.PromptID())
}

func TestDecodeMalformedData(t *testing.T) {
	msg := &WSStatusMessage{}
	err := json.Unmarshal([]byte(`{"type": "progress", "data": {"value": "three"}}`), msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding progress message")
}

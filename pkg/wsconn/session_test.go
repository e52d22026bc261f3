package wsconn

import (
	"encoding/json"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelpline/msgcore/internal/types"
)

func TestDecodeFrameTextJSON(t *testing.T) {
	payload, err := json.Marshal(types.Msg{LocalID: "l1", MsgType: types.SingleMsg})
	require.NoError(t, err)

	msg, err := decodeFrame(websocket.TextMessage, payload)
	require.NoError(t, err)
	assert.Equal(t, "l1", msg.LocalID)
}

func TestDecodeFrameBinaryWithLengthPrefixStripsPrefix(t *testing.T) {
	inner, err := json.Marshal(types.Msg{LocalID: "l2"})
	require.NoError(t, err)

	prefixed := make([]byte, 4+len(inner))
	prefixed[3] = byte(len(inner)) // big-endian length, fits in one byte here
	copy(prefixed[4:], inner)

	msg, err := decodeFrame(websocket.BinaryMessage, prefixed)
	require.NoError(t, err)
	assert.Equal(t, "l2", msg.LocalID)
}

func TestDecodeFrameInvalidJSON(t *testing.T) {
	_, err := decodeFrame(websocket.TextMessage, []byte("not json"))
	assert.Error(t, err)
}

func TestSessionSendDropsWhenBufferFull(t *testing.T) {
	s := &Session{send: make(chan []byte, 1), closeNotify: make(chan struct{})}
	assert.True(t, s.Send([]byte("a")))
	assert.False(t, s.Send([]byte("b")))
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	s := &Session{send: make(chan []byte, 1), closeNotify: make(chan struct{})}
	s.Close(types.CloseKicked)
	assert.Equal(t, Closed, s.State())
	assert.NotPanics(t, func() { s.Close(types.CloseNormal) })
}

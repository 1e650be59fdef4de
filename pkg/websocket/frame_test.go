package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	f, ok := DecodeFrame([]byte(`{"type":"publish_success","id":"p1","successful":[{"identifier":"e1","index":0}],"failed":[{"identifier":"e2","index":1,"errorCode":400,"errorMessage":"bad"}]}`))
	require.True(t, ok)
	assert.Equal(t, FramePublishSuccess, f.Type)
	assert.Equal(t, "p1", f.ID)
	assert.Equal(t, []PublishedEvent{{Identifier: "e1", Index: 0}}, f.Successful)
	require.Len(t, f.Failed, 1)
	require.NotNil(t, f.Failed[0].ErrorCode)
	assert.Equal(t, 400, *f.Failed[0].ErrorCode)

	_, ok = DecodeFrame([]byte(`{"id":"x"}`))
	assert.False(t, ok)
	_, ok = DecodeFrame([]byte(`{`))
	assert.False(t, ok)
}

func TestIsKeepAlive(t *testing.T) {
	assert.True(t, isKeepAlive([]byte(`{"type":"ka"}`)))
	assert.True(t, isKeepAlive([]byte(`{ "type" : "ka" }`)))
	assert.False(t, isKeepAlive([]byte(`{"type":"data","id":"1","event":"\"ka\""}`)))
	assert.False(t, isKeepAlive([]byte(`{"type":"connection_ack"}`)))
	assert.False(t, isKeepAlive([]byte(`not json`)))
}

func TestPublishMessageDecodesBack(t *testing.T) {
	data, err := encodeMessage(newPublishMessage("p1", "/default/a", []string{`{"a":1}`, `"b"`}, nil))
	require.NoError(t, err)

	f, ok := DecodeFrame(data)
	require.True(t, ok)
	assert.Equal(t, FramePublish, f.Type)
	assert.Equal(t, "p1", f.ID)
}

func TestFrameConnectionTimeout(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{`{"type":"connection_ack","connectionTimeoutMs":1500}`, 1500 * time.Millisecond},
		{`{"type":"connection_ack","payload":{"connectionTimeoutMs":2000}}`, 2 * time.Second},
		{`{"type":"connection_ack"}`, DefaultConnectionTimeout},
		{`{"type":"connection_ack","connectionTimeoutMs":0}`, DefaultConnectionTimeout},
		{`{"type":"connection_ack","connectionTimeoutMs":-5}`, DefaultConnectionTimeout},
		{`{"type":"connection_ack","connectionTimeoutMs":"soon"}`, DefaultConnectionTimeout},
	}
	for _, tc := range cases {
		f, ok := DecodeFrame([]byte(tc.raw))
		require.True(t, ok, tc.raw)
		assert.Equal(t, tc.want, f.ConnectionTimeout(), tc.raw)
	}
}

func TestFrameFirstError(t *testing.T) {
	f, _ := DecodeFrame([]byte(`{"type":"subscribe_error","id":"s","errors":[{"errorType":"A","message":"first"},{"errorType":"B","message":"second"}]}`))
	assert.Equal(t, ErrorEntry{ErrorType: "A", Message: "first"}, f.FirstError())

	f, _ = DecodeFrame([]byte(`{"type":"error","id":"s"}`))
	assert.Equal(t, "UnknownError", f.FirstError().ErrorType)
}

func TestOutboundMessagesEncode(t *testing.T) {
	data, err := encodeMessage(newSubscribeMessage("s1", "/default/a", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"subscribe","id":"s1","channel":"/default/a","authorization":{}}`, string(data))

	data, err = encodeMessage(newPublishMessage("p1", "/default/a", []string{`{"a":1}`}, map[string]string{"x-api-key": "k"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"publish","id":"p1","channel":"/default/a","events":["{\"a\":1}"],"authorization":{"x-api-key":"k"}}`, string(data))

	data, err = encodeMessage(newUnsubscribeMessage("s1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"unsubscribe","id":"s1"}`, string(data))
}

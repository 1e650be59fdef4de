package obs

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanun0323/eventsocket/pkg/exception"
	"github.com/yanun0323/eventsocket/pkg/websocket"
)

func TestMetricsCountsObserverHooks(t *testing.T) {
	m := NewMetrics()
	m.StateChanged(websocket.StateConnecting)
	m.StateChanged(websocket.StateOpen)
	m.MessageSent(websocket.FrameSubscribe)
	m.FrameReceived(websocket.FrameSubscribeSuccess)
	m.FrameReceived(websocket.FrameData)
	m.FrameReceived(websocket.FrameData)
	m.FrameReceived("mystery")
	m.FrameDropped("unknown id")
	m.OperationStarted(websocket.OperationSubscribe)
	m.OperationStarted(websocket.OperationPublish)
	m.OperationFinished(websocket.OperationPublish, nil)
	m.OperationFinished(websocket.OperationSubscribe, exception.ErrStreamClosed)
	m.EventDropped()
	m.HeartbeatExpired()
	m.StateChanged(websocket.StateClosed)

	snap := m.Snapshot()
	assert.Equal(t, websocket.StateClosed, snap.State)
	assert.Equal(t, uint64(2), snap.FramesReceived[websocket.FrameData])
	assert.Equal(t, uint64(1), snap.FramesReceived["other"])
	assert.Equal(t, uint64(1), snap.MessagesSent[websocket.FrameSubscribe])
	assert.Equal(t, uint64(1), snap.FrameDrops["unknown id"])
	assert.Equal(t, uint64(1), snap.Operations[websocket.OperationPublish].Finished["ok"])
	assert.Equal(t, uint64(1), snap.Operations[websocket.OperationSubscribe].Finished["unknown"])
	assert.Equal(t, uint64(1), snap.EventsDropped)
	assert.Equal(t, uint64(1), snap.Heartbeats)
	assert.Equal(t, uint64(1), snap.Connects)
	assert.Equal(t, uint64(1), snap.Disconnects)
	assert.Equal(t, uint64(1), snap.SessionTime.Count)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.StateChanged(websocket.StateOpen)
	m.FrameReceived(websocket.FrameData)
	m.EventDropped()
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestCollectorExportsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.StateChanged(websocket.StateOpen)
	m.FrameReceived(websocket.FrameData)
	m.OperationStarted(websocket.OperationPublish)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(m, "eventsocket")))

	expected := `
# HELP eventsocket_client_frames_received_total Inbound frames by type
# TYPE eventsocket_client_frames_received_total counter
eventsocket_client_frames_received_total{type="data"} 1
# HELP eventsocket_client_state Current connection state (0=idle, 1=connecting, 2=open, 3=closing, 4=closed)
# TYPE eventsocket_client_state gauge
eventsocket_client_state 2
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"eventsocket_client_frames_received_total", "eventsocket_client_state")
	require.NoError(t, err)
}

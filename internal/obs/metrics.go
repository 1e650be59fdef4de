package obs

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/eventsocket/pkg/websocket"
)

// frameTypes lists the frame types counted individually. Anything else is
// counted under "other".
var frameTypes = [...]websocket.FrameType{
	websocket.FrameConnectionInit,
	websocket.FrameConnectionAck,
	websocket.FrameKeepAlive,
	websocket.FrameSubscribe,
	websocket.FrameUnsubscribe,
	websocket.FramePublish,
	websocket.FrameData,
	websocket.FramePublishSuccess,
	websocket.FramePublishError,
	websocket.FrameSubscribeSuccess,
	websocket.FrameSubscribeError,
	websocket.FrameUnsubscribeSuccess,
	websocket.FrameUnsubscribeError,
	websocket.FrameBroadcastError,
	websocket.FrameError,
}

const (
	otherFrame = len(frameTypes)
	maxKind    = int(websocket.OperationPublish)
	outcomes   = 4
)

// Outcome labels of finished operations.
var outcomeNames = [outcomes]string{"ok", "network", "service", "unknown"}

// Metrics collects lightweight client counters and latency stats. It
// implements websocket.Observer.
type Metrics struct {
	framesReceived [otherFrame + 1]uint64
	messagesSent   [otherFrame + 1]uint64
	opsStarted     [maxKind + 1]uint64
	opsFinished    [maxKind + 1][outcomes]uint64
	eventsDropped  uint64
	heartbeats     uint64
	connects       uint64
	disconnects    uint64

	state     atomic.Uint32
	openSince atomic.Int64

	dropMu      sync.Mutex
	frameDrops  map[string]uint64
	sessionTime LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// OperationCounts are the counters of one operation kind.
type OperationCounts struct {
	Started  uint64
	Finished map[string]uint64
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	State          websocket.State
	FramesReceived map[websocket.FrameType]uint64
	MessagesSent   map[websocket.FrameType]uint64
	FrameDrops     map[string]uint64
	Operations     map[websocket.OperationKind]OperationCounts
	EventsDropped  uint64
	Heartbeats     uint64
	Connects       uint64
	Disconnects    uint64
	SessionTime    LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{frameDrops: make(map[string]uint64)}
}

var _ websocket.Observer = (*Metrics)(nil)

// StateChanged tracks connects, disconnects and the open duration of each session.
func (m *Metrics) StateChanged(state websocket.State) {
	if m == nil {
		return
	}
	m.state.Store(uint32(state))
	switch state {
	case websocket.StateOpen:
		atomic.AddUint64(&m.connects, 1)
		m.openSince.Store(time.Now().UnixNano())
	case websocket.StateClosed:
		if since := m.openSince.Swap(0); since != 0 {
			atomic.AddUint64(&m.disconnects, 1)
			m.sessionTime.Observe(time.Duration(time.Now().UnixNano() - since))
		}
	}
}

func (m *Metrics) FrameReceived(frameType websocket.FrameType) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.framesReceived[frameIndex(frameType)], 1)
}

func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.dropMu.Lock()
	m.frameDrops[reason]++
	m.dropMu.Unlock()
}

func (m *Metrics) MessageSent(frameType websocket.FrameType) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.messagesSent[frameIndex(frameType)], 1)
}

func (m *Metrics) OperationStarted(kind websocket.OperationKind) {
	if m == nil || int(kind) > maxKind {
		return
	}
	atomic.AddUint64(&m.opsStarted[kind], 1)
}

func (m *Metrics) OperationFinished(kind websocket.OperationKind, err error) {
	if m == nil || int(kind) > maxKind {
		return
	}
	atomic.AddUint64(&m.opsFinished[kind][outcomeIndex(err)], 1)
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.eventsDropped, 1)
}

func (m *Metrics) HeartbeatExpired() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.heartbeats, 1)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	received := make(map[websocket.FrameType]uint64)
	sent := make(map[websocket.FrameType]uint64)
	for i := range m.framesReceived {
		name := frameName(i)
		if v := atomic.LoadUint64(&m.framesReceived[i]); v > 0 {
			received[name] = v
		}
		if v := atomic.LoadUint64(&m.messagesSent[i]); v > 0 {
			sent[name] = v
		}
	}

	ops := make(map[websocket.OperationKind]OperationCounts)
	for kind := 1; kind <= maxKind; kind++ {
		counts := OperationCounts{
			Started:  atomic.LoadUint64(&m.opsStarted[kind]),
			Finished: make(map[string]uint64),
		}
		for i, name := range outcomeNames {
			if v := atomic.LoadUint64(&m.opsFinished[kind][i]); v > 0 {
				counts.Finished[name] = v
			}
		}
		ops[websocket.OperationKind(kind)] = counts
	}

	m.dropMu.Lock()
	drops := make(map[string]uint64, len(m.frameDrops))
	for k, v := range m.frameDrops {
		drops[k] = v
	}
	m.dropMu.Unlock()

	return Snapshot{
		State:          websocket.State(m.state.Load()),
		FramesReceived: received,
		MessagesSent:   sent,
		FrameDrops:     drops,
		Operations:     ops,
		EventsDropped:  atomic.LoadUint64(&m.eventsDropped),
		Heartbeats:     atomic.LoadUint64(&m.heartbeats),
		Connects:       atomic.LoadUint64(&m.connects),
		Disconnects:    atomic.LoadUint64(&m.disconnects),
		SessionTime:    m.sessionTime.Snapshot(),
	}
}

func frameIndex(t websocket.FrameType) int {
	for i, ft := range frameTypes {
		if ft == t {
			return i
		}
	}
	return otherFrame
}

func frameName(i int) websocket.FrameType {
	if i < len(frameTypes) {
		return frameTypes[i]
	}
	return "other"
}

func outcomeIndex(err error) int {
	if err == nil {
		return 0
	}
	switch websocket.KindOf(err) {
	case websocket.KindNetwork:
		return 1
	case websocket.KindService:
		return 2
	default:
		return 3
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}

package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports a Metrics snapshot to Prometheus on every scrape.
type Collector struct {
	metrics *Metrics

	state          *prometheus.Desc
	framesReceived *prometheus.Desc
	messagesSent   *prometheus.Desc
	frameDrops     *prometheus.Desc
	opsStarted     *prometheus.Desc
	opsFinished    *prometheus.Desc
	eventsDropped  *prometheus.Desc
	heartbeats     *prometheus.Desc
	connects       *prometheus.Desc
	sessionSeconds *prometheus.Desc
}

// NewCollector creates a collector for m. namespace prefixes every metric.
func NewCollector(m *Metrics, namespace string) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "client", name), help, labels, nil)
	}
	return &Collector{
		metrics:        m,
		state:          desc("state", "Current connection state (0=idle, 1=connecting, 2=open, 3=closing, 4=closed)"),
		framesReceived: desc("frames_received_total", "Inbound frames by type", "type"),
		messagesSent:   desc("messages_sent_total", "Outbound messages by type", "type"),
		frameDrops:     desc("frames_dropped_total", "Inbound frames dropped by reason", "reason"),
		opsStarted:     desc("operations_started_total", "Operations started by kind", "kind"),
		opsFinished:    desc("operations_finished_total", "Operations finished by kind and outcome", "kind", "outcome"),
		eventsDropped:  desc("events_dropped_total", "Subscription events dropped by the overflow policy"),
		heartbeats:     desc("heartbeat_expired_total", "Connections closed by keep-alive expiry"),
		connects:       desc("connects_total", "Successful connects"),
		sessionSeconds: desc("session_seconds", "Lifetime of closed connections", "stat"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.state
	ch <- c.framesReceived
	ch <- c.messagesSent
	ch <- c.frameDrops
	ch <- c.opsStarted
	ch <- c.opsFinished
	ch <- c.eventsDropped
	ch <- c.heartbeats
	ch <- c.connects
	ch <- c.sessionSeconds
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.metrics.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, float64(snap.State))
	for t, v := range snap.FramesReceived {
		ch <- prometheus.MustNewConstMetric(c.framesReceived, prometheus.CounterValue, float64(v), string(t))
	}
	for t, v := range snap.MessagesSent {
		ch <- prometheus.MustNewConstMetric(c.messagesSent, prometheus.CounterValue, float64(v), string(t))
	}
	for reason, v := range snap.FrameDrops {
		ch <- prometheus.MustNewConstMetric(c.frameDrops, prometheus.CounterValue, float64(v), reason)
	}
	for kind, counts := range snap.Operations {
		ch <- prometheus.MustNewConstMetric(c.opsStarted, prometheus.CounterValue, float64(counts.Started), kind.String())
		for outcome, v := range counts.Finished {
			ch <- prometheus.MustNewConstMetric(c.opsFinished, prometheus.CounterValue, float64(v), kind.String(), outcome)
		}
	}
	ch <- prometheus.MustNewConstMetric(c.eventsDropped, prometheus.CounterValue, float64(snap.EventsDropped))
	ch <- prometheus.MustNewConstMetric(c.heartbeats, prometheus.CounterValue, float64(snap.Heartbeats))
	ch <- prometheus.MustNewConstMetric(c.connects, prometheus.CounterValue, float64(snap.Connects))

	lifetime := snap.SessionTime
	ch <- prometheus.MustNewConstMetric(c.sessionSeconds, prometheus.GaugeValue, lifetime.Min.Seconds(), "min")
	ch <- prometheus.MustNewConstMetric(c.sessionSeconds, prometheus.GaugeValue, lifetime.Max.Seconds(), "max")
	ch <- prometheus.MustNewConstMetric(c.sessionSeconds, prometheus.GaugeValue, lifetime.Avg.Seconds(), "avg")
}

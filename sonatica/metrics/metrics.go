// Package metrics exports manager events and REST calls as Prometheus
// metrics.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/liuran001/sonatica-go/sonatica/lavalink"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector turns events into counters and gauges.
type Collector struct {
	nodeEvents    *prometheus.CounterVec
	nodeConnected *prometheus.GaugeVec
	nodePlaying   *prometheus.GaugeVec
	nodeLoad      *prometheus.GaugeVec
	players       prometheus.Gauge
	tracks        *prometheus.CounterVec
	trackErrors   prometheus.Counter
	queueEnds     prometheus.Counter
	nodeMoves     *prometheus.CounterVec
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

// NewCollector registers the metrics with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		nodeEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "sonatica_node_events_total", Help: "Node lifecycle events"},
			[]string{"node", "event"},
		),
		nodeConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "sonatica_node_connected", Help: "1 while the node socket is open"},
			[]string{"node"},
		),
		nodePlaying: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "sonatica_node_playing_players", Help: "Playing players reported by the node"},
			[]string{"node"},
		),
		nodeLoad: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "sonatica_node_lavalink_load", Help: "Lavalink CPU load reported by the node"},
			[]string{"node"},
		),
		players: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "sonatica_players", Help: "Players held by the manager"},
		),
		tracks: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "sonatica_tracks_total", Help: "Track starts and ends"},
			[]string{"event", "reason"},
		),
		trackErrors: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "sonatica_track_errors_total", Help: "Track exceptions and stuck tracks"},
		),
		queueEnds: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "sonatica_queue_end_total", Help: "Queues that ran out of tracks"},
		),
		nodeMoves: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "sonatica_player_node_moves_total", Help: "Players handed to another node"},
			[]string{"from", "to"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "sonatica_rest_requests_total", Help: "REST calls to nodes"},
			[]string{"node", "method", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sonatica_rest_request_duration_seconds",
				Help:    "REST call latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"node", "method"},
		),
	}

	for _, col := range []prometheus.Collector{
		c.nodeEvents, c.nodeConnected, c.nodePlaying, c.nodeLoad, c.players,
		c.tracks, c.trackErrors, c.queueEnds, c.nodeMoves, c.requests, c.duration,
	} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return c, nil
}

// Attach subscribes the collector to m and returns the remover.
func (c *Collector) Attach(m *lavalink.Manager) func() {
	return m.AddListener(c.Observe)
}

// Observe records one event.
func (c *Collector) Observe(e lavalink.Event) {
	switch ev := e.(type) {
	case lavalink.NodeConnectEvent:
		c.nodeEvents.WithLabelValues(ev.Node.Identifier(), "connect").Inc()
		c.nodeConnected.WithLabelValues(ev.Node.Identifier()).Set(1)
	case lavalink.NodeReadyEvent:
		event := "ready"
		if ev.Resumed {
			event = "resumed"
		}
		c.nodeEvents.WithLabelValues(ev.Node.Identifier(), event).Inc()
	case lavalink.NodeDisconnectEvent:
		c.nodeEvents.WithLabelValues(ev.Node.Identifier(), "disconnect").Inc()
		c.nodeConnected.WithLabelValues(ev.Node.Identifier()).Set(0)
	case lavalink.NodeReconnectEvent:
		c.nodeEvents.WithLabelValues(ev.Node.Identifier(), "reconnect").Inc()
	case lavalink.NodeErrorEvent:
		event := "error"
		if ev.Fatal {
			event = "fatal"
		}
		c.nodeEvents.WithLabelValues(ev.Node.Identifier(), event).Inc()
	case lavalink.NodeDestroyEvent:
		id := ev.Node.Identifier()
		c.nodeEvents.WithLabelValues(id, "destroy").Inc()
		c.nodeConnected.DeleteLabelValues(id)
		c.nodePlaying.DeleteLabelValues(id)
		c.nodeLoad.DeleteLabelValues(id)
	case lavalink.NodeRawEvent:
		if stats := ev.Node.Stats(); stats != nil {
			c.nodePlaying.WithLabelValues(ev.Node.Identifier()).Set(float64(stats.PlayingPlayers))
			c.nodeLoad.WithLabelValues(ev.Node.Identifier()).Set(stats.CPU.LavalinkLoad)
		}
	case lavalink.PlayerCreateEvent:
		c.players.Inc()
	case lavalink.PlayerDestroyEvent:
		c.players.Dec()
	case lavalink.PlayerNodeMoveEvent:
		c.nodeMoves.WithLabelValues(ev.From, ev.To).Inc()
	case lavalink.TrackStartEvent:
		c.tracks.WithLabelValues("start", "").Inc()
	case lavalink.TrackEndEvent:
		c.tracks.WithLabelValues("end", string(ev.Reason)).Inc()
	case lavalink.TrackErrorEvent, lavalink.TrackStuckEvent:
		c.trackErrors.Inc()
	case lavalink.QueueEndEvent:
		c.queueEnds.Inc()
	}
}

// ObserveRequest matches rest.Observer.
func (c *Collector) ObserveRequest(name, method, _ string, status int, elapsed time.Duration, err error) {
	label := strconv.Itoa(status)
	if status == 0 && err != nil {
		label = "error"
	}
	c.requests.WithLabelValues(name, method, label).Inc()
	c.duration.WithLabelValues(name, method).Observe(elapsed.Seconds())
}

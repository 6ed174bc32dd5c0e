package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(relaySessionsActive, relayFramesTotal, relayUpstreamEvents)
}

var (
	relaySessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_sessions_active",
			Help: "Open transcription relay sessions.",
		},
	)

	relayFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_audio_frames_total",
			Help: "Client audio frames, labeled forwarded or dropped (upstream not ready).",
		},
		[]string{"result"},
	)

	relayUpstreamEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_upstream_events_total",
			Help: "Upstream lifecycle events such as connect, ready, dial_error, close_abnormal or reconnect.",
		},
		[]string{"event"},
	)
)

func RelaySessionOpened() { relaySessionsActive.Inc() }
func RelaySessionClosed() { relaySessionsActive.Dec() }

func IncRelayFrame(result string) { relayFramesTotal.WithLabelValues(norm(result)).Inc() }

func IncRelayUpstream(event string) { relayUpstreamEvents.WithLabelValues(norm(event)).Inc() }

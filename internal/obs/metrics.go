package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveViewers          = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "camrelay_active_viewers", Help: "Currently attached viewers"}, []string{"source"})
	UpstreamSessions       = promauto.NewGauge(prometheus.GaugeOpts{Name: "camrelay_upstream_sessions", Help: "Upstream sessions currently open"})
	SessionsStartedTotal   = promauto.NewCounter(prometheus.CounterOpts{Name: "camrelay_sessions_started_total", Help: "Upstream sessions started"})
	ConnectRetriesTotal    = promauto.NewCounter(prometheus.CounterOpts{Name: "camrelay_connect_retries_total", Help: "Upstream connect attempts that failed and were retried"})
	ConnectFailuresTotal   = promauto.NewCounter(prometheus.CounterOpts{Name: "camrelay_connect_failures_total", Help: "Upstream sessions abandoned after exhausting the retry budget"})
	ChunksRelayedTotal     = promauto.NewCounter(prometheus.CounterOpts{Name: "camrelay_chunks_relayed_total", Help: "Upstream chunks distributed to viewers"})
	BytesRelayedTotal      = promauto.NewCounterVec(prometheus.CounterOpts{Name: "camrelay_bytes_relayed_total", Help: "Upstream bytes relayed by source"}, []string{"source"})
	ErrorsTotal            = promauto.NewCounterVec(prometheus.CounterOpts{Name: "camrelay_errors_total", Help: "Errors by type"}, []string{"type"})
	SessionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{Name: "camrelay_session_duration_seconds", Help: "Upstream session lifetime seconds", Buckets: prometheus.ExponentialBuckets(0.01, 2, 16)})
)

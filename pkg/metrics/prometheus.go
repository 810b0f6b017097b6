// Package metrics provides Prometheus metrics for the judging engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns all Prometheus metrics on a dedicated registry.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         *prometheus.Registry

	// Judging
	votesSubmitted  prometheus.Counter
	votesDuplicate  prometheus.Counter
	votesRejected   *prometheus.CounterVec
	attemptsJudged  *prometheus.CounterVec
	headOverrides   prometheus.Counter
	voteCloseRaces  prometheus.Counter

	// Offline sync queue
	syncQueueSize     prometheus.Gauge
	syncFlushes       prometheus.Counter
	syncReplayed      prometheus.Counter
	syncDeadLettered  prometheus.Counter
	syncFlushDuration prometheus.Histogram

	// Timers and sessions
	timerStarts    *prometheus.CounterVec
	timerExpiries  prometheus.Counter
	sessionsActive prometheus.Gauge
	queueRebuilds  prometheus.Counter

	// Leaderboard
	leaderboardBuilds        prometheus.Counter
	leaderboardBuildDuration prometheus.Histogram

	// Persistence
	storeUnavailable prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Init builds the global manager with the given options.
func Init(opts ...Option) {
	globalManager = NewManager(opts...)
}

// NewManager creates a Manager and registers all metric families.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "a1lifter",
		subsystem:        "engine",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		enabled:          true,
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	f := promauto.With(m.registry)

	m.votesSubmitted = f.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "votes_submitted_total", Help: "Judge votes received, including duplicates.",
	})
	m.votesDuplicate = f.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "votes_duplicate_total", Help: "Votes deduplicated by idempotency key.",
	})
	m.votesRejected = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "votes_rejected_total", Help: "Votes rejected, by reason.",
	}, []string{"reason"})
	m.attemptsJudged = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "attempts_judged_total", Help: "Attempts closed, by result.",
	}, []string{"result"})
	m.headOverrides = f.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "head_overrides_total", Help: "Head-judge decisions that overrode a lay majority.",
	})
	m.voteCloseRaces = f.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "vote_close_races_total", Help: "Version conflicts retried while closing an attempt.",
	})

	m.syncQueueSize = f.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "sync_queue_size", Help: "Pending offline actions.",
	})
	m.syncFlushes = f.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "sync_flushes_total", Help: "Offline queue flush passes.",
	})
	m.syncReplayed = f.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "sync_actions_replayed_total", Help: "Actions applied by flush.",
	})
	m.syncDeadLettered = f.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "sync_actions_dead_lettered_total", Help: "Actions dropped after retry exhaustion.",
	})
	m.syncFlushDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "sync_flush_duration_ms", Help: "Flush pass duration in milliseconds.",
		Buckets: m.histogramBuckets,
	})

	m.timerStarts = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "timer_starts_total", Help: "Countdown starts, by phase.",
	}, []string{"phase"})
	m.timerExpiries = f.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "timer_expiries_total", Help: "Countdowns observed expired.",
	})
	m.sessionsActive = f.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "sessions_active", Help: "Live sessions not yet completed or aborted.",
	})
	m.queueRebuilds = f.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_rebuilds_total", Help: "Full lifting-order recomputations.",
	})

	m.leaderboardBuilds = f.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "leaderboard_builds_total", Help: "Leaderboard recomputations.",
	})
	m.leaderboardBuildDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "leaderboard_build_duration_ms", Help: "Leaderboard build duration in milliseconds.",
		Buckets: m.histogramBuckets,
	})

	m.storeUnavailable = f.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "store_unavailable_total", Help: "Writes diverted to the offline queue.",
	})

	m.httpRequests = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_requests_total", Help: "HTTP requests, by endpoint, method and status.",
	}, []string{"endpoint", "method", "status"})
	m.httpRequestDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_request_duration_ms", Help: "HTTP request duration in milliseconds.",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status"})

	return m
}

// GetRegistry returns the registry backing the global manager, creating
// the manager with defaults if needed.
func GetRegistry() *prometheus.Registry {
	if globalManager == nil {
		Init()
	}
	return globalManager.registry
}

func active() *Manager {
	if globalManager == nil || !globalManager.enabled {
		return nil
	}
	return globalManager
}

// Judging helpers.

func RecordVoteSubmitted() {
	if m := active(); m != nil {
		m.votesSubmitted.Inc()
	}
}

func RecordVoteDuplicate() {
	if m := active(); m != nil {
		m.votesDuplicate.Inc()
	}
}

func RecordVoteRejected(reason string) {
	if m := active(); m != nil {
		m.votesRejected.WithLabelValues(reason).Inc()
	}
}

func RecordAttemptJudged(result string) {
	if m := active(); m != nil {
		m.attemptsJudged.WithLabelValues(result).Inc()
	}
}

func RecordHeadOverride() {
	if m := active(); m != nil {
		m.headOverrides.Inc()
	}
}

func RecordVoteCloseRace() {
	if m := active(); m != nil {
		m.voteCloseRaces.Inc()
	}
}

// Sync queue helpers.

func UpdateSyncQueueSize(n int) {
	if m := active(); m != nil {
		m.syncQueueSize.Set(float64(n))
	}
}

func RecordSyncFlush(durationMS float64) {
	if m := active(); m != nil {
		m.syncFlushes.Inc()
		m.syncFlushDuration.Observe(durationMS)
	}
}

func RecordSyncReplayed() {
	if m := active(); m != nil {
		m.syncReplayed.Inc()
	}
}

func RecordSyncDeadLettered() {
	if m := active(); m != nil {
		m.syncDeadLettered.Inc()
	}
}

// Timer and session helpers.

func RecordTimerStart(phase string) {
	if m := active(); m != nil {
		m.timerStarts.WithLabelValues(phase).Inc()
	}
}

func RecordTimerExpiry() {
	if m := active(); m != nil {
		m.timerExpiries.Inc()
	}
}

func UpdateActiveSessions(n int) {
	if m := active(); m != nil {
		m.sessionsActive.Set(float64(n))
	}
}

func RecordQueueRebuild() {
	if m := active(); m != nil {
		m.queueRebuilds.Inc()
	}
}

// Leaderboard helpers.

func RecordLeaderboardBuild(durationMS float64) {
	if m := active(); m != nil {
		m.leaderboardBuilds.Inc()
		m.leaderboardBuildDuration.Observe(durationMS)
	}
}

// Persistence helpers.

func RecordStoreUnavailable() {
	if m := active(); m != nil {
		m.storeUnavailable.Inc()
	}
}

// HTTP helpers.

func RecordHTTPRequest(endpoint, method, status string) {
	if m := active(); m != nil {
		m.httpRequests.WithLabelValues(endpoint, method, status).Inc()
	}
}

func RecordHTTPRequestDuration(endpoint, method, status string, durationMS float64) {
	if m := active(); m != nil {
		m.httpRequestDuration.WithLabelValues(endpoint, method, status).Observe(durationMS)
	}
}

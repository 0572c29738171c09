package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SlidingWindow counts events over a trailing time window
type SlidingWindow struct {
	mu      sync.RWMutex
	events  []int64
	window  time.Duration
	maxSize int
}

// NewSlidingWindow creates a new sliding window
func NewSlidingWindow(window time.Duration, maxSize int) *SlidingWindow {
	return &SlidingWindow{
		events:  make([]int64, 0, maxSize),
		window:  window,
		maxSize: maxSize,
	}
}

// Add adds an event timestamp to the window
func (sw *SlidingWindow) Add(timestamp int64) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.events = append(sw.events, timestamp)

	cutoff := time.Now().Unix() - int64(sw.window.Seconds())
	i := 0
	for i < len(sw.events) && sw.events[i] < cutoff {
		i++
	}
	if i > 0 {
		sw.events = sw.events[i:]
	}
	if len(sw.events) > sw.maxSize {
		sw.events = sw.events[len(sw.events)-sw.maxSize:]
	}
}

// Count returns the number of events inside the window
func (sw *SlidingWindow) Count() int {
	sw.mu.RLock()
	defer sw.mu.RUnlock()

	cutoff := time.Now().Unix() - int64(sw.window.Seconds())
	count := 0
	for _, ts := range sw.events {
		if ts >= cutoff {
			count++
		}
	}
	return count
}

// Rate returns the current rate (events per second)
func (sw *SlidingWindow) Rate() float64 {
	return float64(sw.Count()) / sw.window.Seconds()
}

var relayFailureWindow = NewSlidingWindow(10*time.Minute, 10000)

// Local mirrors of the prometheus series, readable by the health endpoint
var (
	bootstrapCount    int64
	messagesUnwrapped int64
	decryptFailures   int64
	relayQueries      int64
	relayFailures     int64
	cacheSaveFailures int64
	errorCount        int64
	lastBootstrapUnix int64
)

// Bootstrap metrics
var (
	Bootstraps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dmsync_bootstraps_total",
		Help: "Bootstrap runs by start mode",
	}, []string{"mode"}) // "cold", "warm"

	BootstrapDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dmsync_bootstrap_duration_seconds",
		Help:    "Wall time of a bootstrap run",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"mode"})

	CoalescedBootstraps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dmsync_bootstraps_coalesced_total",
		Help: "Bootstrap requests that joined a run already in progress",
	})

	QueryLimitReached = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dmsync_query_limit_reached_total",
		Help: "Retrieval rounds truncated at the query limit",
	})

	RelayQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dmsync_relay_queries_total",
		Help: "Relay queries by outcome",
	}, []string{"status"}) // "success", "failure"

	EnvelopesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dmsync_envelopes_fetched_total",
		Help: "Unique envelopes retrieved from relays",
	})

	DuplicateEnvelopes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dmsync_duplicate_envelopes_total",
		Help: "Envelopes returned by more than one relay",
	})

	EnvelopesUnwrapped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dmsync_envelopes_unwrapped_total",
		Help: "Envelope unwrap results by protocol and status",
	}, []string{"protocol", "status"})

	ConversationsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dmsync_conversations",
		Help: "Conversations in the latest snapshot",
	})

	MessagesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dmsync_messages",
		Help: "Messages in the latest snapshot",
	})

	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dmsync_cache_operations_total",
		Help: "Cache operations by backend, operation and status",
	}, []string{"backend", "operation", "status"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dmsync_http_requests_total",
		Help: "HTTP API requests by route",
	}, []string{"route"})

	ErrorsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dmsync_errors_total",
		Help: "The total number of errors by type",
	}, []string{"type"})
)

// RecordBootstrap records a finished bootstrap run
func RecordBootstrap(mode string, took time.Duration) {
	Bootstraps.WithLabelValues(mode).Inc()
	BootstrapDuration.WithLabelValues(mode).Observe(took.Seconds())
	atomic.AddInt64(&bootstrapCount, 1)
	atomic.StoreInt64(&lastBootstrapUnix, time.Now().Unix())
}

// RecordRelayQuery records the outcome of one relay query
func RecordRelayQuery(err error) {
	atomic.AddInt64(&relayQueries, 1)
	if err != nil {
		RelayQueries.WithLabelValues("failure").Inc()
		atomic.AddInt64(&relayFailures, 1)
		relayFailureWindow.Add(time.Now().Unix())
		return
	}
	RelayQueries.WithLabelValues("success").Inc()
}

// RecordUnwrap records the outcome of unwrapping one envelope
func RecordUnwrap(protocol string, ok bool) {
	if ok {
		EnvelopesUnwrapped.WithLabelValues(protocol, "success").Inc()
		atomic.AddInt64(&messagesUnwrapped, 1)
		return
	}
	EnvelopesUnwrapped.WithLabelValues(protocol, "failure").Inc()
	atomic.AddInt64(&decryptFailures, 1)
}

// RecordCacheOp records a cache load or save
func RecordCacheOp(backend, operation string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
		if operation == "save" {
			atomic.AddInt64(&cacheSaveFailures, 1)
		}
	}
	CacheOperations.WithLabelValues(backend, operation, status).Inc()
}

// SetSnapshotSize publishes the size of the latest snapshot
func SetSnapshotSize(conversations, messages int) {
	ConversationsTotal.Set(float64(conversations))
	MessagesTotal.Set(float64(messages))
}

// IncrementErrorCount increments the error counter
func IncrementErrorCount(errType string) {
	ErrorsCount.WithLabelValues(errType).Inc()
	atomic.AddInt64(&errorCount, 1)
}

// Summary is a point-in-time copy of the local counters
type Summary struct {
	Bootstraps          int64     `json:"bootstraps"`
	MessagesUnwrapped   int64     `json:"messages_unwrapped"`
	DecryptFailures     int64     `json:"decrypt_failures"`
	RelayQueries        int64     `json:"relay_queries"`
	RelayFailures       int64     `json:"relay_failures"`
	RecentRelayFailures int       `json:"recent_relay_failures"`
	CacheSaveFailures   int64     `json:"cache_save_failures"`
	Errors              int64     `json:"errors"`
	LastBootstrap       time.Time `json:"last_bootstrap,omitempty"`
}

// GetSummary returns the local counters
func GetSummary() Summary {
	s := Summary{
		Bootstraps:          atomic.LoadInt64(&bootstrapCount),
		MessagesUnwrapped:   atomic.LoadInt64(&messagesUnwrapped),
		DecryptFailures:     atomic.LoadInt64(&decryptFailures),
		RelayQueries:        atomic.LoadInt64(&relayQueries),
		RelayFailures:       atomic.LoadInt64(&relayFailures),
		RecentRelayFailures: relayFailureWindow.Count(),
		CacheSaveFailures:   atomic.LoadInt64(&cacheSaveFailures),
		Errors:              atomic.LoadInt64(&errorCount),
	}
	if ts := atomic.LoadInt64(&lastBootstrapUnix); ts > 0 {
		s.LastBootstrap = time.Unix(ts, 0)
	}
	return s
}

// RegisterMetrics pre-creates the labelled series so they export zeros
func RegisterMetrics() {
	for _, mode := range []string{"cold", "warm"} {
		Bootstraps.WithLabelValues(mode)
		BootstrapDuration.WithLabelValues(mode)
	}
	for _, status := range []string{"success", "failure"} {
		RelayQueries.WithLabelValues(status)
		for _, protocol := range []string{"nip04", "nip17"} {
			EnvelopesUnwrapped.WithLabelValues(protocol, status)
		}
	}
	for _, errType := range []string{"validation", "not_found", "network", "timeout", "cache", "decrypt", "internal"} {
		ErrorsCount.WithLabelValues(errType)
	}
}

package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-serialport-server/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus collectors
var (
	PortsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "serialport_ports_open",
		Help: "Current number of ports registered in the port registry.",
	})
	ReadersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "serialport_readers_active",
		Help: "Current number of running port reader goroutines.",
	})
	SerialRxBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serialport_rx_bytes_total",
		Help: "Total bytes read from serial devices.",
	})
	SerialTxBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serialport_tx_bytes_total",
		Help: "Total bytes written to serial devices.",
	})
	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "serialport_events_total",
		Help: "Events emitted to the event sink by kind.",
	}, []string{"kind"})
	ForcedFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serialport_utf8_forced_flushes_total",
		Help: "Pending incomplete UTF-8 tails force-flushed as raw bytes.",
	})
	Disconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serialport_disconnects_total",
		Help: "Readers stopped by a fatal device error.",
	})
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "serialport_requests_total",
		Help: "Frontend requests handled by command.",
	}, []string{"cmd"})
	HubDroppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_dropped_events_total",
		Help: "Total events dropped by hub due to slow clients.",
	})
	HubKickedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_kicked_clients_total",
		Help: "Total clients disconnected due to backpressure kick policy.",
	})
	HubRejectedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_rejected_clients_total",
		Help: "Total client connection attempts rejected (e.g., max-clients).",
	})
	HubActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_active_clients",
		Help: "Current number of active connected clients.",
	})
	HubBroadcastFanout = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_broadcast_fanout",
		Help: "Number of clients targeted in the most recent broadcast.",
	})
	HubQueueDepthMax = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_queue_depth_max",
		Help: "Observed max queued messages among clients in the last sample.",
	})
	HubQueueDepthAvg = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_queue_depth_avg",
		Help: "Approximate average queued messages per client in last sample.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	MalformedRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_requests_total",
		Help: "Total rejected request lines (bad JSON, oversize line).",
	})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrTCPRead      = "tcp_read"
	ErrTCPWrite     = "tcp_write"
	ErrHandshake    = "handshake"
	ErrClientLimit  = "client_limit"
	ErrSerialOpen   = "serial_open"
	ErrSerialRead   = "serial_read"
	ErrSerialWrite  = "serial_write"
	ErrSerialTxFull = "serial_tx_overflow"
	ErrSerialClose  = "serial_close"
	ErrEnumerate    = "enumerate"
)

// Event kind label values.
const (
	EventRead       = "read"
	EventReadString = "read_string"
	EventDisconnect = "disconnect"
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for logging without scraping Prometheus in-process.
var (
	localPortsOpen  int64
	localReaders    int64
	localRxBytes    uint64
	localTxBytes    uint64
	localEvents     uint64
	localFlushes    uint64
	localDisconnect uint64
	localRequests   uint64
	localHubDrop    uint64
	localHubKick    uint64
	localHubReject  uint64
	localErrors     uint64
	localHubClients uint64
	localFanout     uint64
	localMalformed  uint64
	localQDMax      uint64
	localQDAvg      uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	PortsOpen     int64
	Readers       int64
	RxBytes       uint64
	TxBytes       uint64
	Events        uint64
	Flushes       uint64
	Disconnects   uint64
	Requests      uint64
	HubDrops      uint64
	HubKicks      uint64
	HubRejects    uint64
	Errors        uint64 // sum across error labels
	HubClients    uint64
	Fanout        uint64
	Malformed     uint64
	QueueDepthMax uint64
	QueueDepthAvg uint64
}

func Snap() Snapshot {
	return Snapshot{
		PortsOpen:     atomic.LoadInt64(&localPortsOpen),
		Readers:       atomic.LoadInt64(&localReaders),
		RxBytes:       atomic.LoadUint64(&localRxBytes),
		TxBytes:       atomic.LoadUint64(&localTxBytes),
		Events:        atomic.LoadUint64(&localEvents),
		Flushes:       atomic.LoadUint64(&localFlushes),
		Disconnects:   atomic.LoadUint64(&localDisconnect),
		Requests:      atomic.LoadUint64(&localRequests),
		HubDrops:      atomic.LoadUint64(&localHubDrop),
		HubKicks:      atomic.LoadUint64(&localHubKick),
		HubRejects:    atomic.LoadUint64(&localHubReject),
		Errors:        atomic.LoadUint64(&localErrors),
		HubClients:    atomic.LoadUint64(&localHubClients),
		Fanout:        atomic.LoadUint64(&localFanout),
		Malformed:     atomic.LoadUint64(&localMalformed),
		QueueDepthMax: atomic.LoadUint64(&localQDMax),
		QueueDepthAvg: atomic.LoadUint64(&localQDAvg),
	}
}

// SetPortsOpen records the registry size.
func SetPortsOpen(n int) {
	PortsOpen.Set(float64(n))
	atomic.StoreInt64(&localPortsOpen, int64(n))
}

func IncReaders() {
	ReadersActive.Inc()
	atomic.AddInt64(&localReaders, 1)
}

func DecReaders() {
	ReadersActive.Dec()
	atomic.AddInt64(&localReaders, -1)
}

func AddRxBytes(n int) {
	SerialRxBytes.Add(float64(n))
	atomic.AddUint64(&localRxBytes, uint64(n))
}

func AddTxBytes(n int) {
	SerialTxBytes.Add(float64(n))
	atomic.AddUint64(&localTxBytes, uint64(n))
}

// IncEvent counts one emitted event of the given kind label.
func IncEvent(kind string) {
	EventsEmitted.WithLabelValues(kind).Inc()
	atomic.AddUint64(&localEvents, 1)
}

func IncForcedFlush() {
	ForcedFlushes.Inc()
	atomic.AddUint64(&localFlushes, 1)
}

func IncDisconnect() {
	Disconnects.Inc()
	atomic.AddUint64(&localDisconnect, 1)
}

func IncRequest(cmd string) {
	Requests.WithLabelValues(cmd).Inc()
	atomic.AddUint64(&localRequests, 1)
}

func IncHubDrop() {
	HubDroppedEvents.Inc()
	atomic.AddUint64(&localHubDrop, 1)
}

func IncHubKick() {
	HubKickedClients.Inc()
	atomic.AddUint64(&localHubKick, 1)
}

func IncHubReject() {
	HubRejectedClients.Inc()
	atomic.AddUint64(&localHubReject, 1)
}

func SetHubClients(n int) {
	HubActiveClients.Set(float64(n))
	atomic.StoreUint64(&localHubClients, uint64(n))
}

func SetBroadcastFanout(n int) {
	HubBroadcastFanout.Set(float64(n))
	atomic.StoreUint64(&localFanout, uint64(n))
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func IncMalformed() {
	MalformedRequests.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

// SetQueueDepth records a snapshot of max and avg queue depth.
func SetQueueDepth(max, avg int) {
	HubQueueDepthMax.Set(float64(max))
	HubQueueDepthAvg.Set(float64(avg))
	atomic.StoreUint64(&localQDMax, uint64(max))
	atomic.StoreUint64(&localQDAvg, uint64(avg))
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register label series so dashboards see zeros before the first event.
	for _, lbl := range []string{
		ErrTCPRead, ErrTCPWrite, ErrHandshake, ErrClientLimit,
		ErrSerialOpen, ErrSerialRead, ErrSerialWrite, ErrSerialTxFull, ErrSerialClose,
		ErrEnumerate,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
	for _, k := range []string{EventRead, EventReadString, EventDisconnect} {
		EventsEmitted.WithLabelValues(k).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}

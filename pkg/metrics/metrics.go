package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Upload queue metrics
	UploadsEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "slskd_uploads_enqueued_total",
			Help: "Total number of uploads accepted into the queue",
		},
	)

	UploadsReleased = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slskd_uploads_released_total",
			Help: "Total number of uploads granted a slot, by group",
		},
		[]string{"group"},
	)

	UploadsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slskd_uploads_completed_total",
			Help: "Total number of uploads finished, by outcome",
		},
		[]string{"outcome"},
	)

	UploadedBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "slskd_uploaded_bytes_total",
			Help: "Total bytes delivered to peers",
		},
	)

	QueueLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "slskd_upload_queue_length",
			Help: "Number of uploads waiting for a slot",
		},
	)

	UploadsStarted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "slskd_uploads_started",
			Help: "Number of uploads currently moving bytes",
		},
	)

	GroupUsedSlots = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slskd_group_used_slots",
			Help: "Slots in use per upload group",
		},
		[]string{"group"},
	)

	GroupSlotCapacity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slskd_group_slot_capacity",
			Help: "Slot capacity per upload group",
		},
		[]string{"group"},
	)

	// Search metrics
	SearchesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slskd_searches_completed_total",
			Help: "Total number of outgoing searches by terminal state",
		},
		[]string{"state"},
	)

	SearchResponsesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "slskd_search_responses_received_total",
			Help: "Total number of responses collected for outgoing searches",
		},
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slskd_search_duration_seconds",
			Help:    "Time from search start to terminal state in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ResolverQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slskd_resolver_queries_total",
			Help: "Total number of remote search queries by outcome",
		},
		[]string{"outcome"},
	)

	// Share index metrics
	ShareFiles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "slskd_share_files",
			Help: "Number of files indexed across all hosts",
		},
	)

	ShareDirectories = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "slskd_share_directories",
			Help: "Number of directories indexed across all hosts",
		},
	)

	ShareHosts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "slskd_share_hosts",
			Help: "Number of hosts bound to the share index",
		},
	)

	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slskd_share_scan_duration_seconds",
			Help:    "Local share scan duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// Relay metrics
	RelayAgents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "slskd_relay_agents",
			Help: "Number of authenticated relay agents",
		},
	)

	RelayStreamedBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "slskd_relay_streamed_bytes_total",
			Help: "Total bytes proxied from agents through file streams",
		},
	)

	RelayStreamFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "slskd_relay_stream_failures_total",
			Help: "Total relay file streams that ended in an error",
		},
	)

	// Server connection metrics
	ServerConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "slskd_server_connected",
			Help: "Whether the server session is live (1 = connected)",
		},
	)

	ServerConnectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "slskd_server_connect_attempts_total",
			Help: "Total connection attempts made by the watchdog",
		},
	)

	// Configuration metrics
	ConfigReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slskd_config_reloads_total",
			Help: "Total configuration reconciliations by outcome",
		},
		[]string{"outcome"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slskd_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slskd_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(UploadsEnqueued)
	prometheus.MustRegister(UploadsReleased)
	prometheus.MustRegister(UploadsCompleted)
	prometheus.MustRegister(UploadedBytes)
	prometheus.MustRegister(QueueLength)
	prometheus.MustRegister(UploadsStarted)
	prometheus.MustRegister(GroupUsedSlots)
	prometheus.MustRegister(GroupSlotCapacity)
	prometheus.MustRegister(SearchesCompleted)
	prometheus.MustRegister(SearchResponsesReceived)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(ResolverQueries)
	prometheus.MustRegister(ShareFiles)
	prometheus.MustRegister(ShareDirectories)
	prometheus.MustRegister(ShareHosts)
	prometheus.MustRegister(ScanDuration)
	prometheus.MustRegister(RelayAgents)
	prometheus.MustRegister(RelayStreamedBytes)
	prometheus.MustRegister(RelayStreamFailures)
	prometheus.MustRegister(ServerConnected)
	prometheus.MustRegister(ServerConnectAttempts)
	prometheus.MustRegister(ConfigReloads)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

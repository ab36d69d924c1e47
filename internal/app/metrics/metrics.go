package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "raffle_engine",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "raffle_engine",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "raffle_engine",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	roundsOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "raffle_engine",
			Subsystem: "rounds",
			Name:      "opened_total",
			Help:      "Total number of rounds opened.",
		},
	)

	roundsActivated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "raffle_engine",
			Subsystem: "rounds",
			Name:      "activated_total",
			Help:      "Total number of rounds activated.",
		},
	)

	roundsCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "raffle_engine",
			Subsystem: "rounds",
			Name:      "cancelled_total",
			Help:      "Total number of rounds cancelled.",
		},
	)

	activePool = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "raffle_engine",
			Subsystem: "rounds",
			Name:      "active_pool",
			Help:      "Pool value of the most recently activated round.",
		},
	)

	activeParticipants = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "raffle_engine",
			Subsystem: "rounds",
			Name:      "active_participants",
			Help:      "Participant count of the most recently activated round.",
		},
	)

	refundedParticipants = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "raffle_engine",
			Subsystem: "refunds",
			Name:      "participants_total",
			Help:      "Total participants refunded on cancellation.",
		},
	)

	deposits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "raffle_engine",
			Subsystem: "escrow",
			Name:      "movements_total",
			Help:      "Total escrow movements by kind.",
		},
		[]string{"kind"},
	)

	depositValue = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "raffle_engine",
			Subsystem: "escrow",
			Name:      "value_total",
			Help:      "Total value moved through escrow by kind.",
		},
		[]string{"kind"},
	)

	ticketsSold = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "raffle_engine",
			Subsystem: "tickets",
			Name:      "sold_total",
			Help:      "Total tickets sold in active rounds.",
		},
	)

	draws = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "raffle_engine",
			Subsystem: "draws",
			Name:      "events_total",
			Help:      "Total draw protocol events by outcome.",
		},
		[]string{"outcome"},
	)

	prizesPaid = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "raffle_engine",
			Subsystem: "draws",
			Name:      "prize_value_total",
			Help:      "Total prize value paid to winners.",
		},
	)

	refundsPaid = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "raffle_engine",
			Subsystem: "refunds",
			Name:      "value_total",
			Help:      "Total value refunded on cancellation.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		roundsOpened,
		roundsActivated,
		roundsCancelled,
		activePool,
		activeParticipants,
		refundedParticipants,
		deposits,
		depositValue,
		ticketsSold,
		draws,
		prizesPaid,
		refundsPaid,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordRoundOpened counts a new WAITING round.
func RecordRoundOpened() {
	roundsOpened.Inc()
}

// RecordDeposit counts an accepted escrow deposit.
func RecordDeposit(amount uint64) {
	deposits.WithLabelValues("deposit").Inc()
	depositValue.WithLabelValues("deposit").Add(float64(amount))
}

// RecordWithdrawal counts a pre-activation escrow withdrawal.
func RecordWithdrawal(amount uint64) {
	deposits.WithLabelValues("withdrawal").Inc()
	depositValue.WithLabelValues("withdrawal").Add(float64(amount))
}

// RecordTicketPurchase counts tickets added to an active round.
func RecordTicketPurchase(tickets uint64) {
	ticketsSold.Add(float64(tickets))
}

// RecordActivation records a round activation and its starting pool.
func RecordActivation(participants int, pool uint64) {
	roundsActivated.Inc()
	activePool.Set(float64(pool))
	activeParticipants.Set(float64(participants))
}

// RecordDrawRequested counts a committed draw request.
func RecordDrawRequested() {
	draws.WithLabelValues("requested").Inc()
}

// RecordDrawExecuted counts a completed draw and the prize paid.
func RecordDrawExecuted(prize uint64) {
	draws.WithLabelValues("executed").Inc()
	prizesPaid.Add(float64(prize))
}

// RecordDrawExpired counts a draw window that closed unexecuted.
func RecordDrawExpired() {
	draws.WithLabelValues("expired").Inc()
}

// RecordCancellation records a cancelled round and the value refunded.
func RecordCancellation(refunds int, total uint64) {
	roundsCancelled.Inc()
	refundsPaid.Add(float64(total))
	refundedParticipants.Add(float64(refunds))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "rounds" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/rounds"
	}
	if parts[1] == "current" {
		if len(parts) == 2 {
			return "/rounds/current"
		}
		return "/rounds/current/" + parts[2]
	}
	if len(parts) == 2 {
		return "/rounds/:id"
	}
	return "/rounds/:id/" + strings.Join(parts[2:], "/")
}

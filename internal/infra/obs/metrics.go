package obs

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rentme-reservations/internal/app/policies"
)

// Metrics holds the service collectors. A nil *Metrics is a no-op.
type Metrics struct {
	gatherer            prometheus.Gatherer
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	commandsTotal       *prometheus.CounterVec
	notificationsTotal  *prometheus.CounterVec
	expiredTotal        prometheus.Counter
}

// NewMetrics registers collectors on a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return NewMetricsWith(reg, reg)
}

func NewMetricsWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		gatherer: gatherer,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total", Help: "Total number of HTTP requests"},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds", Buckets: prometheus.DefBuckets},
			[]string{"method", "endpoint"},
		),
		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "reservation_commands_total", Help: "Commands handled by result"},
			[]string{"command", "result"},
		),
		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "payment_notifications_total", Help: "Payment notifications by outcome"},
			[]string{"outcome"},
		),
		expiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "reservations_expired_total", Help: "Pending reservations expired by the sweeper"},
		),
	}
	reg.MustRegister(m.httpRequestsTotal, m.httpRequestDuration, m.commandsTotal, m.notificationsTotal, m.expiredTotal)
	return m
}

func (m *Metrics) ObserveHTTP(method, endpoint string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}

func (m *Metrics) CommandHandled(command, result string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(command, result).Inc()
}

func (m *Metrics) PaymentNotification(outcome string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ReservationsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expiredTotal.Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() gin.HandlerFunc {
	if m == nil || m.gatherer == nil {
		return gin.WrapH(promhttp.Handler())
	}
	return gin.WrapH(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}

var _ policies.Metrics = (*Metrics)(nil)

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metric collectors for the Kyosor server.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Domain metrics.
	MissionTransitionsTotal *prometheus.CounterVec
	RuleRejectionsTotal     *prometheus.CounterVec
	HoursSettledTotal       prometheus.Counter
	RenamesTotal            *prometheus.CounterVec

	// Rate limiting.
	RateLimitRejectionsTotal *prometheus.CounterVec

	// Activity journal.
	ActivityFlushesTotal *prometheus.CounterVec
	ActivityEventsTotal  prometheus.Counter

	// Auth metrics.
	AuthFailuresTotal  *prometheus.CounterVec
	AuthSuccessesTotal *prometheus.CounterVec

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kyosor_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kyosor_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		MissionTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kyosor_mission_transitions_total",
			Help: "Total number of mission state transitions.",
		}, []string{"transition"}),

		RuleRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kyosor_rule_rejections_total",
			Help: "Total number of operations refused by a business rule.",
		}, []string{"code"}),

		HoursSettledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kyosor_hours_settled_total",
			Help: "Total volunteer hours credited on mission completion.",
		}),

		RenamesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kyosor_identity_renames_total",
			Help: "Total number of identity rename attempts.",
		}, []string{"status"}),

		RateLimitRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kyosor_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}, []string{"scope"}),

		ActivityFlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kyosor_activity_flushes_total",
			Help: "Total number of activity journal flushes.",
		}, []string{"status"}),

		ActivityEventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kyosor_activity_events_total",
			Help: "Total number of activity events written to the journal.",
		}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kyosor_auth_failures_total",
			Help: "Total number of authentication failures.",
		}, []string{"auth_type"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kyosor_auth_successes_total",
			Help: "Total number of successful authentications.",
		}, []string{"auth_type"}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kyosor_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.MissionTransitionsTotal,
		m.RuleRejectionsTotal,
		m.HoursSettledTotal,
		m.RenamesTotal,
		m.RateLimitRejectionsTotal,
		m.ActivityFlushesTotal,
		m.ActivityEventsTotal,
		m.AuthFailuresTotal,
		m.AuthSuccessesTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, pattern string, status int, seconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, pattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pattern).Observe(seconds)
}

// IncMissionTransition counts a mission transition such as "joined".
func (m *Metrics) IncMissionTransition(transition string) {
	m.MissionTransitionsTotal.WithLabelValues(transition).Inc()
}

// IncRuleRejection counts an operation refused with the given error code.
func (m *Metrics) IncRuleRejection(code string) {
	m.RuleRejectionsTotal.WithLabelValues(code).Inc()
}

// AddHoursSettled adds credited hours.
func (m *Metrics) AddHoursSettled(hours float64) {
	m.HoursSettledTotal.Add(hours)
}

// IncRename counts a rename attempt by outcome ("success" or "error").
func (m *Metrics) IncRename(status string) {
	m.RenamesTotal.WithLabelValues(status).Inc()
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection(scope string) {
	m.RateLimitRejectionsTotal.WithLabelValues(scope).Inc()
}

// ObserveActivityFlush records the outcome of a journal flush.
func (m *Metrics) ObserveActivityFlush(count int, err error) {
	if err != nil {
		m.ActivityFlushesTotal.WithLabelValues("error").Inc()
		return
	}
	m.ActivityFlushesTotal.WithLabelValues("ok").Inc()
	m.ActivityEventsTotal.Add(float64(count))
}

// IncAuthFailure increments the auth failure counter for the given auth type.
func (m *Metrics) IncAuthFailure(authType string) {
	m.AuthFailuresTotal.WithLabelValues(authType).Inc()
}

// IncAuthSuccess increments the auth success counter for the given auth type.
func (m *Metrics) IncAuthSuccess(authType string) {
	m.AuthSuccessesTotal.WithLabelValues(authType).Inc()
}

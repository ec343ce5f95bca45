package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON response for the metrics summary endpoint.
type Summary struct {
	HTTP      httpSummary    `json:"http"`
	Missions  missionSummary `json:"missions"`
	RateLimit rateLimitInfo  `json:"rateLimit"`
	Activity  activityInfo   `json:"activity"`
	Auth      authInfo       `json:"auth"`
	DB        dbInfo         `json:"db"`
	Server    serverInfo     `json:"server"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
	P99Latency    float64 `json:"p99Latency"`
}

type missionSummary struct {
	Created        float64 `json:"created"`
	Joined         float64 `json:"joined"`
	Finished       float64 `json:"finished"`
	RuleRejections float64 `json:"ruleRejections"`
	HoursSettled   float64 `json:"hoursSettled"`
	Renames        float64 `json:"renames"`
}

type rateLimitInfo struct {
	Rejections float64 `json:"rejections"`
}

type activityInfo struct {
	TotalFlushes float64 `json:"totalFlushes"`
	FlushErrors  float64 `json:"flushErrors"`
	Events       float64 `json:"events"`
}

type authInfo struct {
	Failures  float64 `json:"failures"`
	Successes float64 `json:"successes"`
}

type serverInfo struct {
	StartTime     float64 `json:"startTime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

type dbInfo struct {
	TotalConns    float64 `json:"totalConns"`
	IdleConns     float64 `json:"idleConns"`
	AcquiredConns float64 `json:"acquiredConns"`
}

// Handler returns an http.HandlerFunc that serves a JSON digest of the
// registry.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := m.Summarize()
		if err != nil {
			http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store")
		_ = json.NewEncoder(w).Encode(summary)
	}
}

// Summarize gathers the registry into a Summary.
func (m *Metrics) Summarize() (*Summary, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}

	fam := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		fam[f.GetName()] = f
	}

	start := gaugeValue(fam["kyosor_server_start_time_seconds"])
	return &Summary{
		HTTP: httpSummary{
			TotalRequests: sumCounter(fam["kyosor_http_requests_total"]),
			ErrorRate:     computeErrorRate(fam["kyosor_http_requests_total"]),
			P50Latency:    histogramPercentile(fam["kyosor_http_request_duration_seconds"], 0.50),
			P95Latency:    histogramPercentile(fam["kyosor_http_request_duration_seconds"], 0.95),
			P99Latency:    histogramPercentile(fam["kyosor_http_request_duration_seconds"], 0.99),
		},
		Missions: missionSummary{
			Created:        counterWithLabel(fam["kyosor_mission_transitions_total"], "transition", "created"),
			Joined:         counterWithLabel(fam["kyosor_mission_transitions_total"], "transition", "joined"),
			Finished:       counterWithLabel(fam["kyosor_mission_transitions_total"], "transition", "finished"),
			RuleRejections: sumCounter(fam["kyosor_rule_rejections_total"]),
			HoursSettled:   counterValue(fam["kyosor_hours_settled_total"]),
			Renames:        counterWithLabel(fam["kyosor_identity_renames_total"], "status", "success"),
		},
		RateLimit: rateLimitInfo{
			Rejections: sumCounter(fam["kyosor_ratelimit_rejections_total"]),
		},
		Activity: activityInfo{
			TotalFlushes: sumCounter(fam["kyosor_activity_flushes_total"]),
			FlushErrors:  counterWithLabel(fam["kyosor_activity_flushes_total"], "status", "error"),
			Events:       counterValue(fam["kyosor_activity_events_total"]),
		},
		Auth: authInfo{
			Failures:  sumCounter(fam["kyosor_auth_failures_total"]),
			Successes: sumCounter(fam["kyosor_auth_successes_total"]),
		},
		DB: dbInfo{
			TotalConns:    gaugeValue(fam["kyosor_db_pool_total_conns"]),
			IdleConns:     gaugeValue(fam["kyosor_db_pool_idle_conns"]),
			AcquiredConns: gaugeValue(fam["kyosor_db_pool_acquired_conns"]),
		},
		Server: serverInfo{
			StartTime:     start,
			UptimeSeconds: float64(time.Now().Unix()) - start,
		},
	}, nil
}

// --- Prometheus metric helpers ---

func sumCounter(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetGauge() != nil {
		return ms[0].GetGauge().GetValue()
	}
	return 0
}

func counterValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetCounter() != nil {
		return ms[0].GetCounter().GetValue()
	}
	return 0
}

func counterWithLabel(f *dto.MetricFamily, labelName, labelValue string) float64 {
	if f == nil {
		return 0
	}
	for _, m := range f.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == labelName && lp.GetValue() == labelValue {
				if m.GetCounter() != nil {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func computeErrorRate(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total, errors float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		v := m.GetCounter().GetValue()
		total += v
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "status_code" {
				code := lp.GetValue()
				if len(code) > 0 && code[0] >= '5' {
					errors += v
				}
			}
		}
	}
	if total == 0 {
		return 0
	}
	return errors / total
}

// histogramPercentile computes a percentile from aggregated histogram buckets
// using linear interpolation.
func histogramPercentile(f *dto.MetricFamily, q float64) float64 {
	if f == nil {
		return 0
	}

	type bucket struct {
		upperBound      float64
		cumulativeCount uint64
	}
	var totalCount uint64
	bucketMap := make(map[float64]uint64)

	for _, m := range f.GetMetric() {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		totalCount += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			bucketMap[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}

	if totalCount == 0 {
		return 0
	}

	buckets := make([]bucket, 0, len(bucketMap))
	for ub, count := range bucketMap {
		buckets = append(buckets, bucket{upperBound: ub, cumulativeCount: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].upperBound < buckets[j].upperBound
	})

	rank := q * float64(totalCount)

	var prevBound float64
	var prevCount uint64
	for _, b := range buckets {
		if math.IsInf(b.upperBound, 1) {
			break
		}
		if float64(b.cumulativeCount) >= rank {
			bucketCount := b.cumulativeCount - prevCount
			if bucketCount == 0 {
				return b.upperBound
			}
			fraction := (rank - float64(prevCount)) / float64(bucketCount)
			return prevBound + fraction*(b.upperBound-prevBound)
		}
		prevBound = b.upperBound
		prevCount = b.cumulativeCount
	}

	// Past every finite bucket: report the largest finite bound.
	for i := len(buckets) - 1; i >= 0; i-- {
		if !math.IsInf(buckets[i].upperBound, 1) {
			return buckets[i].upperBound
		}
	}
	return 0
}

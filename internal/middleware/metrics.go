package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal      uint64
	RequestsInProgress uint64
	RequestsSuccess    uint64
	RequestsFailed     uint64
	DataQueries        uint64
	DashboardIntents   uint64
	DirectSQL          uint64
	Rejections         uint64
	PollTimeouts       uint64
	ExecutionFailures  uint64
	SummaryFallbacks   uint64
	SynthesisFallbacks uint64
	StartTime          time.Time
}

var globalMetrics = &Metrics{
	StartTime: time.Now(),
}

// IncrementRequests increments total request counter
func IncrementRequests() {
	atomic.AddUint64(&globalMetrics.RequestsTotal, 1)
}

// IncrementInProgress increments in-progress request counter
func IncrementInProgress() {
	atomic.AddUint64(&globalMetrics.RequestsInProgress, 1)
}

// DecrementInProgress decrements in-progress request counter
func DecrementInProgress() {
	atomic.AddUint64(&globalMetrics.RequestsInProgress, ^uint64(0))
}

func IncrementSuccess() {
	atomic.AddUint64(&globalMetrics.RequestsSuccess, 1)
}

func IncrementFailed() {
	atomic.AddUint64(&globalMetrics.RequestsFailed, 1)
}

func IncrementDataQueries() {
	atomic.AddUint64(&globalMetrics.DataQueries, 1)
}

func IncrementDashboardIntents() {
	atomic.AddUint64(&globalMetrics.DashboardIntents, 1)
}

func IncrementDirectSQL() {
	atomic.AddUint64(&globalMetrics.DirectSQL, 1)
}

// IncrementRejections counts statements refused by the SQL policy.
func IncrementRejections() {
	atomic.AddUint64(&globalMetrics.Rejections, 1)
}

func IncrementPollTimeouts() {
	atomic.AddUint64(&globalMetrics.PollTimeouts, 1)
}

// IncrementExecutionFailures counts auth and execution failures.
func IncrementExecutionFailures() {
	atomic.AddUint64(&globalMetrics.ExecutionFailures, 1)
}

func IncrementSummaryFallbacks() {
	atomic.AddUint64(&globalMetrics.SummaryFallbacks, 1)
}

func IncrementSynthesisFallbacks() {
	atomic.AddUint64(&globalMetrics.SynthesisFallbacks, 1)
}

// GetMetrics returns current metrics
func GetMetrics() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"requests_total":       atomic.LoadUint64(&globalMetrics.RequestsTotal),
		"requests_in_progress": atomic.LoadUint64(&globalMetrics.RequestsInProgress),
		"requests_success":     atomic.LoadUint64(&globalMetrics.RequestsSuccess),
		"requests_failed":      atomic.LoadUint64(&globalMetrics.RequestsFailed),
		"gateway": map[string]uint64{
			"data_queries":        atomic.LoadUint64(&globalMetrics.DataQueries),
			"dashboard_intents":   atomic.LoadUint64(&globalMetrics.DashboardIntents),
			"direct_sql":          atomic.LoadUint64(&globalMetrics.DirectSQL),
			"rejections":          atomic.LoadUint64(&globalMetrics.Rejections),
			"poll_timeouts":       atomic.LoadUint64(&globalMetrics.PollTimeouts),
			"execution_failures":  atomic.LoadUint64(&globalMetrics.ExecutionFailures),
			"summary_fallbacks":   atomic.LoadUint64(&globalMetrics.SummaryFallbacks),
			"synthesis_fallbacks": atomic.LoadUint64(&globalMetrics.SynthesisFallbacks),
		},
		"uptime_seconds": time.Since(globalMetrics.StartTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes":       m.Alloc,
			"total_alloc_bytes": m.TotalAlloc,
			"sys_bytes":         m.Sys,
			"num_gc":            m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		IncrementRequests()
		IncrementInProgress()
		defer DecrementInProgress()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			IncrementSuccess()
		} else {
			IncrementFailed()
		}
	})
}

// MetricsHandler returns metrics as JSON
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GetMetrics())
}

package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// RequestTrace tracks timing for a single request
type RequestTrace struct {
	RequestID     string        `json:"requestId"`
	Method        string        `json:"method"`
	Path          string        `json:"path"`
	Status        int           `json:"status"`
	StartTime     time.Time     `json:"startTime"`
	EndTime       time.Time     `json:"endTime"`
	TotalDuration time.Duration `json:"totalDuration"`
	Error         string        `json:"error,omitempty"`
}

// RouteMetrics aggregates metrics for a specific route
type RouteMetrics struct {
	Method      string        `json:"method"`
	Path        string        `json:"path"`
	Count       int64         `json:"count"`
	ErrorCount  int64         `json:"errorCount"`
	TotalTime   time.Duration `json:"totalTime"`
	AvgTime     time.Duration `json:"avgTime"`
	MinTime     time.Duration `json:"minTime"`
	MaxTime     time.Duration `json:"maxTime"`
	LastRequest time.Time     `json:"lastRequest"`
}

// MetricsCollector collects and aggregates request metrics. Traces are queued
// on a buffered channel and dropped when it is full: metrics are best-effort
// and must never slow a request down.
type MetricsCollector struct {
	mu            sync.RWMutex
	routeMetrics  map[string]*RouteMetrics
	totalRequests int64
	totalErrors   int64
	windowStart   time.Time
	traceChan     chan RequestTrace
	stopChan      chan struct{}
}

var globalMetrics *MetricsCollector

// InitMetrics initializes the global metrics collector
func InitMetrics() {
	globalMetrics = &MetricsCollector{
		routeMetrics: make(map[string]*RouteMetrics),
		windowStart:  time.Now(),
		traceChan:    make(chan RequestTrace, 1000),
		stopChan:     make(chan struct{}),
	}

	go globalMetrics.processTraces()
}

// GetMetrics returns the global metrics collector
func GetMetrics() *MetricsCollector {
	if globalMetrics == nil {
		InitMetrics()
	}
	return globalMetrics
}

// RecordTrace queues a request trace without blocking; full buffer means the
// trace is dropped.
func (mc *MetricsCollector) RecordTrace(trace RequestTrace) {
	select {
	case mc.traceChan <- trace:
	default:
	}
}

func (mc *MetricsCollector) processTraces() {
	for {
		select {
		case trace := <-mc.traceChan:
			mc.processTrace(trace)
		case <-mc.stopChan:
			return
		}
	}
}

func (mc *MetricsCollector) processTrace(trace RequestTrace) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.totalRequests++
	if trace.Status >= 400 {
		mc.totalErrors++
	}

	key := trace.Method + " " + trace.Path
	rm, ok := mc.routeMetrics[key]
	if !ok {
		rm = &RouteMetrics{Method: trace.Method, Path: trace.Path, MinTime: trace.TotalDuration}
		mc.routeMetrics[key] = rm
	}

	rm.Count++
	if trace.Status >= 400 {
		rm.ErrorCount++
	}
	rm.TotalTime += trace.TotalDuration
	rm.AvgTime = time.Duration(int64(rm.TotalTime) / rm.Count)
	if trace.TotalDuration < rm.MinTime || rm.MinTime == 0 {
		rm.MinTime = trace.TotalDuration
	}
	if trace.TotalDuration > rm.MaxTime {
		rm.MaxTime = trace.TotalDuration
	}
	rm.LastRequest = trace.EndTime
}

// Summary is the response shape of the metrics summary endpoint
type Summary struct {
	WindowStart   time.Time      `json:"windowStart"`
	TotalRequests int64          `json:"totalRequests"`
	TotalErrors   int64          `json:"totalErrors"`
	Routes        []RouteMetrics `json:"routes"`
}

// Snapshot returns a copy of the aggregated metrics, routes sorted by count
func (mc *MetricsCollector) Snapshot() Summary {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	s := Summary{
		WindowStart:   mc.windowStart,
		TotalRequests: mc.totalRequests,
		TotalErrors:   mc.totalErrors,
	}
	for _, rm := range mc.routeMetrics {
		s.Routes = append(s.Routes, *rm)
	}
	sort.Slice(s.Routes, func(i, j int) bool { return s.Routes[i].Count > s.Routes[j].Count })
	return s
}

// MetricsSummaryHandler serves the aggregated request metrics
func MetricsSummaryHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	b, err := json.Marshal(GetMetrics().Snapshot())
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// metrics.go - Metrics collection for the settlement daemon
package main

import (
	"fmt"
	"sync"
	"time"

	"sealedbid/internal/events"
)

// MetricType represents the type of metric
type MetricType string

const (
	Counter   MetricType = "counter"
	Gauge     MetricType = "gauge"
	Histogram MetricType = "histogram"
)

// Metric represents a single metric
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// MetricsCollector manages metrics collection
type MetricsCollector struct {
	mu         sync.RWMutex
	metrics    map[string]*Metric
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics:    make(map[string]*Metric),
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

// IncrementCounter increments a counter metric
func (mc *MetricsCollector) IncrementCounter(name string, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := mc.makeKey(name, labels)
	mc.counters[key]++
	mc.updateMetric(name, Counter, float64(mc.counters[key]), labels)
}

// SetGauge sets a gauge metric value
func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := mc.makeKey(name, labels)
	mc.gauges[key] = value
	mc.updateMetric(name, Gauge, value, labels)
}

// RecordHistogram records a value in a histogram
func (mc *MetricsCollector) RecordHistogram(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := mc.makeKey(name, labels)
	mc.histograms[key] = append(mc.histograms[key], value)

	// Keep only last 1000 values for memory efficiency
	if len(mc.histograms[key]) > 1000 {
		mc.histograms[key] = mc.histograms[key][len(mc.histograms[key])-1000:]
	}

	mc.updateMetric(name, Histogram, value, labels)
}

// GetMetricsSummary returns a summary of all metrics
func (mc *MetricsCollector) GetMetricsSummary() map[string]interface{} {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	summary := make(map[string]interface{})

	counters := make(map[string]int64, len(mc.counters))
	for key, value := range mc.counters {
		counters[key] = value
	}
	summary["counters"] = counters

	gauges := make(map[string]float64, len(mc.gauges))
	for key, value := range mc.gauges {
		gauges[key] = value
	}
	summary["gauges"] = gauges

	histograms := make(map[string]map[string]float64)
	for key, values := range mc.histograms {
		if len(values) == 0 {
			continue
		}
		histogram := map[string]float64{
			"count": float64(len(values)),
			"min":   values[0],
			"max":   values[0],
			"sum":   0,
		}
		for _, value := range values {
			if value < histogram["min"] {
				histogram["min"] = value
			}
			if value > histogram["max"] {
				histogram["max"] = value
			}
			histogram["sum"] += value
		}
		histogram["avg"] = histogram["sum"] / histogram["count"]
		histograms[key] = histogram
	}
	summary["histograms"] = histograms

	return summary
}

// makeKey creates a unique key for a metric name and labels
func (mc *MetricsCollector) makeKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	key := name
	for k, v := range labels {
		key += fmt.Sprintf("_%s_%s", k, v)
	}
	return key
}

// updateMetric updates or creates a metric
func (mc *MetricsCollector) updateMetric(name string, metricType MetricType, value float64, labels map[string]string) {
	key := mc.makeKey(name, labels)

	mc.metrics[key] = &Metric{
		Name:      name,
		Type:      metricType,
		Value:     value,
		Labels:    labels,
		Timestamp: time.Now(),
	}
}

// Predefined metric names
const (
	MetricAuctionsCreated    = "auctions_created"
	MetricBidsSubmitted      = "bids_submitted"
	MetricAuctionsFinalized  = "auctions_finalized"
	MetricSettlementsSkipped = "settlements_skipped"
	MetricLedgerDeposits     = "ledger_deposits"
	MetricLedgerWithdrawals  = "ledger_withdrawals"
	MetricCoprocessorOps     = "coprocessor_ops"
	MetricSystemUptime       = "system_uptime_seconds"
)

// ObserveBus subscribes the collector to the engine event bus so every
// domain event increments the matching counter.
func (mc *MetricsCollector) ObserveBus(bus *events.Bus) {
	bus.Subscribe(func(e events.Event) {
		switch e.Type {
		case events.TypeAuctionCreated:
			mc.IncrementCounter(MetricAuctionsCreated, nil)
		case events.TypeBidSubmitted:
			mc.IncrementCounter(MetricBidsSubmitted, nil)
		case events.TypeAuctionFinalized:
			mc.IncrementCounter(MetricAuctionsFinalized, nil)
		case events.TypeSettlementSkipped:
			mc.IncrementCounter(MetricSettlementsSkipped, nil)
		case events.TypeDeposit:
			mc.IncrementCounter(MetricLedgerDeposits, nil)
		case events.TypeWithdraw:
			mc.IncrementCounter(MetricLedgerWithdrawals, nil)
		}
	})
}

// RecordUptime refreshes the uptime gauge.
func (mc *MetricsCollector) RecordUptime(start time.Time) {
	mc.SetGauge(MetricSystemUptime, time.Since(start).Seconds(), nil)
}

// RecordCoprocessorOps refreshes the homomorphic operation counter gauge.
func (mc *MetricsCollector) RecordCoprocessorOps(ops uint64) {
	mc.SetGauge(MetricCoprocessorOps, float64(ops), nil)
}

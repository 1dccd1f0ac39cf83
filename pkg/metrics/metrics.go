package metrics

import (
	"sort"
	"strings"
	"sync"
)

// Collector captures counters, gauges and histograms.
type Collector interface {
	IncCounter(name string, labels map[string]string, delta float64)
	SetGauge(name string, labels map[string]string, value float64)
	ObserveHistogram(name string, labels map[string]string, value float64)
}

// Noop discards every observation. Used where no collector is configured.
type Noop struct{}

func (Noop) IncCounter(string, map[string]string, float64)       {}
func (Noop) SetGauge(string, map[string]string, float64)         {}
func (Noop) ObserveHistogram(string, map[string]string, float64) {}

// InMemory is a Collector backed by plain maps, exposed through the node's
// /metrics endpoint. Histograms are collapsed to count and sum.
type InMemory struct {
	mu         sync.Mutex
	counters   map[string]float64
	gauges     map[string]float64
	histCounts map[string]uint64
	histSums   map[string]float64
}

func NewInMemory() *InMemory {
	return &InMemory{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histCounts: make(map[string]uint64),
		histSums:   make(map[string]float64),
	}
}

func (c *InMemory) IncCounter(name string, labels map[string]string, delta float64) {
	key := seriesKey(name, labels)
	c.mu.Lock()
	c.counters[key] += delta
	c.mu.Unlock()
}

func (c *InMemory) SetGauge(name string, labels map[string]string, value float64) {
	key := seriesKey(name, labels)
	c.mu.Lock()
	c.gauges[key] = value
	c.mu.Unlock()
}

func (c *InMemory) ObserveHistogram(name string, labels map[string]string, value float64) {
	key := seriesKey(name, labels)
	c.mu.Lock()
	c.histCounts[key]++
	c.histSums[key] += value
	c.mu.Unlock()
}

// Snapshot returns a flat copy of every series, keyed by name{label=value,...}.
func (c *InMemory) Snapshot() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]float64, len(c.counters)+len(c.gauges)+2*len(c.histCounts))
	for k, v := range c.counters {
		out[k] = v
	}
	for k, v := range c.gauges {
		out[k] = v
	}
	for k, n := range c.histCounts {
		out[k+"_count"] = float64(n)
		out[k+"_sum"] = c.histSums[k]
	}
	return out
}

func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

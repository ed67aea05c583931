// Package stats provides a minimal set of instrument interfaces backed
// by go-metrics. We wrap go-metrics so the backing registry never leaks
// to anyone pulling this module in as a library, and so a StatsReceiver
// can be passed down a call tree and scoped at each level.
package stats

import (
	"strings"
	"time"

	"github.com/rcrowley/go-metrics"
)

// Hierarchical instrument names use '/' as the path separator. Variadic
// name elements with embedded '/' characters have them replaced rather
// than rejected, since counter names are sometimes built from dynamic
// strings like error text.
const scopeSeparator = "/"

type Counter interface {
	Inc(int64)
	Count() int64
}

type Gauge interface {
	Update(int64)
	Value() int64
}

type Latency interface {
	Update(time.Duration)
	UpdateSince(time.Time)
}

// StatsReceiver produces scoped instruments. Implementations must be
// safe for concurrent use.
type StatsReceiver interface {
	// Scope returns a receiver prefixed with the given path elements.
	Scope(scope ...string) StatsReceiver

	Counter(name ...string) Counter
	Gauge(name ...string) Gauge
	Latency(name ...string) Latency
}

// DefaultStatsReceiver returns a receiver over a fresh go-metrics
// registry.
func DefaultStatsReceiver() StatsReceiver {
	return &defaultStatsReceiver{registry: metrics.NewRegistry()}
}

// CurrentStatsReceiver is referenced by code that isn't handed an
// explicit receiver. Defaults to a no-op.
var CurrentStatsReceiver StatsReceiver = NilStatsReceiver()

type defaultStatsReceiver struct {
	registry metrics.Registry
	scope    []string
}

func (s *defaultStatsReceiver) Scope(scope ...string) StatsReceiver {
	return &defaultStatsReceiver{
		registry: s.registry,
		scope:    append(append([]string{}, s.scope...), scope...),
	}
}

func (s *defaultStatsReceiver) Counter(name ...string) Counter {
	return s.registry.GetOrRegister(s.scoped(name), metrics.NewCounter).(metrics.Counter)
}

func (s *defaultStatsReceiver) Gauge(name ...string) Gauge {
	return s.registry.GetOrRegister(s.scoped(name), metrics.NewGauge).(metrics.Gauge)
}

func (s *defaultStatsReceiver) Latency(name ...string) Latency {
	return s.registry.GetOrRegister(s.scoped(name), func() metrics.Timer { return metrics.NewTimer() }).(metrics.Timer)
}

func (s *defaultStatsReceiver) scoped(name []string) string {
	elems := make([]string, 0, len(s.scope)+len(name))
	for _, e := range append(append([]string{}, s.scope...), name...) {
		elems = append(elems, strings.Replace(e, scopeSeparator, "_SLASH_", -1))
	}
	return strings.Join(elems, scopeSeparator)
}

// NilStatsReceiver returns a receiver whose instruments discard all
// updates.
func NilStatsReceiver() StatsReceiver {
	return nilStatsReceiver{}
}

type nilStatsReceiver struct{}

func (nilStatsReceiver) Scope(scope ...string) StatsReceiver { return nilStatsReceiver{} }
func (nilStatsReceiver) Counter(name ...string) Counter      { return nilCounter{} }
func (nilStatsReceiver) Gauge(name ...string) Gauge          { return nilGauge{} }
func (nilStatsReceiver) Latency(name ...string) Latency      { return nilLatency{} }

type nilCounter struct{}

func (nilCounter) Inc(int64)    {}
func (nilCounter) Count() int64 { return 0 }

type nilGauge struct{}

func (nilGauge) Update(int64) {}
func (nilGauge) Value() int64 { return 0 }

type nilLatency struct{}

func (nilLatency) Update(time.Duration)  {}
func (nilLatency) UpdateSince(time.Time) {}

// Package telemetry wraps github.com/hashicorp/go-metrics the way
// nomad's client subsystems do: a small set of package-level counters
// and gauges fed from an in-memory sink unless the embedding process
// installs its own global sink first.
package telemetry

import (
	"sync"

	metrics "github.com/hashicorp/go-metrics"
)

var setupOnce sync.Once

// Init installs a process-wide in-memory metrics sink under the given
// service name if one has not already been installed. It is safe to
// call from multiple packages' init paths; only the first call takes
// effect.
func Init(service string) {
	setupOnce.Do(func() {
		cfg := metrics.DefaultConfig(service)
		cfg.EnableHostname = false
		sink := metrics.NewInmemSink(10_000_000_000, 300_000_000_000)
		metrics.NewGlobal(cfg, sink)
	})
}

// IncrCounter increments a named counter by delta.
func IncrCounter(key []string, delta float32) {
	metrics.IncrCounter(key, delta)
}

// SetGauge sets a named gauge to val.
func SetGauge(key []string, val float32) {
	metrics.SetGauge(key, val)
}

// AddSample records a single observation under key, e.g. an elapsed
// duration in seconds.
func AddSample(key []string, val float32) {
	metrics.AddSample(key, val)
}

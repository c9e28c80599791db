package report

import (
	"sync"
)

// registry is a process-wide map from DSN string to its associated Aggregator.
// The Client is the only component that creates aggregators; transports only
// fetch existing ones, so both sides observe the same counters without a
// direct reference to each other.
var registry struct {
	mu          sync.RWMutex
	aggregators map[string]*Aggregator
}

// nolint:gochecknoinits
func init() {
	registry.aggregators = make(map[string]*Aggregator)
}

// GetAggregator returns the existing Aggregator for a DSN, or nil if none
// exists.
func GetAggregator(dsn string) *Aggregator {
	if dsn == "" {
		return nil
	}

	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return registry.aggregators[dsn]
}

// GetOrCreateAggregator returns the existing Aggregator for a DSN, or creates
// a new one if none exists. Only the Client should call this; other components
// should use GetAggregator.
func GetOrCreateAggregator(dsn string) *Aggregator {
	if dsn == "" {
		return nil
	}

	registry.mu.RLock()
	if agg, exists := registry.aggregators[dsn]; exists {
		registry.mu.RUnlock()
		return agg
	}
	registry.mu.RUnlock()

	registry.mu.Lock()
	defer registry.mu.Unlock()

	// Double-check after acquiring write lock
	if agg, exists := registry.aggregators[dsn]; exists {
		return agg
	}

	agg := NewAggregator()
	registry.aggregators[dsn] = agg
	return agg
}

// UnregisterAggregator removes the Aggregator for a DSN from the registry.
func UnregisterAggregator(dsn string) {
	if dsn == "" {
		return
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()
	delete(registry.aggregators, dsn)
}

// ClearRegistry removes all registered aggregators.
func ClearRegistry() {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.aggregators = make(map[string]*Aggregator)
}

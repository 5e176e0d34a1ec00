// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

package routing

import "time"

// Metric names for the opaque counters/timers the manager drives. The
// sinks themselves are out of scope (spec §1); Metrics is the seam a real
// metrics backend plugs into.
const (
	MetricLLCQueryCount          = "LLC_QUERY_COUNT"
	MetricHLCQueryCount          = "HLC_QUERY_COUNT"
	MetricRebuildFailures        = "ROUTING_TABLE_REBUILD_FAILURES"
	MetricRoutingTableUpdateTime = "ROUTING_TABLE_UPDATE_TIME"
)

// Metrics is the narrow counter/timer sink the manager reports through.
type Metrics interface {
	IncrCounter(name string, table TableName)
	ObserveTimer(name string, table TableName, d time.Duration)
}

// NoopMetrics discards everything; the default when no sink is wired.
type NoopMetrics struct{}

func (NoopMetrics) IncrCounter(string, TableName)                 {}
func (NoopMetrics) ObserveTimer(string, TableName, time.Duration) {}

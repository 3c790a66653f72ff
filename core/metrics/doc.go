// Package metrics defines the sink interfaces the fleet reports to. A sink
// records command outcomes and may implement optional recorders for
// discoveries, vehicle snapshots, uploads and fleet size. Several sinks
// combine through MultiSink, which NewMetricsSink builds when more than
// one sink is configured.
package metrics

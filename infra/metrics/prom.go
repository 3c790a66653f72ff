package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/skylink/core/metrics"
)

// PromSink records fleet events in Prometheus metrics.
type PromSink struct {
	commands   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	discovered *prometheus.CounterVec
	uploads    *prometheus.CounterVec
	battery    *prometheus.GaugeVec
	connected  *prometheus.GaugeVec
	fleet      prometheus.Gauge
}

// NewPromSink registers the sink metrics on the default registerer. The
// HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gcs_commands_total",
			Help: "Commands sent to vehicles, by kind and outcome",
		}, []string{"sys_id", "kind", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gcs_command_latency_seconds",
			Help:    "Time from command start to its outcome",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind", "outcome"}),
		discovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gcs_vehicle_discoveries_total",
			Help: "Vehicles discovered, by link",
		}, []string{"link"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gcs_mission_uploads_total",
			Help: "Mission uploads, by vehicle and result",
		}, []string{"sys_id", "result"}),
		battery: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gcs_vehicle_battery_percent",
			Help: "Last reported battery level",
		}, []string{"sys_id"}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gcs_vehicle_connected",
			Help: "1 while the vehicle heartbeat is fresh",
		}, []string{"sys_id"}),
		fleet: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gcs_fleet_vehicles",
			Help: "Number of known vehicles",
		}),
	}
	var err error
	if s.commands, err = register(reg, s.commands); err != nil {
		return nil, err
	}
	if s.latency, err = register(reg, s.latency); err != nil {
		return nil, err
	}
	if s.discovered, err = register(reg, s.discovered); err != nil {
		return nil, err
	}
	if s.uploads, err = register(reg, s.uploads); err != nil {
		return nil, err
	}
	if s.battery, err = register(reg, s.battery); err != nil {
		return nil, err
	}
	if s.connected, err = register(reg, s.connected); err != nil {
		return nil, err
	}
	if s.fleet, err = register(reg, s.fleet); err != nil {
		return nil, err
	}
	return s, nil
}

// register returns the already registered collector when an identical one
// exists, so several sinks can share a registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func sysLabel(id uint8) string { return strconv.Itoa(int(id)) }

// RecordCommandResult counts the outcome and observes its latency.
func (s *PromSink) RecordCommandResult(ev coremetrics.CommandResultEvent) error {
	s.commands.WithLabelValues(sysLabel(ev.SysID), ev.Kind, ev.Outcome).Inc()
	s.latency.WithLabelValues(ev.Kind, ev.Outcome).Observe(ev.Latency.Seconds())
	return nil
}

// RecordDiscovery counts a new vehicle.
func (s *PromSink) RecordDiscovery(ev coremetrics.DiscoveryEvent) error {
	s.discovered.WithLabelValues(ev.Link).Inc()
	return nil
}

// RecordUpload counts a finished upload.
func (s *PromSink) RecordUpload(ev coremetrics.UploadEvent) error {
	s.uploads.WithLabelValues(sysLabel(ev.SysID), ev.Result).Inc()
	return nil
}

// RecordVehicleState updates the per-vehicle gauges.
func (s *PromSink) RecordVehicleState(ev coremetrics.VehicleStateEvent) error {
	id := sysLabel(ev.SysID)
	if ev.BatteryRemaining != nil {
		s.battery.WithLabelValues(id).Set(*ev.BatteryRemaining)
	}
	conn := 0.0
	if ev.Connected {
		conn = 1
	}
	s.connected.WithLabelValues(id).Set(conn)
	return nil
}

// RecordFleetSize sets the gauge to the number of known vehicles.
func (s *PromSink) RecordFleetSize(size int) error {
	if s.fleet != nil {
		s.fleet.Set(float64(size))
	}
	return nil
}

package fleet

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	vehiclesDiscovered *prometheus.CounterVec
	framesReceived     *prometheus.CounterVec
	readerErrors       *prometheus.CounterVec
	protocolStale      prometheus.Counter
	protocolDropped    prometheus.Counter
	itemResends        prometheus.Counter
	missionUploads     *prometheus.CounterVec
	uploadDuration     prometheus.Histogram
	commandResults     *prometheus.CounterVec
)

type collectors struct {
	discovered *prometheus.CounterVec
	frames     *prometheus.CounterVec
	readerErrs *prometheus.CounterVec
	stale      prometheus.Counter
	dropped    prometheus.Counter
	resends    prometheus.Counter
	uploads    *prometheus.CounterVec
	uploadDur  prometheus.Histogram
	commands   *prometheus.CounterVec
}

func newCollectors() collectors {
	return collectors{
		discovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_vehicles_discovered_total",
			Help: "Vehicles discovered, by link",
		}, []string{"link"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_frames_received_total",
			Help: "Decoded frames received, by message kind",
		}, []string{"kind"}),
		readerErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_reader_errors_total",
			Help: "Transient receive errors, by link",
		}, []string{"link"}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_protocol_stale_total",
			Help: "Mission protocol messages discarded because no upload was active",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_protocol_dropped_total",
			Help: "Mission protocol messages dropped because the queue was full",
		}),
		resends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_mission_item_resends_total",
			Help: "Mission items sent again after a repeated request",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_mission_uploads_total",
			Help: "Mission uploads, by terminal phase",
		}, []string{"result"}),
		uploadDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleet_mission_upload_duration_seconds",
			Help:    "Duration of mission uploads",
			Buckets: prometheus.DefBuckets,
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_command_results_total",
			Help: "Results of send_command calls, by kind and outcome",
		}, []string{"kind", "outcome"}),
	}
}

func (c collectors) install() {
	vehiclesDiscovered = c.discovered
	framesReceived = c.frames
	readerErrors = c.readerErrs
	protocolStale = c.stale
	protocolDropped = c.dropped
	itemResends = c.resends
	missionUploads = c.uploads
	uploadDuration = c.uploadDur
	commandResults = c.commands
}

func init() {
	newCollectors().install()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers the fleet collectors on reg, or on the
// default registerer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(vehiclesDiscovered, framesReceived, readerErrors, protocolStale,
		protocolDropped, itemResends, missionUploads, uploadDuration, commandResults)
}

// ResetMetrics recreates the collectors for tests and registers them on reg
// when it is not nil.
func ResetMetrics(reg prometheus.Registerer) {
	newCollectors().install()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}

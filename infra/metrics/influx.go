package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/skylink/core/metrics"
	"github.com/kilianp07/skylink/infra/logger"
)

// InfluxConfig locates an InfluxDB v2 bucket.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes fleet events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordCommandResult writes one command outcome.
func (s *InfluxSink) RecordCommandResult(ev coremetrics.CommandResultEvent) error {
	p := write.NewPointWithMeasurement("command_result").
		AddTag("sys_id", sysLabel(ev.SysID)).
		AddTag("kind", ev.Kind).
		AddTag("outcome", ev.Outcome).
		AddTag("link", ev.Link).
		AddField("command_id", ev.ID).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000))
	if ev.Error != "" {
		p = p.AddField("error", ev.Error)
	}
	return s.write(p.SetTime(ev.Time))
}

// RecordDiscovery writes the first sighting of a vehicle.
func (s *InfluxSink) RecordDiscovery(ev coremetrics.DiscoveryEvent) error {
	p := write.NewPointWithMeasurement("vehicle_discovered").
		AddTag("sys_id", sysLabel(ev.SysID)).
		AddTag("link", ev.Link).
		AddField("count", 1).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordVehicleState writes a snapshot of a vehicle. Unknown values are
// left out of the point.
func (s *InfluxSink) RecordVehicleState(ev coremetrics.VehicleStateEvent) error {
	p := write.NewPointWithMeasurement("vehicle_state").
		AddTag("sys_id", sysLabel(ev.SysID)).
		AddTag("mode", ev.Mode).
		AddField("armed", ev.Armed).
		AddField("connected", ev.Connected)
	opt := func(name string, v *float64, digits int) {
		if v != nil {
			p = p.AddField(name, roundTo(*v, digits))
		}
	}
	opt("lat", ev.Latitude, 7)
	opt("lon", ev.Longitude, 7)
	opt("alt_m", ev.Altitude, 3)
	opt("groundspeed_m_s", ev.Groundspeed, 3)
	opt("battery_pct", ev.BatteryRemaining, 3)
	opt("battery_v", ev.BatteryVoltage, 3)
	return s.write(p.SetTime(ev.Time))
}

// RecordUpload writes a finished mission upload.
func (s *InfluxSink) RecordUpload(ev coremetrics.UploadEvent) error {
	p := write.NewPointWithMeasurement("mission_upload").
		AddTag("sys_id", sysLabel(ev.SysID)).
		AddTag("result", ev.Result).
		AddField("items", ev.Items).
		AddField("path_m", round3(ev.PathM)).
		AddField("duration_ms", ev.Duration.Milliseconds()).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordFleetSize writes the number of known vehicles.
func (s *InfluxSink) RecordFleetSize(size int) error {
	p := write.NewPointWithMeasurement("fleet_size").
		AddField("vehicles", size).
		SetTime(time.Now())
	return s.write(p)
}

// Close releases the HTTP client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 { return roundTo(f, 3) }

func roundTo(f float64, digits int) float64 {
	p := math.Pow10(digits)
	return math.Round(f*p) / p
}

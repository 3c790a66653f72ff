package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/skylink/config"
	"github.com/kilianp07/skylink/core/fleet"
	"github.com/kilianp07/skylink/core/journal"
	coremetrics "github.com/kilianp07/skylink/core/metrics"
	"github.com/kilianp07/skylink/core/monitoring"
	"github.com/kilianp07/skylink/infra/logger"
	"github.com/kilianp07/skylink/infra/mavlink"
	"github.com/kilianp07/skylink/infra/metrics"
	inframon "github.com/kilianp07/skylink/infra/monitoring"
	"github.com/kilianp07/skylink/infra/mqtt"
	"github.com/kilianp07/skylink/internal/eventbus"
)

// NewCoordinator builds a coordinator speaking gomavlib on the configured
// links with the configured ground station identity.
func NewCoordinator(cfg *config.Config, opts ...fleet.Option) *fleet.Coordinator {
	opener := mavlink.NewOpener(mavlink.Options{
		SystemID:    uint8(cfg.GCS.SystemID),
		ComponentID: uint8(cfg.GCS.ComponentID),
		Version:     cfg.GCS.ProtocolVersion,
	}, logger.New("mavlink"))
	opts = append([]fleet.Option{fleet.WithGCSSystemID(uint8(cfg.GCS.SystemID))}, opts...)
	return fleet.NewCoordinator(cfg.Fleet, opener, cfg.Links, logger.New("fleet"), opts...)
}

// broker is the MQTT surface the service drives. *mqtt.PahoClient
// implements it.
type broker interface {
	mqtt.Broker
	Topics() mqtt.Topics
	Disconnect()
}

// Service runs the ground station: the fleet coordinator plus its
// metrics, journal, monitoring and MQTT surfaces.
type Service struct {
	Coordinator *fleet.Coordinator
	Bus         *eventbus.TypedBus[fleet.Event]

	cfg     *config.Config
	sink    coremetrics.MetricsSink
	journal journal.Store
	monitor monitoring.Monitor
	mqtt    broker
	log     logger.Logger
}

// New creates a Service from the configuration. The MQTT client connects
// here so a wrong broker fails fast.
func New(cfg *config.Config) (*Service, error) {
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logg := logger.New("service")

	monitor, err := inframon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, err
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	store, err := journal.Open(cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}

	svc := &Service{
		Bus:     eventbus.NewTyped[fleet.Event](),
		cfg:     cfg,
		sink:    sink,
		journal: store,
		monitor: monitor,
		log:     logg,
	}
	svc.Coordinator = NewCoordinator(cfg,
		fleet.WithEventBus(svc.Bus),
		fleet.WithMetricsSink(sink),
		fleet.WithJournal(store),
		fleet.WithMonitor(monitor),
	)

	if cfg.MQTT.Enabled {
		client, err := mqtt.NewPahoClient(cfg.MQTT, logger.New("mqtt"), monitor)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		svc.mqtt = client
	}
	return svc, nil
}

// Run starts every component and blocks until ctx is canceled or one of
// them fails.
func (s *Service) Run(ctx context.Context) error {
	defer s.monitor.Recover()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	if err := s.Coordinator.Start(gctx); err != nil {
		return fmt.Errorf("start fleet: %w", err)
	}

	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		g.Go(func() error {
			return metrics.StartPromServer(gctx, addr, nil, logger.New("prometheus"))
		})
	}
	if sec := s.cfg.Metrics.StateIntervalSeconds; sec > 0 {
		metrics.StartStateCollector(gctx, s.Coordinator, s.sink, time.Duration(sec)*time.Second)
	}

	var intake *mqtt.CommandIntake
	if s.mqtt != nil {
		topics := s.mqtt.Topics()
		pub := mqtt.NewStatusPublisher(s.mqtt, topics, s.Coordinator, s.Bus,
			time.Duration(s.cfg.MQTT.StatusIntervalMS)*time.Millisecond, logger.New("mqtt_status"))
		g.Go(func() error { return pub.Run(gctx) })

		intake = mqtt.NewCommandIntake(s.mqtt, topics, s.Coordinator, logger.New("mqtt_commands"))
		if err := intake.Start(gctx); err != nil {
			cancel()
			_ = g.Wait()
			s.Coordinator.Stop()
			return fmt.Errorf("mqtt commands: %w", err)
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		s.Coordinator.Stop()
		if intake != nil {
			intake.Wait()
		}
		return nil
	})
	s.log.Infof("ground station running on %d link(s)", len(s.cfg.Links))
	return g.Wait()
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	s.Bus.Close()
	s.monitor.Flush(2 * time.Second)
	return s.journal.Close()
}

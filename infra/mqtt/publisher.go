package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/kilianp07/skylink/core/fleet"
	"github.com/kilianp07/skylink/core/logger"
	"github.com/kilianp07/skylink/internal/eventbus"
)

// Publisher is the publishing half of PahoClient.
type Publisher interface {
	Publish(topic, key string, retained bool, payload []byte) error
}

// SnapshotSource yields the current fleet view.
type SnapshotSource interface {
	Snapshot() map[uint8]fleet.Status
}

// StatusPublisher fans the fleet out to MQTT: the retained status of every
// vehicle on a fixed period, and each bus event as it happens.
type StatusPublisher struct {
	pub      Publisher
	topics   Topics
	src      SnapshotSource
	bus      *eventbus.TypedBus[fleet.Event]
	interval time.Duration
	log      logger.Logger
}

// NewStatusPublisher creates a publisher. bus may be nil.
func NewStatusPublisher(pub Publisher, topics Topics, src SnapshotSource, bus *eventbus.TypedBus[fleet.Event], interval time.Duration, log logger.Logger) *StatusPublisher {
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &StatusPublisher{pub: pub, topics: topics, src: src, bus: bus, interval: interval, log: log}
}

// Run publishes until ctx is done.
func (s *StatusPublisher) Run(ctx context.Context) error {
	var events <-chan fleet.Event
	if s.bus != nil {
		sub := s.bus.SubscribeN(64)
		defer s.bus.Unsubscribe(sub)
		events = sub
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.PublishSnapshot(); err != nil {
				s.log.Warnf("status publish: %v", err)
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := s.PublishEvent(ev); err != nil {
				s.log.Warnf("event publish: %v", err)
			}
		}
	}
}

// PublishSnapshot sends the retained status of every known vehicle.
func (s *StatusPublisher) PublishSnapshot() error {
	snap := s.src.Snapshot()
	ids := make([]uint8, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	var errs []error
	for _, id := range ids {
		payload, err := json.Marshal(snap[id])
		if err != nil {
			errs = append(errs, fmt.Errorf("encode status %d: %w", id, err))
			continue
		}
		if err := s.pub.Publish(s.topics.Status(id), "status", true, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishEvent sends one fleet event.
func (s *StatusPublisher) PublishEvent(ev fleet.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return s.pub.Publish(s.topics.Events(), "event", false, payload)
}

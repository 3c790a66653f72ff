package metrics

import "errors"

// MultiSink fans events out to several sinks. Optional recorders are
// forwarded only to the sinks that implement them.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordCommandResult forwards the event to all sinks. Every sink is
// called; the errors are joined.
func (m *MultiSink) RecordCommandResult(ev CommandResultEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordCommandResult(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordDiscovery forwards discovery events.
func (m *MultiSink) RecordDiscovery(ev DiscoveryEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(DiscoveryRecorder); ok {
			if err := rec.RecordDiscovery(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordVehicleState forwards vehicle snapshots.
func (m *MultiSink) RecordVehicleState(ev VehicleStateEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(VehicleStateRecorder); ok {
			if err := rec.RecordVehicleState(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordUpload forwards upload summaries.
func (m *MultiSink) RecordUpload(ev UploadEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(UploadRecorder); ok {
			if err := rec.RecordUpload(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordFleetSize forwards fleet size metrics when supported by the sink.
func (m *MultiSink) RecordFleetSize(size int) error {
	var errs []error
	for _, s := range m.Sinks {
		if fr, ok := s.(FleetSizeRecorder); ok {
			if err := fr.RecordFleetSize(size); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that holds resources.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}

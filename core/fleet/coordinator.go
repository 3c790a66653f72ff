package fleet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/skylink/core/journal"
	"github.com/kilianp07/skylink/core/logger"
	coremetrics "github.com/kilianp07/skylink/core/metrics"
	"github.com/kilianp07/skylink/core/mission"
	"github.com/kilianp07/skylink/core/monitoring"
	"github.com/kilianp07/skylink/core/protocol"
	"github.com/kilianp07/skylink/core/transport"
	"github.com/kilianp07/skylink/internal/eventbus"
)

const readerBackoff = 100 * time.Millisecond

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithConnections hands already opened links to the coordinator. They are
// used by the first Start instead of opening the configured URIs.
func WithConnections(conns ...transport.Connection) Option {
	return func(c *Coordinator) { c.preset = append(c.preset, conns...) }
}

// WithGCSSystemID ignores frames carrying our own system id.
func WithGCSSystemID(id uint8) Option {
	return func(c *Coordinator) { c.gcsID = id }
}

// WithEventBus publishes discoveries, command results and upload phases.
func WithEventBus(bus *eventbus.TypedBus[Event]) Option {
	return func(c *Coordinator) { c.bus = bus }
}

// WithMetricsSink reports command results and fleet changes to sink.
func WithMetricsSink(sink coremetrics.MetricsSink) Option {
	return func(c *Coordinator) {
		if sink != nil {
			c.sink = sink
		}
	}
}

// WithJournal appends every command outcome to store.
func WithJournal(store journal.Store) Option {
	return func(c *Coordinator) {
		if store != nil {
			c.journal = store
		}
	}
}

// WithMonitor reports command failures and reader panics.
func WithMonitor(m monitoring.Monitor) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.monitor = m
		}
	}
}

// Coordinator discovers vehicles on its links, keeps one Agent per system
// id and routes commands through the link that first heard the vehicle.
type Coordinator struct {
	cfg    Config
	opener transport.Opener
	uris   []string
	preset []transport.Connection
	gcsID  uint8
	log    logger.Logger

	bus     *eventbus.TypedBus[Event]
	sink    coremetrics.MetricsSink
	journal journal.Store
	monitor monitoring.Monitor

	// mu guards everything below, including the routes so discovery and
	// command dispatch agree on the owning link.
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	readers *sync.WaitGroup
	conns   []transport.Connection
	agents  map[uint8]*Agent
	routes  map[uint8]transport.Connection
}

// NewCoordinator returns a stopped coordinator for the given connection
// strings.
func NewCoordinator(cfg Config, opener transport.Opener, uris []string, log logger.Logger, opts ...Option) *Coordinator {
	if log == nil {
		log = logger.NopLogger{}
	}
	c := &Coordinator{
		cfg:     cfg,
		opener:  opener,
		uris:    append([]string(nil), uris...),
		log:     log,
		sink:    coremetrics.NopSink{},
		journal: journal.NopStore{},
		monitor: monitoring.NopMonitor{},
		agents:  make(map[uint8]*Agent),
		routes:  make(map[uint8]transport.Connection),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start opens the links and launches one reader per link. Readers stop
// when ctx is done or Stop is called.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	preset := c.preset
	c.preset = nil
	c.mu.Unlock()

	conns := preset
	if len(conns) == 0 {
		var err error
		if conns, err = c.openLinks(ctx); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		closeAll(conns, c.log)
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	c.conns = conns
	c.readers = &sync.WaitGroup{}
	for _, conn := range conns {
		c.readers.Add(1)
		go c.readLoop(runCtx, c.readers, conn)
	}
	c.log.Infof("fleet coordinator started on %d link(s)", len(conns))
	return nil
}

func (c *Coordinator) openLinks(ctx context.Context) ([]transport.Connection, error) {
	if len(c.uris) == 0 || c.opener == nil {
		return nil, ErrNoLinks
	}
	conns := make([]transport.Connection, len(c.uris))
	g, gctx := errgroup.WithContext(ctx)
	for i, uri := range c.uris {
		g.Go(func() error {
			conn, err := c.opener.Open(gctx, uri)
			if err != nil {
				return &TransportError{Link: uri, Op: "open", Err: err}
			}
			conns[i] = conn
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		closeAll(conns, c.log)
		return nil, err
	}
	return conns, nil
}

func (c *Coordinator) readLoop(ctx context.Context, wg *sync.WaitGroup, conn transport.Connection) {
	defer wg.Done()
	defer c.monitor.Recover()
	for {
		if ctx.Err() != nil {
			return
		}
		f, err := conn.Receive(c.cfg.ReadTimeout())
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
				c.log.Infof("reader for %s stopped", conn.Name())
				return
			}
			terr := &TransportError{Link: conn.Name(), Op: "receive", Err: err}
			c.log.Warnf("%v", terr)
			readerErrors.WithLabelValues(conn.Name()).Inc()
			if !sleepCtx(ctx, readerBackoff) {
				return
			}
			continue
		}
		if f == nil || f.Message == nil {
			continue
		}
		c.dispatch(conn, f)
	}
}

func (c *Coordinator) dispatch(conn transport.Connection, f *protocol.Frame) {
	if f.SystemID == 0 || (c.gcsID != 0 && f.SystemID == c.gcsID) {
		return
	}
	framesReceived.WithLabelValues(string(f.Message.Kind())).Inc()
	agent, created := c.agentFor(f.SystemID, conn)
	if agent == nil {
		return
	}
	if created {
		c.discovered(agent, conn)
	}
	agent.Update(f)
}

// agentFor resolves the agent of sysID, creating it bound to conn when the
// vehicle is new. The first link to hear a vehicle keeps the route.
func (c *Coordinator) agentFor(sysID uint8, conn transport.Connection) (*Agent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil, false
	}
	if a, ok := c.agents[sysID]; ok {
		return a, false
	}
	a := NewAgent(sysID, conn, c.cfg, c.vehicleLogger(sysID))
	a.notify = c.publish
	c.agents[sysID] = a
	c.routes[sysID] = conn
	return a, true
}

func (c *Coordinator) vehicleLogger(sysID uint8) logger.Logger {
	if sl, ok := c.log.(logger.StructuredLogger); ok {
		return sl.With(map[string]any{"sys_id": sysID})
	}
	return c.log
}

func (c *Coordinator) discovered(a *Agent, conn transport.Connection) {
	now := time.Now()
	vehiclesDiscovered.WithLabelValues(conn.Name()).Inc()
	c.log.Infof("discovered vehicle sys %d on %s", a.sysID, conn.Name())
	c.publish(Event{Kind: EventVehicleDiscovered, SysID: a.sysID, Link: conn.Name(), Time: now})
	if rec, ok := c.sink.(coremetrics.DiscoveryRecorder); ok {
		if err := rec.RecordDiscovery(coremetrics.DiscoveryEvent{SysID: a.sysID, Link: conn.Name(), Time: now}); err != nil {
			c.log.Warnf("record discovery: %v", err)
		}
	}
	if rec, ok := c.sink.(coremetrics.FleetSizeRecorder); ok {
		if err := rec.RecordFleetSize(c.Len()); err != nil {
			c.log.Warnf("record fleet size: %v", err)
		}
	}
	if rate := c.cfg.StreamRate(); rate > 0 {
		if err := a.RequestDataStreams(rate); err != nil {
			c.log.Warnf("request data streams from sys %d: %v", a.sysID, err)
		}
	}
}

func (c *Coordinator) publish(ev Event) {
	if c.bus != nil {
		c.bus.Publish(ev)
	}
}

// Agent returns the agent of sysID.
func (c *Coordinator) Agent(sysID uint8) (*Agent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.agents[sysID]
	return a, ok
}

// Route returns the link that first observed sysID.
func (c *Coordinator) Route(sysID uint8) (transport.Connection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, ok := c.routes[sysID]
	return conn, ok
}

// Len returns the number of known vehicles.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.agents)
}

// SystemIDs returns the known system ids in ascending order.
func (c *Coordinator) SystemIDs() []uint8 {
	c.mu.Lock()
	ids := make([]uint8, 0, len(c.agents))
	for id := range c.agents {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot returns a copy of every vehicle status. A vehicle silent for
// longer than the link loss timeout is reported disconnected but stays
// listed.
func (c *Coordinator) Snapshot() map[uint8]Status {
	c.mu.Lock()
	agents := make([]*Agent, 0, len(c.agents))
	for _, a := range c.agents {
		agents = append(agents, a)
	}
	c.mu.Unlock()

	now := time.Now()
	out := make(map[uint8]Status, len(agents))
	for _, a := range agents {
		st := a.Status()
		if st.Connected && now.Sub(st.LastHeartbeat) > c.cfg.LinkLossTimeout() {
			st.Connected = false
		}
		out[a.sysID] = st
	}
	return out
}

// SendCommand runs kind on the vehicle sysID through the link that
// discovered it. The result is the bool of arm_and_start_mission and nil
// for the other kinds.
func (c *Coordinator) SendCommand(ctx context.Context, sysID uint8, kind CommandKind, params map[string]any) (any, error) {
	agent, ok := c.Agent(sysID)
	if !ok {
		return nil, fmt.Errorf("%w: sys_id %d", ErrUnknownVehicle, sysID)
	}
	start := time.Now()
	result, err := c.execute(ctx, agent, kind, params)
	c.recordCommand(ctx, agent, kind, params, result, err, time.Since(start))
	return result, err
}

func (c *Coordinator) execute(ctx context.Context, agent *Agent, kind CommandKind, params map[string]any) (any, error) {
	switch kind {
	case CmdUploadMission:
		var p UploadParams
		if err := decodeParams(kind, params, &p); err != nil {
			return nil, err
		}
		items, err := p.Items()
		if err != nil {
			return nil, err
		}
		return nil, c.upload(ctx, agent, items)
	case CmdArmAndStartMission:
		var p StartParams
		if err := decodeParams(kind, params, &p); err != nil {
			return nil, err
		}
		return agent.ArmAndStart(ctx, p.Altitude()), nil
	case CmdSetMode:
		var p ModeParams
		if err := decodeParams(kind, params, &p); err != nil {
			return nil, err
		}
		if p.Mode == "" {
			return nil, fmt.Errorf("%s params: mode is required", kind)
		}
		return nil, agent.SetMode(ctx, p.Mode)
	case CmdArm:
		return nil, agent.Arm(ctx)
	case CmdDisarm:
		return nil, agent.Disarm(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCommand, kind)
	}
}

func (c *Coordinator) upload(ctx context.Context, agent *Agent, items []mission.Item) error {
	sum := mission.Summarize(items)
	c.log.Infof("uploading %d items (%d waypoints, %.0f m, max alt %.1f m) to sys %d",
		sum.Items, sum.NavPoints, sum.PathM, sum.MaxAltM, agent.sysID)
	start := time.Now()
	err := agent.Upload(ctx, items)
	if rec, ok := c.sink.(coremetrics.UploadRecorder); ok {
		ev := coremetrics.UploadEvent{
			SysID:    agent.sysID,
			Items:    sum.Items,
			PathM:    sum.PathM,
			Result:   uploadResult(err),
			Duration: time.Since(start),
			Time:     time.Now(),
		}
		if rerr := rec.RecordUpload(ev); rerr != nil {
			c.log.Warnf("record upload: %v", rerr)
		}
	}
	return err
}

// CommandOutcome classifies a SendCommand result as a journal outcome.
func CommandOutcome(result any, err error) string {
	if err != nil {
		return journal.OutcomeError
	}
	if ok, isBool := result.(bool); isBool && !ok {
		return journal.OutcomeFailed
	}
	return journal.OutcomeOK
}

func (c *Coordinator) recordCommand(ctx context.Context, agent *Agent, kind CommandKind, params map[string]any, result any, err error, took time.Duration) {
	now := time.Now()
	outcome := CommandOutcome(result, err)
	errText := ""
	if err != nil {
		errText = err.Error()
	}
	id := uuid.NewString()

	rec := journal.Record{
		ID:         id,
		Timestamp:  now,
		SysID:      agent.sysID,
		Link:       agent.link.Name(),
		Kind:       string(kind),
		Params:     params,
		Outcome:    outcome,
		Error:      errText,
		DurationMS: took.Milliseconds(),
	}
	if jerr := c.journal.Append(context.WithoutCancel(ctx), rec); jerr != nil {
		c.log.Warnf("journal append: %v", jerr)
	}

	commandResults.WithLabelValues(string(kind), outcome).Inc()
	if serr := c.sink.RecordCommandResult(coremetrics.CommandResultEvent{
		ID:      id,
		SysID:   agent.sysID,
		Link:    agent.link.Name(),
		Kind:    string(kind),
		Outcome: outcome,
		Error:   errText,
		Latency: took,
		Time:    now,
	}); serr != nil {
		c.log.Warnf("record command result: %v", serr)
	}
	c.publish(Event{
		Kind:    EventCommandResult,
		SysID:   agent.sysID,
		Link:    agent.link.Name(),
		Command: kind,
		Outcome: outcome,
		Error:   errText,
		Latency: took,
		Time:    now,
	})
	if err != nil {
		c.monitor.CaptureException(err, map[string]string{
			"sys_id": strconv.Itoa(int(agent.sysID)),
			"kind":   string(kind),
		})
	}
}

// Stop ends the readers, closes the links and forgets every vehicle so a
// later Start begins clean. It is safe to call more than once.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel, readers, conns := c.cancel, c.readers, c.conns
	c.mu.Unlock()

	cancel()
	done := make(chan struct{})
	go func() {
		readers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.cfg.StopTimeout()):
		c.log.Warnf("readers did not stop within %s", c.cfg.StopTimeout())
	}
	closeAll(conns, c.log)

	c.mu.Lock()
	c.conns = nil
	c.agents = make(map[uint8]*Agent)
	c.routes = make(map[uint8]transport.Connection)
	c.mu.Unlock()
	c.log.Infof("fleet coordinator stopped")
}

func closeAll(conns []transport.Connection, log logger.Logger) {
	for _, conn := range conns {
		if conn == nil {
			continue
		}
		if err := conn.Close(); err != nil {
			log.Warnf("close %s: %v", conn.Name(), err)
		}
	}
}

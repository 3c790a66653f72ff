package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/skylink/core/fleet"
	"github.com/kilianp07/skylink/core/logger"
)

// Broker is what the command intake needs from the MQTT client.
type Broker interface {
	Publisher
	Subscribe(topic, key string, h Handler) error
}

// CommandSender executes fleet commands. *fleet.Coordinator implements it.
type CommandSender interface {
	SendCommand(ctx context.Context, sysID uint8, kind fleet.CommandKind, params map[string]any) (any, error)
}

// CommandRequest is the payload accepted on <prefix>/vehicle/<id>/command.
type CommandRequest struct {
	CommandID string         `json:"command_id"`
	Kind      string         `json:"kind"`
	Params    map[string]any `json:"params"`
}

// CommandResult is published on <prefix>/vehicle/<id>/command/result.
type CommandResult struct {
	CommandID  string    `json:"command_id"`
	SysID      uint8     `json:"sys_id"`
	Kind       string    `json:"kind"`
	Outcome    string    `json:"outcome"`
	Result     any       `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Time       time.Time `json:"time"`
}

// CommandIntake runs commands received over MQTT. Each command executes on
// its own goroutine so a long upload never blocks the client's callbacks.
type CommandIntake struct {
	broker Broker
	topics Topics
	sender CommandSender
	log    logger.Logger

	ctx context.Context

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewCommandIntake creates an intake. Call Start to subscribe.
func NewCommandIntake(broker Broker, topics Topics, sender CommandSender, log logger.Logger) *CommandIntake {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &CommandIntake{broker: broker, topics: topics, sender: sender, log: log}
}

// Start subscribes to the command topic of every vehicle. Commands run
// under ctx.
func (ci *CommandIntake) Start(ctx context.Context) error {
	ci.ctx = ctx
	return ci.broker.Subscribe(ci.topics.CommandWildcard(), "command", ci.handle)
}

// Wait stops accepting commands and blocks until every running command has
// published its result.
func (ci *CommandIntake) Wait() {
	ci.mu.Lock()
	ci.stopped = true
	ci.mu.Unlock()
	ci.wg.Wait()
}

func (ci *CommandIntake) handle(topic string, payload []byte) {
	sysID, err := ci.sysIDFromTopic(topic)
	if err != nil {
		ci.log.Warnf("command on %s: %v", topic, err)
		return
	}
	var req CommandRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		ci.log.Warnf("decode command for sys %d: %v", sysID, err)
		return
	}
	if req.Kind == "" {
		ci.log.Warnf("command for sys %d without kind", sysID)
		return
	}
	if req.CommandID == "" {
		req.CommandID = uuid.NewString()
	}
	ci.mu.Lock()
	defer ci.mu.Unlock()
	if ci.stopped || ci.ctx.Err() != nil {
		ci.log.Warnf("station stopping, dropping command %s for sys %d", req.CommandID, sysID)
		return
	}
	ci.wg.Add(1)
	go func() {
		defer ci.wg.Done()
		ci.run(sysID, req)
	}()
}

func (ci *CommandIntake) run(sysID uint8, req CommandRequest) {
	ci.log.Infof("command %s %s for sys %d", req.CommandID, req.Kind, sysID)
	start := time.Now()
	result, err := ci.sender.SendCommand(ci.ctx, sysID, fleet.CommandKind(req.Kind), req.Params)
	res := CommandResult{
		CommandID:  req.CommandID,
		SysID:      sysID,
		Kind:       req.Kind,
		Outcome:    fleet.CommandOutcome(result, err),
		Result:     result,
		DurationMS: time.Since(start).Milliseconds(),
		Time:       time.Now(),
	}
	if err != nil {
		res.Error = err.Error()
	}
	payload, err := json.Marshal(res)
	if err != nil {
		ci.log.Errorf("encode result %s: %v", req.CommandID, err)
		return
	}
	if err := ci.broker.Publish(ci.topics.CommandResult(sysID), "result", false, payload); err != nil {
		ci.log.Errorf("publish result %s: %v", req.CommandID, err)
	}
}

func (ci *CommandIntake) sysIDFromTopic(topic string) (uint8, error) {
	rest, ok := strings.CutPrefix(topic, ci.topics.Prefix+"/vehicle/")
	if !ok {
		return 0, fmt.Errorf("unexpected topic")
	}
	idText, ok := strings.CutSuffix(rest, "/command")
	if !ok {
		return 0, fmt.Errorf("unexpected topic")
	}
	id, err := strconv.ParseUint(idText, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid sys_id %q", idText)
	}
	return uint8(id), nil
}

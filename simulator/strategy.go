package simulator

import (
	"math/rand"
	"sync"
	"time"

	"github.com/kilianp07/skylink/core/protocol"
)

// MissionStrategy decides how a vehicle answers the upload handshake.
// Returned messages are sent in order; a nil slice sends nothing.
type MissionStrategy interface {
	// OnCount is called when MISSION_COUNT arrives.
	OnCount(count uint16) []protocol.Message
	// OnItem is called for every MISSION_ITEM(_INT) received.
	OnItem(seq, count uint16) []protocol.Message
}

func request(seq uint16) *protocol.MissionRequest {
	return &protocol.MissionRequest{Seq: seq, MissionType: protocol.MissionTypeMission, Int: true}
}

func ack(code protocol.MissionResult) *protocol.MissionAck {
	return &protocol.MissionAck{Type: code, MissionType: protocol.MissionTypeMission}
}

// InOrder requests every item once in sequence and then answers Final,
// MISSION_ACCEPTED by default.
type InOrder struct {
	Final protocol.MissionResult
}

// OnCount implements MissionStrategy.
func (InOrder) OnCount(count uint16) []protocol.Message {
	if count == 0 {
		return []protocol.Message{ack(protocol.MissionAccepted)}
	}
	return []protocol.Message{request(0)}
}

// OnItem implements MissionStrategy.
func (s InOrder) OnItem(seq, count uint16) []protocol.Message {
	if seq+1 < count {
		return []protocol.Message{request(seq + 1)}
	}
	return []protocol.Message{ack(s.Final)}
}

// Scripted requests the sequence numbers of Order one after the other, a
// repeated number standing for a lost item. Once Order is exhausted it
// sends Before, then Final, then After.
type Scripted struct {
	Order  []uint16
	Before []protocol.MissionResult
	Final  protocol.MissionResult
	After  []protocol.MissionResult

	mu   sync.Mutex
	step int
}

// OnCount implements MissionStrategy.
func (s *Scripted) OnCount(uint16) []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = 0
	return s.next()
}

// OnItem implements MissionStrategy.
func (s *Scripted) OnItem(uint16, uint16) []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next()
}

func (s *Scripted) next() []protocol.Message {
	if s.step < len(s.Order) {
		seq := s.Order[s.step]
		s.step++
		return []protocol.Message{request(seq)}
	}
	if s.step > len(s.Order) {
		return nil
	}
	s.step++
	out := make([]protocol.Message, 0, len(s.Before)+len(s.After)+1)
	for _, c := range s.Before {
		out = append(out, ack(c))
	}
	out = append(out, ack(s.Final))
	for _, c := range s.After {
		out = append(out, ack(c))
	}
	return out
}

// Silent never answers the count.
type Silent struct{}

func (Silent) OnCount(uint16) []protocol.Message        { return nil }
func (Silent) OnItem(uint16, uint16) []protocol.Message { return nil }

// Lossy wraps a strategy and drops each reply with probability DropRate,
// modelling a noisy radio. The vehicle's request retry recovers the
// handshake.
type Lossy struct {
	Inner    MissionStrategy
	DropRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// OnCount implements MissionStrategy.
func (l *Lossy) OnCount(count uint16) []protocol.Message {
	return l.filter(l.Inner.OnCount(count))
}

// OnItem implements MissionStrategy.
func (l *Lossy) OnItem(seq, count uint16) []protocol.Message {
	return l.filter(l.Inner.OnItem(seq, count))
}

func (l *Lossy) filter(in []protocol.Message) []protocol.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rng == nil {
		l.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	out := in[:0:0]
	for _, m := range in {
		if l.DropRate > 0 && l.rng.Float64() < l.DropRate {
			continue
		}
		out = append(out, m)
	}
	return out
}

// CommandPolicy decides the result of a COMMAND_LONG. A nil policy
// accepts everything.
type CommandPolicy func(cmd uint16) protocol.CommandResult

// RejectCommands refuses the listed commands with MAV_RESULT_DENIED.
func RejectCommands(cmds ...uint16) CommandPolicy {
	return func(cmd uint16) protocol.CommandResult {
		for _, c := range cmds {
			if c == cmd {
				return protocol.ResultDenied
			}
		}
		return protocol.ResultAccepted
	}
}

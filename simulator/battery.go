package simulator

import (
	"math"
	"sync"
	"time"
)

// Battery models a LiPo pack drained by a constant current draw.
type Battery struct {
	CapacityMAh float64 // usable capacity
	Remaining   float64 // state of charge [0,1]
	Cells       int
	mu          sync.Mutex
}

// NewBattery returns a full pack.
func NewBattery(capacityMAh float64, cells int) *Battery {
	return &Battery{CapacityMAh: capacityMAh, Remaining: 1, Cells: cells}
}

// Drain consumes currentA for dt and returns the new state of charge.
func (b *Battery) Drain(currentA float64, dt time.Duration) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if dt <= 0 || currentA <= 0 || b.CapacityMAh <= 0 {
		return b.Remaining
	}
	used := currentA * 1000 * dt.Hours()
	b.Remaining -= used / b.CapacityMAh
	if b.Remaining < 0 {
		b.Remaining = 0
	}
	return b.Remaining
}

// Percent returns the state of charge in percent.
func (b *Battery) Percent() int8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int8(math.Round(b.Remaining * 100))
}

// VoltageMV interpolates the pack voltage between 3.5 V and 4.2 V per cell.
func (b *Battery) VoltageMV() uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	cell := 3.5 + 0.7*b.Remaining
	return uint16(math.Round(cell * float64(b.Cells) * 1000))
}

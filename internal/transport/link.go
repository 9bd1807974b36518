// Package transport receives operator packets over a websocket and hands
// the latest control sample to the control core.
package transport

import (
	"math"
	"sync"
	"time"

	"github.com/san-kum/crawlerctl/internal/vehicle"
)

// Link is the single-slot mailbox between the websocket handler and the
// control loop. Publish overwrites, TakeLatestInput clears the new-data flag.
type Link struct {
	mu         sync.Mutex
	now        func() time.Time
	latest     vehicle.Input
	fresh      bool
	lastPacket time.Time
	connected  bool
}

// NewLink builds a link reading time from now; nil means time.Now.
func NewLink(now func() time.Time) *Link {
	if now == nil {
		now = time.Now
	}
	return &Link{now: now}
}

// Publish stores a sample and stamps its arrival time.
func (l *Link) Publish(in vehicle.Input) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.latest = in.Clamped()
	l.fresh = true
	l.lastPacket = l.now()
}

func (l *Link) SetConnected(connected bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = connected
}

func (l *Link) HasClient() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// TimeSinceLastPacket is measured on the receiver's clock. Before the first
// packet it is effectively infinite.
func (l *Link) TimeSinceLastPacket() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastPacket.IsZero() {
		return time.Duration(math.MaxInt64)
	}
	return l.now().Sub(l.lastPacket)
}

func (l *Link) TakeLatestInput() (vehicle.Input, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fresh := l.fresh
	l.fresh = false
	return l.latest, fresh
}

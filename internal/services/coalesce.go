package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SyncFunc persists one coalesced elapsed-time write.
type SyncFunc func(userID, sessionID uuid.UUID, elapsedTime int)

// SyncCoalescer collapses bursts of elapsed-time syncs for the same session
// into a single trailing write: each new value restarts the quiet window
// and overwrites the pending one, so only the latest value is flushed. The
// unload beacon fires through this, which keeps rapid
// visibility-change/unload double-fires from producing duplicate writes.
type SyncCoalescer struct {
	mu      sync.Mutex
	window  time.Duration
	pending map[uuid.UUID]*pendingSync
	flush   SyncFunc
}

type pendingSync struct {
	timer       *time.Timer
	userID      uuid.UUID
	elapsedTime int
}

func NewSyncCoalescer(window time.Duration, flush SyncFunc) *SyncCoalescer {
	return &SyncCoalescer{
		window:  window,
		pending: make(map[uuid.UUID]*pendingSync),
		flush:   flush,
	}
}

// Record notes the latest elapsed time for a session and (re)starts its
// quiet window.
func (c *SyncCoalescer) Record(userID, sessionID uuid.UUID, elapsedTime int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.pending[sessionID]; ok {
		p.userID = userID
		p.elapsedTime = elapsedTime
		p.timer.Reset(c.window)
		return
	}

	p := &pendingSync{userID: userID, elapsedTime: elapsedTime}
	p.timer = time.AfterFunc(c.window, func() { c.fire(sessionID) })
	c.pending[sessionID] = p
}

func (c *SyncCoalescer) fire(sessionID uuid.UUID) {
	c.mu.Lock()
	p, ok := c.pending[sessionID]
	if ok {
		delete(c.pending, sessionID)
	}
	c.mu.Unlock()

	if ok {
		c.flush(p.userID, sessionID, p.elapsedTime)
	}
}

// Flush writes out everything still pending. Called on shutdown.
func (c *SyncCoalescer) Flush() {
	c.mu.Lock()
	drained := make(map[uuid.UUID]*pendingSync, len(c.pending))
	for id, p := range c.pending {
		p.timer.Stop()
		drained[id] = p
	}
	c.pending = make(map[uuid.UUID]*pendingSync)
	c.mu.Unlock()

	for id, p := range drained {
		c.flush(p.userID, id, p.elapsedTime)
	}
}

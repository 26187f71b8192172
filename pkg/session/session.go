package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/pagepool/pkg/engine"
)

// Status is a session's lifecycle state.
type Status string

const (
	// StatusActive means the session owns a live handle and accepts
	// operations.
	StatusActive Status = "active"

	// StatusIdlePendingClose means the reaper has selected the session for
	// closure but release has not begun.
	StatusIdlePendingClose Status = "idle-pending-close"

	// StatusClosing means handle release is in progress.
	StatusClosing Status = "closing"

	// StatusClosed means the handle has been released (or the bounded
	// release timeout elapsed) and the session is defunct.
	StatusClosed Status = "closed"
)

const (
	stateActive int32 = iota
	stateIdlePendingClose
	stateClosing
	stateClosed
)

func statusFromState(v int32) Status {
	switch v {
	case stateIdlePendingClose:
		return StatusIdlePendingClose
	case stateClosing:
		return StatusClosing
	case stateClosed:
		return StatusClosed
	default:
		return StatusActive
	}
}

// Session binds one caller workflow to exactly one live engine handle.
//
// The mutex serializes every use of the handle: the engine connection is
// not safe for concurrent use, so operations on the same session never
// overlap. Status, activity, and request counters are atomics so the
// reaper and metadata snapshots read them without taking the lock.
type Session struct {
	// ID is the caller-facing key.
	ID string

	// UID distinguishes incarnations: re-creating a closed session under
	// the same ID yields a new UID.
	UID string

	CreatedAt time.Time

	// mu is the per-session exclusion lock. It guards handle use and the
	// handle/acquiredAt fields themselves.
	mu         sync.Mutex
	handle     engine.Handle
	acquiredAt time.Time

	state          atomic.Int32
	lastActivityNS atomic.Int64
	requestCount   atomic.Int64
}

func newSession(id string, h engine.Handle) *Session {
	now := time.Now()
	s := &Session{
		ID:         id,
		UID:        uuid.New().String(),
		CreatedAt:  now,
		handle:     h,
		acquiredAt: now,
	}
	s.lastActivityNS.Store(now.UnixNano())
	return s
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	return statusFromState(s.state.Load())
}

// LastActivity returns the time of the most recent operation or touch.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivityNS.Load())
}

// RequestCount returns the number of operations served so far.
func (s *Session) RequestCount() int64 {
	return s.requestCount.Load()
}

// touch advances last activity to now. A CAS loop keeps the timestamp
// monotonically non-decreasing under concurrent touches.
func (s *Session) touch() {
	now := time.Now().UnixNano()
	for {
		prev := s.lastActivityNS.Load()
		if now <= prev || s.lastActivityNS.CompareAndSwap(prev, now) {
			return
		}
	}
}

// markIdlePending transitions active -> idle-pending-close.
func (s *Session) markIdlePending() bool {
	return s.state.CompareAndSwap(stateActive, stateIdlePendingClose)
}

// markClosing transitions active or idle-pending-close -> closing. Exactly
// one caller wins, and only the winner may release the handle.
func (s *Session) markClosing() bool {
	return s.state.CompareAndSwap(stateActive, stateClosing) ||
		s.state.CompareAndSwap(stateIdlePendingClose, stateClosing)
}

// markClosed finalizes the session after release completes or times out.
func (s *Session) markClosed() {
	s.state.Store(stateClosed)
}

// Metadata is a read-only snapshot of a session. It never carries the
// engine handle.
type Metadata struct {
	ID           string    `json:"id"`
	UID          string    `json:"uid"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity_at"`
	RequestCount int64     `json:"request_count"`
}

// Metadata snapshots the session for read-only listing.
func (s *Session) Metadata() Metadata {
	return Metadata{
		ID:           s.ID,
		UID:          s.UID,
		Status:       s.Status(),
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity(),
		RequestCount: s.RequestCount(),
	}
}

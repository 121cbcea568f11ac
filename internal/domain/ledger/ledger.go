// Package ledger implements the per-session alert ledger: an append-only,
// most-recent-first sequence of integrity alerts with consecutive-kind
// deduplication.
package ledger

import (
	"sync"
	"time"

	"github.com/okian/proctor/internal/domain/model"
)

// Ledger records alerts for one session.
//
// Deduplication compares a candidate only against the single most recent
// entry: A, A collapses to one entry, A, B, A keeps all three. Tab switches
// are never collapsed.
type Ledger struct {
	mu       sync.RWMutex
	alerts   []model.Alert // oldest first; Snapshot reverses
	capacity int           // <= 0 means unbounded
	lastID   int64
	now      func() time.Time
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		now: time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record builds an alert of kind and stores it unless it repeats the kind of
// the most recent entry. The alert is returned either way so the caller can
// still score it and forward it; stored reports whether it entered the ledger.
func (l *Ledger) Record(kind model.Kind, message string) (alert model.Alert, stored bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	alert = l.mintLocked(kind, message)
	if kind.Deduplicated() && len(l.alerts) > 0 && l.alerts[len(l.alerts)-1].Kind == kind {
		return alert, false
	}
	l.appendLocked(alert)
	return alert, true
}

// Append stores an alert of kind without applying deduplication and returns
// it. Used for terminal lifecycle markers that must always appear.
func (l *Ledger) Append(kind model.Kind, message string) model.Alert {
	l.mu.Lock()
	defer l.mu.Unlock()

	alert := l.mintLocked(kind, message)
	l.appendLocked(alert)
	return alert
}

// Clear drops every alert. Alert ids stay monotonic across clears.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alerts = nil
}

// Snapshot returns a copy of the ledger, most recent first.
func (l *Ledger) Snapshot() []model.Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.Alert, len(l.alerts))
	for i, a := range l.alerts {
		out[len(l.alerts)-1-i] = a
	}
	return out
}

// Len returns the number of stored alerts.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.alerts)
}

// mintLocked stamps a new alert. Ids derive from the wall clock in
// milliseconds and are bumped when the clock has not advanced.
// Must be called with l.mu held.
func (l *Ledger) mintLocked(kind model.Kind, message string) model.Alert {
	ts := l.now()
	id := ts.UnixMilli()
	if id <= l.lastID {
		id = l.lastID + 1
	}
	l.lastID = id
	return model.Alert{
		ID:        id,
		Kind:      kind,
		Message:   message,
		Timestamp: ts,
	}
}

// appendLocked stores alert, evicting the oldest entry when bounded and full.
// Must be called with l.mu held.
func (l *Ledger) appendLocked(alert model.Alert) {
	if l.capacity > 0 && len(l.alerts) >= l.capacity {
		copy(l.alerts, l.alerts[1:])
		l.alerts[len(l.alerts)-1] = alert
		return
	}
	l.alerts = append(l.alerts, alert)
}

package devtools

import (
	"time"

	"github.com/go-json-experiment/json/jsontext"

	"devtools-bridge/internal/domain"
)

// NetworkLog accumulates request/response pairs in the order requests were
// announced. It is not synchronized; Client guards it with its own mutex.
type NetworkLog struct {
	entries []domain.NetworkEntry
}

// Append records a new request. A repeated request id (a redirect) starts a
// new entry.
func (l *NetworkLog) Append(e domain.NetworkEntry) {
	l.entries = append(l.entries, e)
}

// Merge attaches resp to the most recent entry for requestID. It reports
// false when no such entry exists.
func (l *NetworkLog) Merge(requestID string, resp domain.NetworkResponse) bool {
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].RequestID == requestID {
			r := resp
			l.entries[i].Response = &r
			return true
		}
	}
	return false
}

// Entries returns a deep copy of the log.
func (l *NetworkLog) Entries() []domain.NetworkEntry {
	out := make([]domain.NetworkEntry, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Clone()
	}
	return out
}

// Len returns the number of entries.
func (l *NetworkLog) Len() int { return len(l.entries) }

// Reset drops every entry.
func (l *NetworkLog) Reset() { l.entries = nil }

// PageLog keeps Page.* notifications in arrival order.
type PageLog struct {
	events []domain.PageEvent
}

// Append records one notification.
func (l *PageLog) Append(method string, params []byte, at time.Time) {
	var raw jsontext.Value
	if len(params) > 0 {
		raw = append(jsontext.Value(nil), params...)
	}
	l.events = append(l.events, domain.PageEvent{Method: method, Params: raw, Received: at})
}

// Events returns a copy of the log.
func (l *PageLog) Events() []domain.PageEvent {
	out := make([]domain.PageEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Reset drops every event.
func (l *PageLog) Reset() { l.events = nil }

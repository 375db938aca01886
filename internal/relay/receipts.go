// Package relay records per-message read state for private and group messages
// via the Tracker type.
package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// PrivateRecord is the read-tracking state of one private message.
type PrivateRecord struct {
	ID     uuid.UUID
	From   string
	To     string
	Text   string
	SentAt time.Time
	Read   bool
}

// GroupRecord is the read-tracking state of one group message. The eligible
// set is a snapshot of group membership at send time, excluding the sender:
// members who join later never become eligible, and members who leave later
// keep any acknowledgement they already made.
type GroupRecord struct {
	ID       uuid.UUID
	From     string
	Group    string
	Text     string
	SentAt   time.Time
	eligible map[string]struct{}
	readBy   map[string]struct{}
}

// ReadCount returns how many eligible readers have acknowledged the message.
func (g *GroupRecord) ReadCount() int { return len(g.readBy) }

// Tracker owns read-receipt state for all in-flight messages.
type Tracker struct {
	mu      sync.Mutex
	private []*PrivateRecord
	group   []*GroupRecord
	byID    map[uuid.UUID]any
}

// NewTracker returns an empty read-receipt tracker.
func NewTracker() *Tracker {
	return &Tracker{byID: make(map[uuid.UUID]any)}
}

// RecordPrivate registers a freshly sent private message as unread and returns
// its message ID.
func (t *Tracker) RecordPrivate(from, to, text string) uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := &PrivateRecord{
		ID:     uuid.New(),
		From:   from,
		To:     to,
		Text:   text,
		SentAt: time.Now(),
	}
	t.private = append(t.private, rec)
	t.byID[rec.ID] = rec
	return rec.ID
}

// AcknowledgePrivate marks every unread private message from counterpart to
// reader as read, in one shot, and reports whether any message actually
// transitioned. Re-acknowledging an already-read conversation changes nothing,
// and a reader never acknowledges their own messages.
func (t *Tracker) AcknowledgePrivate(counterpart, reader string) bool {
	if counterpart == reader {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	changed := false
	for _, rec := range t.private {
		if rec.From == counterpart && rec.To == reader && !rec.Read {
			rec.Read = true
			changed = true
		}
	}
	return changed
}

// RecordGroup registers a freshly sent group message together with its
// eligible-reader snapshot and returns its message ID. The caller passes the
// group's membership at send time; the sender is excluded here so callers do
// not have to.
func (t *Tracker) RecordGroup(from, group, text string, membersAtSend []string) uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()

	eligible := make(map[string]struct{}, len(membersAtSend))
	for _, m := range membersAtSend {
		if m != from {
			eligible[m] = struct{}{}
		}
	}
	rec := &GroupRecord{
		ID:       uuid.New(),
		From:     from,
		Group:    group,
		Text:     text,
		SentAt:   time.Now(),
		eligible: eligible,
		readBy:   make(map[string]struct{}),
	}
	t.group = append(t.group, rec)
	t.byID[rec.ID] = rec
	return rec.ID
}

// AcknowledgeGroup records reader's acknowledgement of every message in the
// group that was authored by someone else, has reader in its eligible
// snapshot, and has not already been acknowledged by reader. It returns the
// distinct senders whose messages gained a read, in message order, so the
// router can notify them. Acknowledgements from readers outside a message's
// eligible snapshot are skipped silently.
func (t *Tracker) AcknowledgeGroup(group, reader string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var senders []string
	seen := make(map[string]struct{})
	for _, rec := range t.group {
		if rec.Group != group || rec.From == reader {
			continue
		}
		if _, ok := rec.eligible[reader]; !ok {
			continue
		}
		if _, already := rec.readBy[reader]; already {
			continue
		}
		rec.readBy[reader] = struct{}{}
		if _, dup := seen[rec.From]; !dup {
			seen[rec.From] = struct{}{}
			senders = append(senders, rec.From)
		}
	}
	return senders
}

// RemoveReader strips name from the eligible set of every group message it has
// not yet acknowledged. Disconnect cleanup uses it so no record keeps pointing
// at a reader that can never acknowledge; acknowledgements already made are
// kept.
func (t *Tracker) RemoveReader(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, rec := range t.group {
		if _, acked := rec.readBy[name]; acked {
			continue
		}
		delete(rec.eligible, name)
	}
}

// ReadCount returns the number of acknowledgements recorded for the message:
// 0 or 1 for a private message, 0..len(eligible) for a group message. Unknown
// IDs report 0.
func (t *Tracker) ReadCount(id uuid.UUID) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch rec := t.byID[id].(type) {
	case *PrivateRecord:
		if rec.Read {
			return 1
		}
		return 0
	case *GroupRecord:
		return len(rec.readBy)
	default:
		return 0
	}
}

// IsRead reports whether the message has at least one acknowledgement.
func (t *Tracker) IsRead(id uuid.UUID) bool {
	return t.ReadCount(id) > 0
}

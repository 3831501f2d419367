package presence

import (
	"codecollab-server/core"
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultTTL = 2 * time.Second

type typingState struct {
	cursor core.Cursor
	at     time.Time
}

type roomPresence struct {
	mu      sync.Mutex
	members map[string]core.Member
	typing  map[string]typingState
}

// Tracker keeps per-room membership and short-lived typing state. Entries
// older than the TTL are never returned, whether or not the sweep has
// removed them yet.
type Tracker struct {
	mu    sync.RWMutex
	rooms map[string]*roomPresence
	ttl   time.Duration
	now   func() time.Time
}

func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		rooms: make(map[string]*roomPresence),
		ttl:   ttl,
		now:   time.Now,
	}
}

// WithClock replaces the time source.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func (t *Tracker) TTL() time.Duration {
	return t.ttl
}

func (t *Tracker) room(roomID string, create bool) *roomPresence {
	t.mu.RLock()
	rp, ok := t.rooms[roomID]
	t.mu.RUnlock()
	if ok || !create {
		return rp
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if rp, ok = t.rooms[roomID]; ok {
		return rp
	}
	rp = &roomPresence{
		members: make(map[string]core.Member),
		typing:  make(map[string]typingState),
	}
	t.rooms[roomID] = rp
	return rp
}

func (t *Tracker) RecordJoin(roomID string, member core.Member) {
	rp := t.room(roomID, true)
	rp.mu.Lock()
	rp.members[member.ID] = member
	rp.mu.Unlock()
}

// RecordLeave forgets the member and its typing state. The room entry goes
// away with its last member.
func (t *Tracker) RecordLeave(roomID string, member core.Member) {
	rp := t.room(roomID, false)
	if rp == nil {
		return
	}

	rp.mu.Lock()
	delete(rp.members, member.ID)
	delete(rp.typing, member.ID)
	empty := len(rp.members) == 0
	rp.mu.Unlock()

	if empty {
		t.mu.Lock()
		// a concurrent join may have repopulated it
		rp.mu.Lock()
		if len(rp.members) == 0 && t.rooms[roomID] == rp {
			delete(t.rooms, roomID)
		}
		rp.mu.Unlock()
		t.mu.Unlock()
	}
}

// RecordTyping upserts the typing state of the member with the current time.
func (t *Tracker) RecordTyping(roomID string, member core.Member, cursor core.Cursor) {
	rp := t.room(roomID, true)
	rp.mu.Lock()
	if _, ok := rp.members[member.ID]; !ok {
		rp.members[member.ID] = member
	}
	rp.typing[member.ID] = typingState{cursor: cursor, at: t.now()}
	rp.mu.Unlock()
}

// ListTyping returns the members that typed within the TTL.
func (t *Tracker) ListTyping(roomID string) map[core.Member]core.Cursor {
	result := make(map[core.Member]core.Cursor)
	rp := t.room(roomID, false)
	if rp == nil {
		return result
	}

	cutoff := t.now().Add(-t.ttl)
	rp.mu.Lock()
	defer rp.mu.Unlock()
	for id, st := range rp.typing {
		if !st.at.After(cutoff) {
			continue
		}
		m, ok := rp.members[id]
		if !ok {
			m = core.Member{ID: id}
		}
		result[m] = st.cursor
	}
	return result
}

// Members returns the members recorded for the room.
func (t *Tracker) Members(roomID string) []core.Member {
	rp := t.room(roomID, false)
	if rp == nil {
		return nil
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	members := make([]core.Member, 0, len(rp.members))
	for _, m := range rp.members {
		members = append(members, m)
	}
	return members
}

// Sweep deletes expired typing entries and returns how many were removed.
func (t *Tracker) Sweep() int {
	t.mu.RLock()
	rooms := make([]*roomPresence, 0, len(t.rooms))
	for _, rp := range t.rooms {
		rooms = append(rooms, rp)
	}
	t.mu.RUnlock()

	cutoff := t.now().Add(-t.ttl)
	removed := 0
	for _, rp := range rooms {
		rp.mu.Lock()
		for id, st := range rp.typing {
			if !st.at.After(cutoff) {
				delete(rp.typing, id)
				removed++
			}
		}
		rp.mu.Unlock()
	}
	return removed
}

// Run sweeps every half TTL until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.Sweep(); n > 0 {
				logrus.WithField("expired", n).Debug("Swept typing state")
			}
		}
	}
}

package rooms

import (
	"codecollab-server/core"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Commit is run with the post-mutation snapshot while the room is still
// locked, so anything it enqueues is ordered exactly like the mutations.
type Commit func(core.Snapshot)

type room struct {
	mu       sync.Mutex
	id       string
	text     string
	language string
	members  []core.Member
	files    []core.File
	// set once the room has been removed from the registry; holders of a
	// stale pointer must look the room up again
	closed bool
}

func (r *room) snapshot() core.Snapshot {
	members := make([]core.Member, len(r.members))
	copy(members, r.members)
	files := make([]core.File, len(r.files))
	copy(files, r.files)
	return core.Snapshot{
		RoomID:   r.id,
		Text:     r.text,
		Language: r.language,
		Members:  members,
		Files:    files,
	}
}

func (r *room) indexOf(memberID string) int {
	for i, m := range r.members {
		if m.ID == memberID {
			return i
		}
	}
	return -1
}

// Registry owns every live room. Mutations of one room are serialized by that
// room's mutex; the registry lock only guards the map itself.
type Registry struct {
	mu              sync.Mutex
	rooms           map[string]*room
	defaultLanguage string
}

func NewRegistry(defaultLanguage string) *Registry {
	if defaultLanguage == "" {
		defaultLanguage = core.DefaultLanguage
	}
	return &Registry{
		rooms:           make(map[string]*room),
		defaultLanguage: defaultLanguage,
	}
}

// lock returns the live room locked. When create is false and the room does
// not exist it returns nil.
func (g *Registry) lock(roomID string, create bool) *room {
	for {
		g.mu.Lock()
		r, ok := g.rooms[roomID]
		if !ok {
			if !create {
				g.mu.Unlock()
				return nil
			}
			r = &room{id: roomID, language: g.defaultLanguage}
			g.rooms[roomID] = r
			logrus.WithField("room_id", roomID).Info("Room created")
		}
		g.mu.Unlock()

		r.mu.Lock()
		if !r.closed {
			return r
		}
		r.mu.Unlock()
	}
}

// destroy must be called with r.mu held.
func (g *Registry) destroy(r *room) {
	r.closed = true
	g.mu.Lock()
	if g.rooms[r.id] == r {
		delete(g.rooms, r.id)
	}
	g.mu.Unlock()
	logrus.WithField("room_id", r.id).Info("Room destroyed")
}

// EnsureRoom returns the room, creating it with defaults when absent.
func (g *Registry) EnsureRoom(roomID string) (core.Snapshot, error) {
	if roomID == "" {
		return core.Snapshot{}, fmt.Errorf("room id is required: %w", core.ErrInvalidArgument)
	}
	r := g.lock(roomID, true)
	defer r.mu.Unlock()
	return r.snapshot(), nil
}

// Join adds the member to the room and returns the resulting snapshot.
// Joining twice is a no-op.
func (g *Registry) Join(roomID string, member core.Member, then Commit) (core.Snapshot, error) {
	if roomID == "" {
		return core.Snapshot{}, fmt.Errorf("room id is required: %w", core.ErrInvalidArgument)
	}
	if member.ID == "" || member.Name == "" {
		return core.Snapshot{}, fmt.Errorf("member id and name are required: %w", core.ErrInvalidArgument)
	}

	r := g.lock(roomID, true)
	defer r.mu.Unlock()

	if r.indexOf(member.ID) < 0 {
		r.members = append(r.members, member)
	}
	snap := r.snapshot()
	if then != nil {
		then(snap)
	}
	return snap, nil
}

// Leave removes the member. Unknown rooms and members are ignored. When the
// last member leaves the room is destroyed.
func (g *Registry) Leave(roomID, memberID string, then Commit) (remaining []core.Member, destroyed bool) {
	r := g.lock(roomID, false)
	if r == nil {
		return nil, false
	}
	defer r.mu.Unlock()

	i := r.indexOf(memberID)
	if i < 0 {
		if len(r.members) == 0 {
			g.destroy(r)
			return nil, true
		}
		return r.snapshot().Members, false
	}
	r.members = append(r.members[:i], r.members[i+1:]...)

	snap := r.snapshot()
	if then != nil {
		then(snap)
	}
	if len(r.members) == 0 {
		g.destroy(r)
		return nil, true
	}
	return snap.Members, false
}

// ApplyEdit replaces the document text. Last writer wins.
func (g *Registry) ApplyEdit(roomID, text string, then Commit) error {
	r := g.lock(roomID, false)
	if r == nil {
		return fmt.Errorf("edit %q: %w", roomID, core.ErrRoomNotFound)
	}
	defer r.mu.Unlock()

	r.text = text
	if then != nil {
		then(r.snapshot())
	}
	return nil
}

// ApplyLanguageChange replaces the room language. Last writer wins.
func (g *Registry) ApplyLanguageChange(roomID, language string, then Commit) error {
	if language == "" {
		return fmt.Errorf("language is required: %w", core.ErrInvalidArgument)
	}
	r := g.lock(roomID, false)
	if r == nil {
		return fmt.Errorf("change language %q: %w", roomID, core.ErrRoomNotFound)
	}
	defer r.mu.Unlock()

	r.language = language
	if then != nil {
		then(r.snapshot())
	}
	return nil
}

// AppendFile adds a file to the room. Rooms without members reject files.
func (g *Registry) AppendFile(roomID string, file core.File, then Commit) error {
	r := g.lock(roomID, false)
	if r == nil {
		return fmt.Errorf("share file into %q: %w", roomID, core.ErrRoomNotFound)
	}
	defer r.mu.Unlock()

	if len(r.members) == 0 {
		return fmt.Errorf("share file into %q: %w", roomID, core.ErrRoomNotFound)
	}
	r.files = append(r.files, file)
	if then != nil {
		then(r.snapshot())
	}
	return nil
}

func (g *Registry) Snapshot(roomID string) (core.Snapshot, bool) {
	r := g.lock(roomID, false)
	if r == nil {
		return core.Snapshot{}, false
	}
	defer r.mu.Unlock()
	return r.snapshot(), true
}

func (g *Registry) File(roomID, fileID string) (core.File, bool) {
	r := g.lock(roomID, false)
	if r == nil {
		return core.File{}, false
	}
	defer r.mu.Unlock()

	for _, f := range r.files {
		if f.ID == fileID {
			return f, true
		}
	}
	return core.File{}, false
}

// Rooms lists live rooms with their member counts, ordered by id.
func (g *Registry) Rooms() []core.RoomSummary {
	g.mu.Lock()
	live := make([]*room, 0, len(g.rooms))
	for _, r := range g.rooms {
		live = append(live, r)
	}
	g.mu.Unlock()

	summaries := make([]core.RoomSummary, 0, len(live))
	for _, r := range live {
		r.mu.Lock()
		if !r.closed {
			summaries = append(summaries, core.RoomSummary{ID: r.id, Members: len(r.members)})
		}
		r.mu.Unlock()
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries
}

// Prune destroys rooms that were ensured but never joined.
func (g *Registry) Prune() int {
	g.mu.Lock()
	live := make([]*room, 0, len(g.rooms))
	for _, r := range g.rooms {
		live = append(live, r)
	}
	g.mu.Unlock()

	pruned := 0
	for _, r := range live {
		r.mu.Lock()
		if !r.closed && len(r.members) == 0 {
			g.destroy(r)
			pruned++
		}
		r.mu.Unlock()
	}
	return pruned
}

// Len returns the number of live rooms.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// MemberCount returns the number of members of the room and whether it exists.
func (g *Registry) MemberCount(roomID string) (int, bool) {
	r := g.lock(roomID, false)
	if r == nil {
		return 0, false
	}
	defer r.mu.Unlock()
	return len(r.members), true
}

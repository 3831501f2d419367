package session

import (
	"codecollab-server/broadcast"
	"codecollab-server/core"
	"codecollab-server/metrics"
	"codecollab-server/presence"
	"codecollab-server/rooms"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// State of a participant connection. Left and Disconnected are terminal for
// the membership; a Left connection may join again.
type State int

const (
	StateDisconnected State = iota
	StateJoined
	StateLeft
)

func (s State) String() string {
	switch s {
	case StateJoined:
		return "joined"
	case StateLeft:
		return "left"
	default:
		return "disconnected"
	}
}

type connection struct {
	// serializes every operation of this connection
	mu     sync.Mutex
	conn   broadcast.Conn
	member core.Member
	roomID string
	state  State
}

type handlerFunc func(ctx context.Context, connID string, raw any) error

// Coordinator is the entry point for participant actions. It validates them,
// applies them to the registry and presence tracker and fans the result out
// through the router.
type Coordinator struct {
	registry *rooms.Registry
	presence *presence.Tracker
	router   *broadcast.Router
	activity core.ActivityStore
	now      func() time.Time

	mu       sync.RWMutex
	conns    map[string]*connection
	handlers map[string]handlerFunc
}

func NewCoordinator(registry *rooms.Registry, tracker *presence.Tracker, router *broadcast.Router, activity core.ActivityStore) *Coordinator {
	c := &Coordinator{
		registry: registry,
		presence: tracker,
		router:   router,
		activity: activity,
		now:      time.Now,
		conns:    make(map[string]*connection),
	}
	c.handlers = map[string]handlerFunc{
		EventJoin:           c.handleJoin,
		EventLeave:          c.handleLeave,
		EventCodeChange:     c.handleCodeChange,
		EventLanguageChange: c.handleLanguageChange,
		EventTyping:         c.handleTyping,
		EventFileShare:      c.handleFileShare,
	}
	return c
}

// Events lists the inbound event names Handle understands.
func (c *Coordinator) Events() []string {
	names := make([]string, 0, len(c.handlers))
	for name := range c.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle decodes a raw transport payload for the named event and runs it.
func (c *Coordinator) Handle(ctx context.Context, connID, event string, raw any) error {
	h, ok := c.handlers[event]
	if !ok {
		return fmt.Errorf("unknown event %q: %w", event, core.ErrInvalidArgument)
	}
	err := h(ctx, connID, raw)
	metrics.RecordEvent(event, err)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"conn_id": connID,
			"event":   event,
		}).WithError(err).Debug("Event rejected")
	}
	return err
}

// Connect registers a new connection in the Disconnected state.
func (c *Coordinator) Connect(conn broadcast.Conn) {
	c.mu.Lock()
	c.conns[conn.ID()] = &connection{conn: conn, state: StateDisconnected}
	c.mu.Unlock()
	c.router.Attach(conn)
	logrus.WithField("conn_id", conn.ID()).Debug("Connection attached")
}

func (c *Coordinator) connection(connID string) (*connection, error) {
	c.mu.RLock()
	cn, ok := c.conns[connID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown connection %q: %w", connID, core.ErrInvalidArgument)
	}
	return cn, nil
}

// State reports the state of a connection; unknown connections are
// Disconnected.
func (c *Coordinator) State(connID string) State {
	cn, err := c.connection(connID)
	if err != nil {
		return StateDisconnected
	}
	cn.mu.Lock()
	defer cn.mu.Unlock()
	return cn.state
}

// Join puts the connection into the room. A connection joined elsewhere
// leaves its previous room first.
func (c *Coordinator) Join(ctx context.Context, connID string, req JoinRequest) (core.Snapshot, error) {
	if req.RoomID == "" || req.Name == "" {
		return core.Snapshot{}, fmt.Errorf("room id and name are required: %w", core.ErrInvalidArgument)
	}
	cn, err := c.connection(connID)
	if err != nil {
		return core.Snapshot{}, err
	}

	cn.mu.Lock()
	defer cn.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{
		"conn_id": connID,
		"room_id": req.RoomID,
	})

	if cn.state == StateJoined {
		if cn.roomID == req.RoomID {
			snap, err := c.registry.Join(req.RoomID, cn.member, func(s core.Snapshot) {
				c.router.EmitToParticipant(connID, snapshotEvent(s))
			})
			log.Debug("Duplicate join ignored")
			return snap, err
		}
		c.leaveLocked(ctx, cn)
	}

	member := core.Member{ID: connID, Name: req.Name}
	snap, err := c.registry.Join(req.RoomID, member, func(s core.Snapshot) {
		c.router.Register(req.RoomID, cn.conn)
		c.presence.RecordJoin(req.RoomID, member)
		c.router.EmitToParticipant(connID, snapshotEvent(s))
		c.router.EmitToAll(req.RoomID, memberListEvent(s))
		c.router.EmitToRoom(req.RoomID, connID, joinAnnouncementEvent(member.Name))
	})
	if err != nil {
		return core.Snapshot{}, err
	}

	cn.member = member
	cn.roomID = req.RoomID
	cn.state = StateJoined
	metrics.MemberJoined()
	metrics.SetRoomsActive(c.registry.Len())
	c.touch(ctx, req.RoomID)

	log.WithFields(logrus.Fields{
		"user_name": member.Name,
		"members":   len(snap.Members),
	}).Info("Participant joined room")
	return snap, nil
}

// Leave removes the connection from its room. Leaving a room the connection
// is not in is a no-op.
func (c *Coordinator) Leave(ctx context.Context, connID string, req LeaveRequest) error {
	cn, err := c.connection(connID)
	if err != nil {
		return nil
	}

	cn.mu.Lock()
	defer cn.mu.Unlock()

	if cn.state != StateJoined || (req.RoomID != "" && req.RoomID != cn.roomID) {
		return nil
	}
	c.leaveLocked(ctx, cn)
	return nil
}

// Disconnect is an implicit leave followed by forgetting the connection.
func (c *Coordinator) Disconnect(ctx context.Context, connID string) {
	cn, err := c.connection(connID)
	if err != nil {
		return
	}

	cn.mu.Lock()
	if cn.state == StateJoined {
		c.leaveLocked(ctx, cn)
	}
	cn.state = StateDisconnected
	cn.mu.Unlock()

	c.mu.Lock()
	delete(c.conns, connID)
	c.mu.Unlock()
	c.router.Detach(connID)
	logrus.WithField("conn_id", connID).Debug("Connection detached")
}

// leaveLocked must be called with cn.mu held. No announcement is sent for a
// leave; the remaining members only get the refreshed member list.
func (c *Coordinator) leaveLocked(ctx context.Context, cn *connection) {
	roomID, member := cn.roomID, cn.member

	_, destroyed := c.registry.Leave(roomID, member.ID, func(s core.Snapshot) {
		c.router.Unregister(roomID, member.ID)
		c.presence.RecordLeave(roomID, member)
		if len(s.Members) > 0 {
			c.router.EmitToAll(roomID, memberListEvent(s))
		}
	})
	c.router.Unregister(roomID, member.ID)
	c.presence.RecordLeave(roomID, member)

	cn.state = StateLeft
	cn.roomID = ""
	metrics.MemberLeft()
	metrics.SetRoomsActive(c.registry.Len())
	if !destroyed {
		c.touch(ctx, roomID)
	}

	logrus.WithFields(logrus.Fields{
		"conn_id":   member.ID,
		"room_id":   roomID,
		"destroyed": destroyed,
	}).Info("Participant left room")
}

// authorize checks that the connection may act on the room. A room without
// members is reported as not found before membership is considered.
func (c *Coordinator) authorize(connID, roomID string) (*connection, error) {
	cn, err := c.connection(connID)
	if err != nil {
		return nil, err
	}
	cn.mu.Lock()
	if cn.state == StateJoined && cn.roomID == roomID {
		return cn, nil
	}
	cn.mu.Unlock()

	if n, ok := c.registry.MemberCount(roomID); !ok || n == 0 {
		return nil, fmt.Errorf("room %q: %w", roomID, core.ErrRoomNotFound)
	}
	return nil, fmt.Errorf("room %q: %w", roomID, core.ErrNotAMember)
}

// Edit replaces the document and sends it to the other members.
func (c *Coordinator) Edit(ctx context.Context, connID string, req EditRequest) error {
	cn, err := c.authorize(connID, req.RoomID)
	if err != nil {
		return err
	}
	defer cn.mu.Unlock()

	err = c.registry.ApplyEdit(req.RoomID, req.Text, func(s core.Snapshot) {
		c.router.EmitToRoom(req.RoomID, connID, documentUpdateEvent(s.Text))
	})
	if err != nil {
		return err
	}
	c.touch(ctx, req.RoomID)
	return nil
}

// ChangeLanguage replaces the room language and sends it to the other members.
func (c *Coordinator) ChangeLanguage(ctx context.Context, connID string, req LanguageRequest) error {
	if req.Language == "" {
		return fmt.Errorf("language is required: %w", core.ErrInvalidArgument)
	}
	cn, err := c.authorize(connID, req.RoomID)
	if err != nil {
		return err
	}
	defer cn.mu.Unlock()

	err = c.registry.ApplyLanguageChange(req.RoomID, req.Language, func(s core.Snapshot) {
		c.router.EmitToRoom(req.RoomID, connID, languageUpdateEvent(s.Language))
	})
	if err != nil {
		return err
	}
	c.touch(ctx, req.RoomID)
	return nil
}

// Typing records the cursor of the connection's member and relays it. The
// name in the request is ignored in favour of the joined member.
func (c *Coordinator) Typing(ctx context.Context, connID string, req TypingRequest) error {
	cn, err := c.authorize(connID, req.RoomID)
	if err != nil {
		return err
	}
	defer cn.mu.Unlock()

	c.presence.RecordTyping(req.RoomID, cn.member, req.Cursor)
	c.router.EmitToRoom(req.RoomID, connID, typingUpdateEvent(cn.member, req.Cursor))
	return nil
}

// ShareFile appends the file to the room and sends it to the other members.
func (c *Coordinator) ShareFile(ctx context.Context, connID string, req FileShareRequest) (core.File, error) {
	if req.File.Name == "" {
		return core.File{}, fmt.Errorf("file name is required: %w", core.ErrInvalidArgument)
	}
	cn, err := c.authorize(connID, req.RoomID)
	if err != nil {
		return core.File{}, err
	}
	defer cn.mu.Unlock()

	file := core.File{
		ID:       ulid.Make().String(),
		Name:     req.File.Name,
		MimeType: req.File.MimeType,
		Size:     req.File.Size,
		Content:  req.File.Content,
		SharedBy: cn.member.Name,
		SharedAt: c.now(),
	}
	if file.MimeType == "" {
		file.MimeType = mimetype.Detect(file.Content).String()
	}
	if file.Size == 0 {
		file.Size = int64(len(file.Content))
	}

	err = c.registry.AppendFile(req.RoomID, file, func(core.Snapshot) {
		c.router.EmitToRoom(req.RoomID, connID, fileReceivedEvent(file))
	})
	if err != nil {
		return core.File{}, err
	}
	metrics.RecordFileShared(int64(len(file.Content)))
	c.touch(ctx, req.RoomID)

	logrus.WithFields(logrus.Fields{
		"room_id":   req.RoomID,
		"file_id":   file.ID,
		"file_name": file.Name,
		"size":      file.Size,
	}).Info("File shared")
	return file, nil
}

func (c *Coordinator) touch(ctx context.Context, roomID string) {
	if c.activity == nil {
		return
	}
	if err := c.activity.TouchRoom(ctx, roomID); err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Warn("Failed to record room activity")
	}
}

func (c *Coordinator) Rooms() []core.RoomSummary {
	return c.registry.Rooms()
}

func (c *Coordinator) Snapshot(roomID string) (core.Snapshot, bool) {
	return c.registry.Snapshot(roomID)
}

func (c *Coordinator) File(roomID, fileID string) (core.File, bool) {
	return c.registry.File(roomID, fileID)
}

func (c *Coordinator) ListTyping(roomID string) map[core.Member]core.Cursor {
	return c.presence.ListTyping(roomID)
}

func (c *Coordinator) handleJoin(ctx context.Context, connID string, raw any) error {
	var req JoinRequest
	if err := decodePayload(raw, &req); err != nil {
		return err
	}
	_, err := c.Join(ctx, connID, req)
	return err
}

func (c *Coordinator) handleLeave(ctx context.Context, connID string, raw any) error {
	var req LeaveRequest
	if raw != nil {
		if err := decodePayload(raw, &req); err != nil {
			return err
		}
	}
	return c.Leave(ctx, connID, req)
}

func (c *Coordinator) handleCodeChange(ctx context.Context, connID string, raw any) error {
	var req EditRequest
	if err := decodePayload(raw, &req); err != nil {
		return err
	}
	return c.Edit(ctx, connID, req)
}

func (c *Coordinator) handleLanguageChange(ctx context.Context, connID string, raw any) error {
	var req LanguageRequest
	if err := decodePayload(raw, &req); err != nil {
		return err
	}
	return c.ChangeLanguage(ctx, connID, req)
}

func (c *Coordinator) handleTyping(ctx context.Context, connID string, raw any) error {
	var req TypingRequest
	if err := decodePayload(raw, &req); err != nil {
		return err
	}
	return c.Typing(ctx, connID, req)
}

func (c *Coordinator) handleFileShare(ctx context.Context, connID string, raw any) error {
	var req FileShareRequest
	if err := decodePayload(raw, &req); err != nil {
		return err
	}
	_, err := c.ShareFile(ctx, connID, req)
	return err
}

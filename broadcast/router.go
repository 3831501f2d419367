package broadcast

import (
	"codecollab-server/metrics"
	"sync"

	"github.com/sirupsen/logrus"
)

type (
	// Conn is one participant connection. Emit must not block on the network.
	Conn interface {
		ID() string
		Emit(event string, payload any) error
	}

	Event struct {
		Name    string
		Payload any
	}
)

// Router fans room events out to connections. It only keeps its own index of
// who is in which room and never calls back into room state.
type Router struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Conn
	conns map[string]Conn
}

func NewRouter() *Router {
	return &Router{
		rooms: make(map[string]map[string]Conn),
		conns: make(map[string]Conn),
	}
}

// Attach makes the connection reachable for unicast.
func (r *Router) Attach(conn Conn) {
	r.mu.Lock()
	r.conns[conn.ID()] = conn
	r.mu.Unlock()
}

// Detach removes the connection from unicast and from every room.
func (r *Router) Detach(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connID)
	for roomID, members := range r.rooms {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
}

func (r *Router) Register(roomID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID()] = conn
	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]Conn)
		r.rooms[roomID] = members
	}
	members[conn.ID()] = conn
}

func (r *Router) Unregister(roomID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
}

// EmitToRoom delivers the event to every connection in the room except the
// originator. Delivery is best effort.
func (r *Router) EmitToRoom(roomID, originID string, ev Event) int {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.rooms[roomID]))
	for id, conn := range r.rooms[roomID] {
		if id == originID {
			continue
		}
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if r.deliver(conn, ev) {
			delivered++
		}
	}
	logrus.WithFields(logrus.Fields{
		"room_id":   roomID,
		"event":     ev.Name,
		"delivered": delivered,
	}).Debug("Broadcast to room")
	return delivered
}

// EmitToAll delivers the event to every connection in the room, originator
// included.
func (r *Router) EmitToAll(roomID string, ev Event) int {
	return r.EmitToRoom(roomID, "", ev)
}

// EmitToParticipant delivers the event to a single connection.
func (r *Router) EmitToParticipant(connID string, ev Event) bool {
	r.mu.RLock()
	conn, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		logrus.WithFields(logrus.Fields{
			"conn_id": connID,
			"event":   ev.Name,
		}).Debug("Unicast target not attached")
		metrics.RecordDrop(ev.Name)
		return false
	}
	return r.deliver(conn, ev)
}

func (r *Router) deliver(conn Conn, ev Event) bool {
	if err := conn.Emit(ev.Name, ev.Payload); err != nil {
		logrus.WithFields(logrus.Fields{
			"conn_id": conn.ID(),
			"event":   ev.Name,
		}).WithError(err).Warn("Dropped event for connection")
		metrics.RecordDrop(ev.Name)
		return false
	}
	metrics.RecordDelivery(ev.Name)
	return true
}

// Size returns the number of connections registered in the room.
func (r *Router) Size(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

package broadcast

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConn struct {
	id       string
	mu       sync.Mutex
	received []Event
	emitErr  error
}

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Emit(event string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.emitErr != nil {
		return m.emitErr
	}
	m.received = append(m.received, Event{Name: event, Payload: payload})
	return nil
}

func (m *mockConn) events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.received))
	copy(out, m.received)
	return out
}

func TestRouter_EmitToRoom(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*Router) *mockConn
		wantCount int
	}{
		{
			name: "delivers to others, never the originator",
			setup: func(r *Router) *mockConn {
				sender := &mockConn{id: "sender"}
				r.Register("room1", sender)
				r.Register("room1", &mockConn{id: "recv1"})
				r.Register("room1", &mockConn{id: "recv2"})
				return sender
			},
			wantCount: 2,
		},
		{
			name: "no cross-room delivery",
			setup: func(r *Router) *mockConn {
				sender := &mockConn{id: "sender"}
				r.Register("room1", sender)
				r.Register("room2", &mockConn{id: "recv1"})
				return sender
			},
			wantCount: 0,
		},
		{
			name: "alone in the room",
			setup: func(r *Router) *mockConn {
				sender := &mockConn{id: "sender"}
				r.Register("room1", sender)
				return sender
			},
			wantCount: 0,
		},
		{
			name: "failing connection does not stop the others",
			setup: func(r *Router) *mockConn {
				sender := &mockConn{id: "sender"}
				r.Register("room1", sender)
				r.Register("room1", &mockConn{id: "broken", emitErr: errors.New("closed")})
				r.Register("room1", &mockConn{id: "recv1"})
				return sender
			},
			wantCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter()
			sender := tt.setup(r)

			got := r.EmitToRoom("room1", sender.ID(), Event{Name: "codeUpdate", Payload: "hello"})

			assert.Equal(t, tt.wantCount, got)
			assert.Empty(t, sender.events())
		})
	}
}

func TestRouter_EmitToAll(t *testing.T) {
	r := NewRouter()
	a := &mockConn{id: "a"}
	b := &mockConn{id: "b"}
	r.Register("room1", a)
	r.Register("room1", b)

	assert.Equal(t, 2, r.EmitToAll("room1", Event{Name: "userJoined"}))
	assert.Len(t, a.events(), 1)
	assert.Len(t, b.events(), 1)
}

func TestRouter_EmitToParticipant(t *testing.T) {
	r := NewRouter()
	a := &mockConn{id: "a"}
	r.Attach(a)

	require.True(t, r.EmitToParticipant("a", Event{Name: "roomSnapshot", Payload: 1}))
	assert.False(t, r.EmitToParticipant("ghost", Event{Name: "roomSnapshot"}))
	assert.Equal(t, []Event{{Name: "roomSnapshot", Payload: 1}}, a.events())
}

func TestRouter_UnregisterAndDetach(t *testing.T) {
	r := NewRouter()
	a := &mockConn{id: "a"}
	b := &mockConn{id: "b"}
	r.Register("room1", a)
	r.Register("room1", b)
	r.Register("room2", b)

	r.Unregister("room1", "a")
	assert.Equal(t, 1, r.Size("room1"))
	// a is still attached for unicast
	assert.True(t, r.EmitToParticipant("a", Event{Name: "x"}))

	r.Detach("b")
	assert.Equal(t, 0, r.Size("room1"))
	assert.Equal(t, 0, r.Size("room2"))
	assert.False(t, r.EmitToParticipant("b", Event{Name: "x"}))

	r.Unregister("nope", "a")
}

func TestRouter_PreservesPerSenderOrder(t *testing.T) {
	r := NewRouter()
	sender := &mockConn{id: "sender"}
	recv := &mockConn{id: "recv"}
	r.Register("room1", sender)
	r.Register("room1", recv)

	for i := 0; i < 100; i++ {
		r.EmitToRoom("room1", "sender", Event{Name: "codeUpdate", Payload: i})
	}

	events := recv.events()
	require.Len(t, events, 100)
	for i, ev := range events {
		assert.Equal(t, i, ev.Payload)
	}
}

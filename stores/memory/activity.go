package memory

import (
	"codecollab-server/core"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type activityStore struct {
	mu    sync.RWMutex
	rooms map[string]int64
	now   func() time.Time
}

func NewActivityStore() core.ActivityStore {
	return &activityStore{
		rooms: make(map[string]int64),
		now:   time.Now,
	}
}

func (s *activityStore) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	s.mu.Lock()
	s.rooms[roomID] = s.now().UnixMilli()
	s.mu.Unlock()

	return nil
}

func (s *activityStore) ListRooms(ctx context.Context) ([]core.RoomActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]core.RoomActivity, 0, len(s.rooms))
	for id, last := range s.rooms {
		rooms = append(rooms, core.RoomActivity{ID: id, LastActive: last})
	}

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].LastActive == rooms[j].LastActive {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].LastActive > rooms[j].LastActive
	})

	return rooms, nil
}

func (s *activityStore) DeleteRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rooms, roomID)
	return nil
}

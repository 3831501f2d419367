package redis

import (
	"codecollab-server/core"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// activityStore keeps room activity in a sorted set scored by the last active
// time in unix milliseconds, so several server instances share one listing.
type activityStore struct {
	rdb *redis.Client
	key string
	now func() time.Time
}

// NewActivityStore connects to redis and checks the connection.
func NewActivityStore(ctx context.Context, addr, keyPrefix string) (core.ActivityStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return newActivityStore(rdb, keyPrefix), nil
}

func newActivityStore(rdb *redis.Client, keyPrefix string) *activityStore {
	return &activityStore{
		rdb: rdb,
		key: keyPrefix + "rooms",
		now: time.Now,
	}
}

func (s *activityStore) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	score := float64(s.now().UnixMilli())
	if err := s.rdb.ZAdd(ctx, s.key, redis.Z{Score: score, Member: roomID}).Err(); err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to touch room")
		return err
	}
	return nil
}

func (s *activityStore) ListRooms(ctx context.Context) ([]core.RoomActivity, error) {
	entries, err := s.rdb.ZRevRangeWithScores(ctx, s.key, 0, -1).Result()
	if err != nil {
		logrus.WithError(err).Error("Failed to list rooms")
		return nil, err
	}

	rooms := make([]core.RoomActivity, 0, len(entries))
	for _, z := range entries {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		rooms = append(rooms, core.RoomActivity{ID: id, LastActive: int64(z.Score)})
	}

	// redis breaks score ties in reverse lexical order
	sort.SliceStable(rooms, func(i, j int) bool {
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

	if err := s.rdb.ZRem(ctx, s.key, roomID).Err(); err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to delete room")
		return err
	}
	return nil
}

func (s *activityStore) Close() error {
	return s.rdb.Close()
}

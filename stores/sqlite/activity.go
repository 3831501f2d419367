package sqlite

import (
	"codecollab-server/core"
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

type activityStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewActivityStore opens the database and creates the room_activity table.
func NewActivityStore(dataSourceName string) (core.ActivityStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sts := `CREATE TABLE IF NOT EXISTS room_activity (
		room_id TEXT PRIMARY KEY,
		last_active INTEGER NOT NULL
	);`
	if _, err := db.Exec(sts); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create room_activity table: %w", err)
	}

	return &activityStore{db: db, now: time.Now}, nil
}

func (s *activityStore) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO room_activity (room_id, last_active) VALUES (?, ?) ON CONFLICT(room_id) DO UPDATE SET last_active = excluded.last_active",
		roomID, s.now().UnixMilli())
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to touch room")
		return err
	}
	return nil
}

func (s *activityStore) ListRooms(ctx context.Context) ([]core.RoomActivity, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT room_id, last_active FROM room_activity ORDER BY last_active DESC, room_id ASC")
	if err != nil {
		logrus.WithError(err).Error("Failed to list rooms")
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logrus.WithError(cerr).Warn("Failed to close room rows")
		}
	}()

	rooms := make([]core.RoomActivity, 0)
	for rows.Next() {
		var room core.RoomActivity
		if err := rows.Scan(&room.ID, &room.LastActive); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (s *activityStore) DeleteRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM room_activity WHERE room_id = ?", roomID); err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to delete room")
		return err
	}
	logrus.WithField("room_id", roomID).Info("Room activity deleted")
	return nil
}

func (s *activityStore) Close() error {
	return s.db.Close()
}

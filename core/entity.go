package core

import (
	"context"
	"time"
)

const DefaultLanguage = "javascript"

type (
	// Member is one connected participant. ID is stable for the lifetime of the
	// connection; Name is only a display label and may collide.
	Member struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	// Cursor is an editor position as reported by the client.
	Cursor struct {
		LineNumber int `json:"lineNumber" mapstructure:"lineNumber"`
		Column     int `json:"column" mapstructure:"column"`
	}

	File struct {
		ID       string    `json:"id"`
		Name     string    `json:"name"`
		MimeType string    `json:"type"`
		Size     int64     `json:"size"`
		Content  []byte    `json:"buffer,omitempty"`
		SharedBy string    `json:"sharedBy,omitempty"`
		SharedAt time.Time `json:"sharedAt"`
	}

	// Snapshot is the full state of a room handed to a joiner.
	Snapshot struct {
		RoomID   string   `json:"roomId"`
		Text     string   `json:"code"`
		Language string   `json:"language"`
		Members  []Member `json:"members"`
		Files    []File   `json:"files"`
	}

	RoomSummary struct {
		ID      string
		Members int
	}

	RoomActivity struct {
		ID         string
		LastActive int64
	}

	// ActivityStore remembers when rooms were last active so recently used
	// rooms can be listed after they empty out.
	ActivityStore interface {
		ListRooms(ctx context.Context) ([]RoomActivity, error)
		TouchRoom(ctx context.Context, roomID string) error
		DeleteRoom(ctx context.Context, roomID string) error
	}
)

// Names returns the display names of members in order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.Members))
	for _, m := range s.Members {
		names = append(names, m.Name)
	}
	return names
}

// HasMember reports whether the member id is part of the snapshot.
func (s Snapshot) HasMember(id string) bool {
	for _, m := range s.Members {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Descriptor returns a copy of the file without its content.
func (f File) Descriptor() File {
	f.Content = nil
	return f
}

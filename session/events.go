package session

import (
	"codecollab-server/broadcast"
	"codecollab-server/core"
)

// Inbound event names as sent by the editor client.
const (
	EventJoin           = "join"
	EventLeave          = "leaveRoom"
	EventCodeChange     = "codeChange"
	EventLanguageChange = "languageChange"
	EventTyping         = "typing"
	EventFileShare      = "fileShare"
)

// Outbound event names.
const (
	EventRoomSnapshot    = "roomSnapshot"
	EventUserJoined      = "userJoined"
	EventUserJoinedPopup = "userJoinedPopup"
	EventCodeUpdate      = "codeUpdate"
	EventLanguageUpdate  = "languageUpdate"
	EventUserTyping      = "userTyping"
	EventFileReceived    = "fileReceived"
)

type (
	JoinRequest struct {
		RoomID string `mapstructure:"roomId" validate:"required"`
		Name   string `mapstructure:"userName" validate:"required"`
	}

	LeaveRequest struct {
		RoomID string `mapstructure:"roomId"`
		Name   string `mapstructure:"userName"`
	}

	EditRequest struct {
		RoomID string `mapstructure:"roomId" validate:"required"`
		Text   string `mapstructure:"code"`
	}

	LanguageRequest struct {
		RoomID   string `mapstructure:"roomId" validate:"required"`
		Language string `mapstructure:"language" validate:"required"`
	}

	TypingRequest struct {
		RoomID string      `mapstructure:"roomId" validate:"required"`
		Name   string      `mapstructure:"userName"`
		Cursor core.Cursor `mapstructure:"cursor"`
	}

	FilePayload struct {
		Name     string `mapstructure:"name" validate:"required"`
		MimeType string `mapstructure:"type"`
		Size     int64  `mapstructure:"size" validate:"gte=0"`
		Content  []byte `mapstructure:"buffer"`
	}

	FileShareRequest struct {
		RoomID string      `mapstructure:"roomId" validate:"required"`
		File   FilePayload `mapstructure:"file"`
	}
)

// filePayload is built as a map so the transport can spot the binary content.
func filePayload(f core.File) map[string]any {
	return map[string]any{
		"id":       f.ID,
		"name":     f.Name,
		"type":     f.MimeType,
		"size":     f.Size,
		"buffer":   f.Content,
		"sharedBy": f.SharedBy,
		"sharedAt": f.SharedAt.UnixMilli(),
	}
}

func snapshotEvent(s core.Snapshot) broadcast.Event {
	files := make([]any, 0, len(s.Files))
	for _, f := range s.Files {
		files = append(files, filePayload(f))
	}
	return broadcast.Event{
		Name: EventRoomSnapshot,
		Payload: map[string]any{
			"roomId":   s.RoomID,
			"code":     s.Text,
			"language": s.Language,
			"users":    s.Names(),
			"files":    files,
		},
	}
}

func memberListEvent(s core.Snapshot) broadcast.Event {
	return broadcast.Event{Name: EventUserJoined, Payload: s.Names()}
}

func joinAnnouncementEvent(name string) broadcast.Event {
	return broadcast.Event{Name: EventUserJoinedPopup, Payload: name}
}

func documentUpdateEvent(text string) broadcast.Event {
	return broadcast.Event{Name: EventCodeUpdate, Payload: text}
}

func languageUpdateEvent(language string) broadcast.Event {
	return broadcast.Event{Name: EventLanguageUpdate, Payload: language}
}

func typingUpdateEvent(m core.Member, c core.Cursor) broadcast.Event {
	return broadcast.Event{
		Name: EventUserTyping,
		Payload: map[string]any{
			"userName": m.Name,
			"cursor":   c,
		},
	}
}

func fileReceivedEvent(f core.File) broadcast.Event {
	return broadcast.Event{Name: EventFileReceived, Payload: filePayload(f)}
}

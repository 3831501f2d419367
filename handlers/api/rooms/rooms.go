package rooms

import (
	"codecollab-server/core"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// RoomReader is the read side of the live rooms.
type RoomReader interface {
	Rooms() []core.RoomSummary
	Snapshot(roomID string) (core.Snapshot, bool)
	File(roomID, fileID string) (core.File, bool)
	ListTyping(roomID string) map[core.Member]core.Cursor
}

type (
	RoomInfo struct {
		ID         string `json:"id"`
		Users      int    `json:"users"`
		LastActive *int64 `json:"lastActive,omitempty"`
	}

	RoomDetail struct {
		ID       string      `json:"roomId"`
		Code     string      `json:"code"`
		Language string      `json:"language"`
		Users    []string    `json:"users"`
		Files    []core.File `json:"files"`
	}

	TypingEntry struct {
		UserName string      `json:"userName"`
		Cursor   core.Cursor `json:"cursor"`
	}
)

// HandleList lists live rooms merged with the rooms the activity store
// remembers. Busy rooms come first, then the most recently active.
func HandleList(reader RoomReader, activity core.ActivityStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomMap := make(map[string]*RoomInfo)
		for _, summary := range reader.Rooms() {
			roomMap[summary.ID] = &RoomInfo{ID: summary.ID, Users: summary.Members}
		}

		if activity != nil {
			if storedRooms, err := activity.ListRooms(r.Context()); err != nil {
				logrus.WithError(err).Warn("failed to list rooms from activity store")
			} else {
				for _, room := range storedRooms {
					entry, exists := roomMap[room.ID]
					if !exists {
						entry = &RoomInfo{ID: room.ID}
						roomMap[room.ID] = entry
					}
					if room.LastActive > 0 {
						lastActive := room.LastActive
						entry.LastActive = &lastActive
					}
				}
			}
		}

		roomList := make([]RoomInfo, 0, len(roomMap))
		for _, entry := range roomMap {
			roomList = append(roomList, *entry)
		}

		sort.Slice(roomList, func(i, j int) bool {
			if roomList[i].Users != roomList[j].Users {
				return roomList[i].Users > roomList[j].Users
			}
			li, lj := lastActive(roomList[i]), lastActive(roomList[j])
			if li == lj {
				return roomList[i].ID < roomList[j].ID
			}
			return li > lj
		})

		render.JSON(w, r, roomList)
	}
}

func lastActive(info RoomInfo) int64 {
	if info.LastActive == nil {
		return 0
	}
	return *info.LastActive
}

// HandleGet returns the room state. File content is left out; it is served by
// HandleFile.
func HandleGet(reader RoomReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")
		snap, ok := reader.Snapshot(roomID)
		if !ok {
			http.Error(w, "Room not found", http.StatusNotFound)
			return
		}

		files := make([]core.File, 0, len(snap.Files))
		for _, f := range snap.Files {
			files = append(files, f.Descriptor())
		}

		render.JSON(w, r, RoomDetail{
			ID:       snap.RoomID,
			Code:     snap.Text,
			Language: snap.Language,
			Users:    snap.Names(),
			Files:    files,
		})
	}
}

func HandleTyping(reader RoomReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")
		if _, ok := reader.Snapshot(roomID); !ok {
			http.Error(w, "Room not found", http.StatusNotFound)
			return
		}

		typing := reader.ListTyping(roomID)
		members := make([]core.Member, 0, len(typing))
		for m := range typing {
			members = append(members, m)
		}
		sort.Slice(members, func(i, j int) bool {
			if members[i].Name == members[j].Name {
				return members[i].ID < members[j].ID
			}
			return members[i].Name < members[j].Name
		})

		entries := make([]TypingEntry, 0, len(members))
		for _, m := range members {
			entries = append(entries, TypingEntry{UserName: m.Name, Cursor: typing[m]})
		}
		render.JSON(w, r, entries)
	}
}

// HandleFile serves the raw content of a shared file.
func HandleFile(reader RoomReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")
		fileID := chi.URLParam(r, "fileId")

		file, ok := reader.File(roomID, fileID)
		if !ok {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}

		contentType := file.MimeType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
		w.Header().Set("Content-Length", fmt.Sprint(len(file.Content)))
		if _, err := w.Write(file.Content); err != nil {
			logrus.WithFields(logrus.Fields{
				"room_id": roomID,
				"file_id": fileID,
			}).WithError(err).Warn("Failed to write file")
		}
	}
}

// HandleDelete forgets an idle room. Rooms with members cannot be deleted.
func HandleDelete(reader RoomReader, activity core.ActivityStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")
		if snap, ok := reader.Snapshot(roomID); ok && len(snap.Members) > 0 {
			http.Error(w, "Room is in use", http.StatusConflict)
			return
		}

		if err := activity.DeleteRoom(r.Context(), roomID); err != nil {
			http.Error(w, "Failed to delete room", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	}
}

package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrRoomNotFound    = fmt.Errorf("room not found")
	ErrNotAMember      = fmt.Errorf("not a member of room")
)

// ErrorCode maps an error to the code sent back in acks.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrNotAMember):
		return "not_a_member"
	default:
		return "internal"
	}
}

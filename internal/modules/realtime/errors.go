package realtime

import "errors"

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrInvalidToken    = errors.New("invalid token")
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomFull        = errors.New("room is full")
	ErrPrivateRoom     = errors.New("room is private")
	ErrInvalidPassword = errors.New("invalid room password")
	ErrNotHost         = errors.New("only the host can control playback")
	ErrNotInRoom       = errors.New("not in a room")
	ErrBadPayload      = errors.New("malformed payload")
	ErrChatDisabled    = errors.New("chat is disabled in this room")
)

// ErrorCode is the machine readable reason carried by the outbound error event.
type ErrorCode string

const (
	CodeUnauthenticated ErrorCode = "UNAUTHENTICATED"
	CodeInvalidToken    ErrorCode = "INVALID_TOKEN"
	CodeRoomNotFound    ErrorCode = "ROOM_NOT_FOUND"
	CodeRoomFull        ErrorCode = "ROOM_FULL"
	CodePrivateRoom     ErrorCode = "PRIVATE_ROOM"
	CodeInvalidPassword ErrorCode = "INVALID_PASSWORD"
	CodeNotHost         ErrorCode = "NOT_HOST"
	CodeNotInRoom       ErrorCode = "NOT_IN_ROOM"
	CodeBadPayload      ErrorCode = "BAD_PAYLOAD"
	CodeChatDisabled    ErrorCode = "CHAT_DISABLED"
	CodeInternal        ErrorCode = "INTERNAL"
)

var errorCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrUnauthenticated, CodeUnauthenticated},
	{ErrInvalidToken, CodeInvalidToken},
	{ErrRoomNotFound, CodeRoomNotFound},
	{ErrRoomFull, CodeRoomFull},
	{ErrPrivateRoom, CodePrivateRoom},
	{ErrInvalidPassword, CodeInvalidPassword},
	{ErrNotHost, CodeNotHost},
	{ErrNotInRoom, CodeNotInRoom},
	{ErrBadPayload, CodeBadPayload},
	{ErrChatDisabled, CodeChatDisabled},
}

// CodeOf maps an error to its wire code. Unknown errors are INTERNAL.
func CodeOf(err error) ErrorCode {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeInternal
}

// publicMessage hides storage details behind a generic message.
func publicMessage(err error) string {
	if CodeOf(err) == CodeInternal {
		return "internal error"
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.err.Error()
		}
	}
	return err.Error()
}

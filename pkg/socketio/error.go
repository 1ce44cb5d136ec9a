package socketio

import "github.com/gorilla/websocket"

// CodeSessionReplaced is sent to a socket superseded by a newer connection
// for the same user.
const CodeSessionReplaced = 4001

func NewError(msg string) *SocketError {
	return &SocketError{
		Code:    websocket.ClosePolicyViolation,
		Message: msg,
	}
}

type SocketError struct {
	Code    int
	Message string
}

func (s *SocketError) Error() string {
	return s.Message
}

package socketio

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	readBufferSize  = 1024
	writeBufferSize = 1024
)

// IO upgrades HTTP requests to websockets and tracks live sockets by id.
// It knows nothing about users; mapping user ids to socket ids is the
// presence layer's job.
type IO[T any] struct {
	websocket.Upgrader

	log     zerolog.Logger
	mu      sync.RWMutex
	sockets map[string]*Socket[T]
}

func NewIO[T any](log zerolog.Logger) *IO[T] {
	return &IO[T]{
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
		},
		log:     log,
		sockets: make(map[string]*Socket[T]),
	}
}

// ServeWS upgrades the request and registers the socket. The returned flush
// func deregisters and closes; call it when the session ends.
func (io *IO[T]) ServeWS(w http.ResponseWriter, r *http.Request) (*Socket[T], func(), error) {
	ws, err := io.Upgrade(w, r, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("io: failed to upgrade websocket connection: %w", err)
	}

	socket := NewSocket[T](ws, io.log)

	io.mu.Lock()
	io.sockets[socket.ID] = socket
	io.mu.Unlock()

	return socket, func() {
		io.mu.Lock()
		delete(io.sockets, socket.ID)
		io.mu.Unlock()

		socket.Close(websocket.CloseNormalClosure, "")
		socket.Wait()
	}, nil
}

// EmitAny delivers msg to the socket with the given id, reporting whether
// the socket was live.
func (io *IO[T]) EmitAny(socketID string, msg any) bool {
	io.mu.RLock()
	socket, ok := io.sockets[socketID]
	io.mu.RUnlock()

	if !ok {
		return false
	}

	return socket.EmitAny(msg)
}

// Disconnect closes the socket with the given close code and reason.
func (io *IO[T]) Disconnect(socketID string, code int, reason string) {
	io.mu.RLock()
	socket, ok := io.sockets[socketID]
	io.mu.RUnlock()

	if ok {
		socket.Close(code, reason)
	}
}

// Len reports the number of live sockets.
func (io *IO[T]) Len() int {
	io.mu.RLock()
	defer io.mu.RUnlock()

	return len(io.sockets)
}

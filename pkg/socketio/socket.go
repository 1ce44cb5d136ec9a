package socketio

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer.
	writeTimeout = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongTimeout = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongTimeout.
	pingTimeout = (pongTimeout * 9) / 10

	maxMessageSize = 4096
)

// Socket is one live websocket connection. Reads are surfaced on Listen,
// writes go through a single writer goroutine that also keeps the ping
// schedule. The ID is the session handle the rest of the system routes by.
type Socket[T any] struct {
	ID             string
	WriteTimeout   time.Duration
	PingTimeout    time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64

	log     zerolog.Logger
	conn    *websocket.Conn
	done    chan struct{}
	quit    sync.Once
	wg      sync.WaitGroup
	readCh  chan T
	writeCh chan any
}

func NewSocket[T any](conn *websocket.Conn, log zerolog.Logger) *Socket[T] {
	socket := &Socket[T]{
		ID:             uuid.New().String(),
		WriteTimeout:   writeTimeout,
		PongTimeout:    pongTimeout,
		PingTimeout:    pingTimeout,
		MaxMessageSize: maxMessageSize,

		conn:    conn,
		done:    make(chan struct{}),
		readCh:  make(chan T),
		writeCh: make(chan any),
	}
	socket.log = log.With().Str("session_id", socket.ID).Logger()

	socket.wg.Add(1)
	go func() {
		defer socket.wg.Done()

		socket.writer()
	}()

	socket.wg.Add(1)
	go func() {
		defer socket.wg.Done()

		socket.reader()
	}()

	return socket
}

// Emit queues msg for delivery. Returns false once the socket is closed.
func (s *Socket[T]) Emit(msg T) bool {
	select {
	case <-s.done:
		return false
	case s.writeCh <- msg:
		return true
	}
}

// EmitAny is Emit for payloads outside the inbound frame type.
func (s *Socket[T]) EmitAny(msg any) bool {
	select {
	case <-s.done:
		return false
	case s.writeCh <- msg:
		return true
	}
}

// Listen returns the inbound frame stream. The channel is closed when the
// peer goes away or the socket is closed.
func (s *Socket[T]) Listen() <-chan T {
	return s.readCh
}

// Close terminates the connection, sending the given close frame first.
// Idempotent; safe to call from any goroutine, including the reader's.
func (s *Socket[T]) Close(code int, reason string) {
	s.quit.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), time.Now().Add(s.WriteTimeout))
		close(s.done)
		_ = s.conn.Close()
	})
}

// Wait blocks until the reader and writer goroutines exit.
func (s *Socket[T]) Wait() {
	s.wg.Wait()
}

func (s *Socket[T]) writer() {
	pinger := time.NewTicker(s.PingTimeout)
	defer pinger.Stop()

	for {
		select {
		case <-s.done:
			return
		case msg := <-s.writeCh:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
			if err := s.conn.WriteJSON(msg); err != nil {
				s.log.Debug().Err(err).Msg("socket: write failed")
				s.Close(websocket.CloseInternalServerErr, err.Error())

				return
			}

		case <-pinger.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				s.Close(websocket.CloseGoingAway, "ping failed")

				return
			}
		}
	}
}

func (s *Socket[T]) reader() {
	defer close(s.readCh)

	s.conn.SetReadLimit(s.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.PongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.PongTimeout))
	})

	for {
		var msg T
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("socket: read failed")
			}

			return
		}

		select {
		case <-s.done:
			return
		case s.readCh <- msg:
		}
	}
}

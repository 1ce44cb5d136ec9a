package chat

import (
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/warrensiro/chat-server/pkg/socketio"
	"github.com/warrensiro/chat-server/pkg/ticket"
)

// Session states. A connection starts unauthenticated, becomes bound after
// the handshake token is verified and the route is registered, and is
// closed for good on disconnect. Only bound sessions may emit commands.
const (
	stateUnauthenticated int32 = iota
	stateBound
	stateClosed
)

type session struct {
	id     string
	userID string
	state  atomic.Int32
}

// Gateway is the websocket edge: it upgrades connections, drives the
// per-session state machine and feeds parsed commands into the service.
// It also implements Emitter on top of the socket registry.
type Gateway struct {
	log   zerolog.Logger
	io    *socketio.IO[Frame]
	authz ticket.Issuer
	svc   *Service
}

func NewGateway(log zerolog.Logger, authz ticket.Issuer, newService func(Emitter) *Service) *Gateway {
	g := &Gateway{
		log:   log.With().Str("component", "gateway").Logger(),
		io:    socketio.NewIO[Frame](log),
		authz: authz,
	}
	g.svc = newService(g)

	return g
}

// Service returns the chat service bound to this gateway.
func (g *Gateway) Service() *Service {
	return g.svc
}

// EmitTo implements Emitter.
func (g *Gateway) EmitTo(sessionID string, event Event) bool {
	return g.io.EmitAny(sessionID, event)
}

// CloseSession implements Emitter.
func (g *Gateway) CloseSession(sessionID string, reason string) {
	g.io.Disconnect(sessionID, socketio.CodeSessionReplaced, reason)
}

// ServeWS handles the persistent connection handshake and event loop. The
// connect token rides on the query string and is the same JWT the REST
// login issued.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	userID, err := g.authz.Verify(token)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)

		return
	}

	socket, flush, err := g.io.ServeWS(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}
	defer flush()

	sess := &session{id: socket.ID, userID: userID}

	ctx := r.Context()

	g.svc.Connected(ctx, userID, socket.ID)
	sess.state.Store(stateBound)
	g.log.Info().Str("user_id", userID).Str("session_id", socket.ID).Msg("connected")

	defer func() {
		sess.state.Store(stateClosed)
		g.svc.Disconnected(ctx, socket.ID)
		g.log.Info().Str("user_id", userID).Str("session_id", socket.ID).Msg("disconnected")
	}()

	for frame := range socket.Listen() {
		if sess.state.Load() != stateBound {
			break
		}

		cmd, err := ParseCommand(frame)
		if err != nil {
			g.log.Warn().Err(err).Str("user_id", userID).Msg("rejected frame")

			continue
		}

		g.svc.Dispatch(ctx, userID, socket.ID, cmd)
	}

	socket.Close(websocket.CloseNormalClosure, "")
}

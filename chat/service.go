package chat

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/warrensiro/chat-server/domain"
	"github.com/warrensiro/chat-server/metrics"
	"github.com/warrensiro/chat-server/store"
)

// Emitter delivers events to live sessions. Implemented by the websocket
// gateway in production and by a recorder in tests.
type Emitter interface {
	// EmitTo delivers the event to the session, reporting whether the
	// session was live. Delivery is best-effort; a false return is not an
	// error.
	EmitTo(sessionID string, event Event) bool

	// CloseSession terminates a superseded session.
	CloseSession(sessionID string, reason string)
}

// Service coordinates presence, the friend request ledger and conversations.
// Every mutating event from a bound session passes through Dispatch, which
// follows one template: validate and authorize, apply at most one store
// mutation, resolve routes, emit at most one event per affected live user.
//
// Rejections (bad input, not the owner, stale ids) drop the event with a log
// line and no state change. Store failures likewise drop the event; the
// client's idempotency token makes its retry safe.
type Service struct {
	log      zerolog.Logger
	store    store.Store
	presence *Presence
	emitter  Emitter
}

func NewService(log zerolog.Logger, st store.Store, emitter Emitter) *Service {
	return &Service{
		log:      log.With().Str("component", "chat").Logger(),
		store:    st,
		presence: NewPresence(),
		emitter:  emitter,
	}
}

// Presence exposes the routing core, e.g. for the REST layer to report
// online status.
func (s *Service) Presence() *Presence {
	return s.presence
}

// Connected binds the session as userID's live route and runs the reconnect
// catch-up: every message addressed to userID still in sent moves to
// delivered, and each original sender that is online is told so.
func (s *Service) Connected(ctx context.Context, userID, sessionID string) {
	if previous := s.presence.Bind(userID, sessionID); previous != "" {
		s.emitter.CloseSession(previous, "session replaced")
	}
	metrics.OnlineUsers.Set(float64(s.presence.Count()))

	receipts, err := s.store.Conversations.MarkDeliveredForRecipient(ctx, userID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("reconnect catch-up failed")

		return
	}

	for _, r := range receipts {
		metrics.MessagesTotal.WithLabelValues("delivered").Inc()
		s.emitToUser(r.Sender, MessageDeliveredEvent{
			Type:           EventMessageDelivered,
			ConversationID: r.ConversationID,
			MessageID:      r.MessageID,
		})
	}
}

// Disconnected clears the route if sessionID still owns it.
func (s *Service) Disconnected(_ context.Context, sessionID string) {
	if userID, ok := s.presence.Unbind(sessionID); ok {
		s.log.Debug().Str("user_id", userID).Str("session_id", sessionID).Msg("user offline")
	}
	metrics.OnlineUsers.Set(float64(s.presence.Count()))
}

// Dispatch routes one command from a bound session. userID is the identity
// the session authenticated as; sessionID is where replies go.
func (s *Service) Dispatch(ctx context.Context, userID, sessionID string, cmd Command) {
	switch c := cmd.(type) {
	case FriendRequestCmd:
		metrics.EventsTotal.WithLabelValues(CmdFriendRequest).Inc()
		s.friendRequest(ctx, userID, c)
	case AcceptRequestCmd:
		metrics.EventsTotal.WithLabelValues(CmdAcceptRequest).Inc()
		s.acceptRequest(ctx, userID, c)
	case ListConversationsCmd:
		metrics.EventsTotal.WithLabelValues(CmdGetDirectConversations).Inc()
		s.listConversations(ctx, userID, sessionID)
	case StartConversationCmd:
		metrics.EventsTotal.WithLabelValues(CmdStartConversation).Inc()
		s.startConversation(ctx, userID, sessionID, c)
	case GetMessagesCmd:
		metrics.EventsTotal.WithLabelValues(CmdGetMessages).Inc()
		s.getMessages(ctx, userID, sessionID, c)
	case TextMessageCmd:
		metrics.EventsTotal.WithLabelValues(CmdTextMessage).Inc()
		s.textMessage(ctx, userID, c)
	case MessageDeliveredCmd:
		metrics.EventsTotal.WithLabelValues(CmdMessageDelivered).Inc()
		s.messageDelivered(ctx, userID, c)
	case MessagesReadCmd:
		metrics.EventsTotal.WithLabelValues(CmdMessagesRead).Inc()
		s.messagesRead(ctx, userID, c)
	default:
		s.log.Warn().Str("user_id", userID).Msgf("unhandled command %T", cmd)
	}
}

func (s *Service) friendRequest(ctx context.Context, from string, cmd FriendRequestCmd) {
	if cmd.To == from {
		s.drop("friend_request", from, "self request")

		return
	}

	sender, err := s.store.Users.ByID(ctx, from)
	if err != nil {
		s.dropErr("friend_request", from, err)

		return
	}
	if _, err := s.store.Users.ByID(ctx, cmd.To); err != nil {
		s.dropErr("friend_request", from, err)

		return
	}
	if sender.IsFriendsWith(cmd.To) {
		s.drop("friend_request", from, "already friends")

		return
	}

	pending, err := s.store.Requests.PendingBetween(ctx, from, cmd.To)
	if err != nil {
		s.dropErr("friend_request", from, err)

		return
	}
	if pending {
		s.drop("friend_request", from, "request already pending")

		return
	}

	req := &domain.FriendRequest{Sender: from, Recipient: cmd.To}
	if err := s.store.Requests.Create(ctx, req); err != nil {
		s.dropErr("friend_request", from, err)

		return
	}

	s.emitToUser(cmd.To, NewFriendRequestEvent{
		Type:      EventNewFriendRequest,
		RequestID: req.ID,
		Sender:    sender.Public(),
	})
	s.emitToUser(from, RequestSentEvent{
		Type:      EventRequestSent,
		RequestID: req.ID,
	})
}

func (s *Service) acceptRequest(ctx context.Context, userID string, cmd AcceptRequestCmd) {
	req, err := s.store.Requests.ByID(ctx, cmd.RequestID)
	if err != nil {
		s.dropErr("accept_request", userID, err)

		return
	}
	if req.Recipient != userID {
		s.drop("accept_request", userID, "not the recipient")

		return
	}

	// The multi-step mutation below is not atomic. Friend-set updates come
	// first because they are idempotent; a crash before the delete leaves a
	// request that can be accepted again harmlessly.
	if err := s.store.Users.AddFriend(ctx, req.Sender, req.Recipient); err != nil {
		s.dropErr("accept_request", userID, err)

		return
	}
	if err := s.store.Users.AddFriend(ctx, req.Recipient, req.Sender); err != nil {
		s.dropErr("accept_request", userID, err)

		return
	}
	if err := s.store.Requests.Delete(ctx, req.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.dropErr("accept_request", userID, err)

		return
	}

	convo, err := s.store.Conversations.FindOrCreate(ctx, req.Sender, req.Recipient)
	if err != nil {
		s.dropErr("accept_request", userID, err)

		return
	}

	accepted := RequestAcceptedEvent{
		Type:         EventRequestAccepted,
		RequestID:    req.ID,
		Conversation: *convo,
	}
	s.emitToUser(req.Sender, accepted)
	s.emitToUser(req.Recipient, accepted)
}

func (s *Service) listConversations(ctx context.Context, userID, sessionID string) {
	convos, err := s.store.Conversations.ListFor(ctx, userID)
	if err != nil {
		s.dropErr("get_direct_conversations", userID, err)

		return
	}

	s.emitter.EmitTo(sessionID, ConversationListEvent{
		Type:          EventConversationList,
		Conversations: convos,
	})
}

func (s *Service) startConversation(ctx context.Context, userID, sessionID string, cmd StartConversationCmd) {
	if cmd.To == userID {
		s.drop("start_conversation", userID, "self conversation")

		return
	}
	if _, err := s.store.Users.ByID(ctx, cmd.To); err != nil {
		s.dropErr("start_conversation", userID, err)

		return
	}

	convo, err := s.store.Conversations.FindOrCreate(ctx, userID, cmd.To)
	if err != nil {
		s.dropErr("start_conversation", userID, err)

		return
	}

	s.emitter.EmitTo(sessionID, ConversationStartedEvent{
		Type:         EventConversationStarted,
		Conversation: *convo,
	})
}

func (s *Service) getMessages(ctx context.Context, userID, sessionID string, cmd GetMessagesCmd) {
	convo, err := s.store.Conversations.ByID(ctx, cmd.ConversationID)
	if err != nil {
		s.dropErr("get_messages", userID, err)

		return
	}
	if !convo.HasParticipant(userID) {
		s.drop("get_messages", userID, "not a participant")

		return
	}

	s.emitter.EmitTo(sessionID, MessageListEvent{
		Type:           EventMessageList,
		ConversationID: convo.ID,
		Messages:       convo.Messages,
	})
}

func (s *Service) textMessage(ctx context.Context, userID string, cmd TextMessageCmd) {
	convo, err := s.store.Conversations.ByID(ctx, cmd.ConversationID)
	if err != nil {
		s.dropErr("text_message", userID, err)

		return
	}
	if !convo.HasParticipant(userID) {
		s.drop("text_message", userID, "not a participant")

		return
	}
	recipient := convo.Other(userID)

	msg, err := s.store.Conversations.AppendMessage(ctx, convo.ID, domain.Message{
		ClientID: cmd.ClientID,
		From:     userID,
		To:       recipient,
		Kind:     cmd.Kind,
		Body:     cmd.Body,
	})
	if err != nil {
		s.dropErr("text_message", userID, err)

		return
	}
	metrics.MessagesTotal.WithLabelValues("sent").Inc()

	evt := NewMessageEvent{
		Type:           EventNewMessage,
		ConversationID: convo.ID,
		Message:        msg,
	}
	s.emitToUser(userID, evt)
	s.emitToUser(recipient, evt)
}

func (s *Service) messageDelivered(ctx context.Context, userID string, cmd MessageDeliveredCmd) {
	convo, err := s.store.Conversations.ByID(ctx, cmd.ConversationID)
	if err != nil {
		s.dropErr("message_delivered", userID, err)

		return
	}

	sender := ""
	for _, m := range convo.Messages {
		if m.ID == cmd.MessageID {
			sender = m.From

			break
		}
	}
	if sender == "" {
		s.drop("message_delivered", userID, "unknown message")

		return
	}

	// The store enforces recipient and sent-status atomically; duplicate or
	// out-of-order acks come back as a clean false.
	ok, err := s.store.Conversations.MarkDelivered(ctx, convo.ID, cmd.MessageID, userID)
	if err != nil {
		s.dropErr("message_delivered", userID, err)

		return
	}
	if !ok {
		return
	}
	metrics.MessagesTotal.WithLabelValues("delivered").Inc()

	s.emitToUser(sender, MessageDeliveredEvent{
		Type:           EventMessageDelivered,
		ConversationID: convo.ID,
		MessageID:      cmd.MessageID,
	})
}

func (s *Service) messagesRead(ctx context.Context, userID string, cmd MessagesReadCmd) {
	n, err := s.store.Conversations.MarkAllRead(ctx, cmd.ConversationID, userID)
	if err != nil {
		s.dropErr("messages_read", userID, err)

		return
	}
	if n == 0 {
		return
	}
	metrics.MessagesTotal.WithLabelValues("read").Add(float64(n))

	convo, err := s.store.Conversations.ByID(ctx, cmd.ConversationID)
	if err != nil {
		s.dropErr("messages_read", userID, err)

		return
	}

	s.emitToUser(convo.Other(userID), MessagesReadEvent{
		Type:           EventMessagesRead,
		ConversationID: convo.ID,
	})
}

// emitToUser resolves the user's live route and delivers, silently skipping
// offline users.
func (s *Service) emitToUser(userID string, evt Event) {
	sessionID, ok := s.presence.RouteOf(userID)
	if !ok {
		return
	}

	s.emitter.EmitTo(sessionID, evt)
}

func (s *Service) drop(event, userID, reason string) {
	s.log.Warn().Str("event", event).Str("user_id", userID).Msg("dropped: " + reason)
}

func (s *Service) dropErr(event, userID string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.log.Warn().Str("event", event).Str("user_id", userID).Msg("dropped: not found")

		return
	}

	s.log.Error().Err(err).Str("event", event).Str("user_id", userID).Msg("dropped: store error")
}

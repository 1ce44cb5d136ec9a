package chat

import "github.com/warrensiro/chat-server/domain"

// Outbound event names.
const (
	EventNewFriendRequest    = "new_friend_request"
	EventRequestSent         = "request_sent"
	EventRequestAccepted     = "request_accepted"
	EventConversationStarted = "conversation_started"
	EventConversationList    = "conversation_list"
	EventMessageList         = "message_list"
	EventNewMessage          = "new_message"
	EventMessageDelivered    = "message_delivered"
	EventMessagesRead        = "messages_read"
)

// Event is an outbound frame. The Type discriminator is part of each
// concrete struct so the JSON shape is flat, mirroring inbound frames.
type Event interface {
	isEvent()
}

type NewFriendRequestEvent struct {
	Type      string        `json:"type"`
	RequestID string        `json:"request_id"`
	Sender    domain.Public `json:"sender"`
}

type RequestSentEvent struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
}

type RequestAcceptedEvent struct {
	Type         string              `json:"type"`
	RequestID    string              `json:"request_id"`
	Conversation domain.Conversation `json:"conversation"`
}

type ConversationStartedEvent struct {
	Type         string              `json:"type"`
	Conversation domain.Conversation `json:"conversation"`
}

type ConversationListEvent struct {
	Type          string                `json:"type"`
	Conversations []domain.Conversation `json:"conversations"`
}

type MessageListEvent struct {
	Type           string           `json:"type"`
	ConversationID string           `json:"conversation_id"`
	Messages       []domain.Message `json:"messages"`
}

type NewMessageEvent struct {
	Type           string         `json:"type"`
	ConversationID string         `json:"conversation_id"`
	Message        domain.Message `json:"message"`
}

type MessageDeliveredEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

type MessagesReadEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
}

func (NewFriendRequestEvent) isEvent()    {}
func (RequestSentEvent) isEvent()         {}
func (RequestAcceptedEvent) isEvent()     {}
func (ConversationStartedEvent) isEvent() {}
func (ConversationListEvent) isEvent()    {}
func (MessageListEvent) isEvent()         {}
func (NewMessageEvent) isEvent()          {}
func (MessageDeliveredEvent) isEvent()    {}
func (MessagesReadEvent) isEvent()        {}

package chat

import (
	"errors"
	"fmt"

	"github.com/warrensiro/chat-server/domain"
)

// Inbound event names.
const (
	CmdFriendRequest          = "friend_request"
	CmdAcceptRequest          = "accept_request"
	CmdGetDirectConversations = "get_direct_conversations"
	CmdStartConversation      = "start_conversation"
	CmdGetMessages            = "get_messages"
	CmdTextMessage            = "text_message"
	CmdMessageDelivered       = "message_delivered"
	CmdMessagesRead           = "messages_read"
)

// Frame is the flat JSON wire shape for inbound events. Which fields are
// meaningful depends on Type; ParseCommand narrows a frame into a typed
// command and rejects malformed ones.
type Frame struct {
	Type           string             `json:"type"`
	To             string             `json:"to,omitempty"`
	From           string             `json:"from,omitempty"`
	RequestID      string             `json:"request_id,omitempty"`
	ConversationID string             `json:"conversation_id,omitempty"`
	MessageID      string             `json:"message_id,omitempty"`
	ClientID       string             `json:"client_id,omitempty"`
	Message        string             `json:"message,omitempty"`
	Kind           domain.MessageKind `json:"kind,omitempty"`
}

var ErrBadCommand = errors.New("chat: bad command")

// Command is the tagged union of everything a bound session may ask for.
type Command interface {
	isCommand()
}

type FriendRequestCmd struct {
	To string
}

type AcceptRequestCmd struct {
	RequestID string
}

type ListConversationsCmd struct{}

type StartConversationCmd struct {
	To string
}

type GetMessagesCmd struct {
	ConversationID string
}

type TextMessageCmd struct {
	ConversationID string
	ClientID       string
	Body           string
	Kind           domain.MessageKind
}

type MessageDeliveredCmd struct {
	ConversationID string
	MessageID      string
}

type MessagesReadCmd struct {
	ConversationID string
}

func (FriendRequestCmd) isCommand()     {}
func (AcceptRequestCmd) isCommand()     {}
func (ListConversationsCmd) isCommand() {}
func (StartConversationCmd) isCommand() {}
func (GetMessagesCmd) isCommand()       {}
func (TextMessageCmd) isCommand()       {}
func (MessageDeliveredCmd) isCommand()  {}
func (MessagesReadCmd) isCommand()      {}

// ParseCommand validates a frame and returns its typed command.
func ParseCommand(f Frame) (Command, error) {
	switch f.Type {
	case CmdFriendRequest:
		if f.To == "" {
			return nil, fmt.Errorf("%w: friend_request requires to", ErrBadCommand)
		}

		return FriendRequestCmd{To: f.To}, nil

	case CmdAcceptRequest:
		if f.RequestID == "" {
			return nil, fmt.Errorf("%w: accept_request requires request_id", ErrBadCommand)
		}

		return AcceptRequestCmd{RequestID: f.RequestID}, nil

	case CmdGetDirectConversations:
		return ListConversationsCmd{}, nil

	case CmdStartConversation:
		if f.To == "" {
			return nil, fmt.Errorf("%w: start_conversation requires to", ErrBadCommand)
		}

		return StartConversationCmd{To: f.To}, nil

	case CmdGetMessages:
		if f.ConversationID == "" {
			return nil, fmt.Errorf("%w: get_messages requires conversation_id", ErrBadCommand)
		}

		return GetMessagesCmd{ConversationID: f.ConversationID}, nil

	case CmdTextMessage:
		if f.ConversationID == "" || f.Message == "" {
			return nil, fmt.Errorf("%w: text_message requires conversation_id and message", ErrBadCommand)
		}
		kind := f.Kind
		if kind == "" {
			kind = domain.MessageText
		}
		if !domain.ValidKind(kind) {
			return nil, fmt.Errorf("%w: unknown message kind %q", ErrBadCommand, f.Kind)
		}

		return TextMessageCmd{
			ConversationID: f.ConversationID,
			ClientID:       f.ClientID,
			Body:           f.Message,
			Kind:           kind,
		}, nil

	case CmdMessageDelivered:
		if f.ConversationID == "" || f.MessageID == "" {
			return nil, fmt.Errorf("%w: message_delivered requires conversation_id and message_id", ErrBadCommand)
		}

		return MessageDeliveredCmd{ConversationID: f.ConversationID, MessageID: f.MessageID}, nil

	case CmdMessagesRead:
		if f.ConversationID == "" {
			return nil, fmt.Errorf("%w: messages_read requires conversation_id", ErrBadCommand)
		}

		return MessagesReadCmd{ConversationID: f.ConversationID}, nil
	}

	return nil, fmt.Errorf("%w: unknown type %q", ErrBadCommand, f.Type)
}

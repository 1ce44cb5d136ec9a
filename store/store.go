// Package store defines the persistence contracts for users, the friend
// request ledger and conversations. Implementations: mongostore (production)
// and memstore (in-memory, used by tests and local development).
package store

import (
	"context"
	"errors"

	"github.com/warrensiro/chat-server/domain"
)

var (
	// ErrNotFound is returned when the addressed document does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a create collides with an existing
	// document (duplicate email, concurrent conversation create).
	ErrConflict = errors.New("store: conflict")
)

type Users interface {
	Create(ctx context.Context, u *domain.User) error
	ByID(ctx context.Context, id string) (*domain.User, error)
	ByEmail(ctx context.Context, email string) (*domain.User, error)
	// Update replaces the mutable profile fields of the user.
	Update(ctx context.Context, u *domain.User) error
	MarkVerified(ctx context.Context, id string) error
	// AddFriend adds friendID to userID's friend set. Idempotent.
	AddFriend(ctx context.Context, userID, friendID string) error
	ListVerified(ctx context.Context) ([]domain.User, error)
}

type Requests interface {
	Create(ctx context.Context, r *domain.FriendRequest) error
	ByID(ctx context.Context, id string) (*domain.FriendRequest, error)
	// PendingBetween reports whether a request is pending between the two
	// users, in either direction.
	PendingBetween(ctx context.Context, a, b string) (bool, error)
	ListForRecipient(ctx context.Context, userID string) ([]domain.FriendRequest, error)
	Delete(ctx context.Context, id string) error
}

// Receipt identifies one message whose status advanced to delivered during
// reconnect catch-up, and the sender owed the notification.
type Receipt struct {
	ConversationID string
	MessageID      string
	Sender         string
}

type Conversations interface {
	// FindOrCreate returns the conversation for the unordered pair {a, b},
	// creating it if absent. At most one conversation exists per pair.
	FindOrCreate(ctx context.Context, a, b string) (*domain.Conversation, error)
	ByID(ctx context.Context, id string) (*domain.Conversation, error)
	// ListFor returns userID's conversations, most recent activity first.
	ListFor(ctx context.Context, userID string) ([]domain.Conversation, error)
	// AppendMessage appends msg with status sent, stamping id and creation
	// time. If a message with msg.ClientID already exists in the
	// conversation the call is a no-op returning the stored message.
	AppendMessage(ctx context.Context, conversationID string, msg domain.Message) (domain.Message, error)
	// MarkDelivered advances the message sent -> delivered, only if
	// requestingUserID is the recipient and the status is still sent.
	// Returns false (no error) when the transition does not apply.
	MarkDelivered(ctx context.Context, conversationID, messageID, requestingUserID string) (bool, error)
	// MarkAllRead advances every message addressed to requestingUserID with
	// status sent or delivered to read. Returns the number of messages
	// transitioned.
	MarkAllRead(ctx context.Context, conversationID, requestingUserID string) (int, error)
	// MarkDeliveredForRecipient advances every sent message addressed to
	// userID, across all conversations, to delivered. Used by the
	// reconnect catch-up protocol.
	MarkDeliveredForRecipient(ctx context.Context, userID string) ([]Receipt, error)
}

// Store bundles the three collections for wiring.
type Store struct {
	Users         Users
	Requests      Requests
	Conversations Conversations
}

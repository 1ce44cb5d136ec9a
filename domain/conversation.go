package domain

import "time"

type MessageKind string

const (
	MessageText     MessageKind = "text"
	MessageMedia    MessageKind = "media"
	MessageDocument MessageKind = "document"
	MessageLink     MessageKind = "link"
)

// ValidKind reports whether k is one of the wire message kinds.
func ValidKind(k MessageKind) bool {
	switch k {
	case MessageText, MessageMedia, MessageDocument, MessageLink:
		return true
	}

	return false
}

type MessageStatus string

// Message status only moves forward: sent -> delivered -> read.
const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Message is one entry in a conversation's log. Everything except Status is
// immutable after creation. ClientID is the client-supplied idempotency
// token used to collapse retransmissions.
type Message struct {
	ID        string        `bson:"id" json:"id"`
	ClientID  string        `bson:"client_id" json:"client_id"`
	From      string        `bson:"from" json:"from"`
	To        string        `bson:"to" json:"to"`
	Kind      MessageKind   `bson:"kind" json:"kind"`
	Body      string        `bson:"body" json:"body"`
	Status    MessageStatus `bson:"status" json:"status"`
	CreatedAt time.Time     `bson:"created_at" json:"created_at"`
}

// Conversation is the ordered message log between exactly two distinct
// users. Participants is stored sorted so the pair key is canonical.
type Conversation struct {
	ID           string    `bson:"_id" json:"id"`
	Participants []string  `bson:"participants" json:"participants"`
	Messages     []Message `bson:"messages" json:"messages"`
	LastActivity time.Time `bson:"last_activity" json:"last_activity"`
}

// Other returns the participant that is not userID, or "" if userID is not
// a participant.
func (c *Conversation) Other(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}

	return ""
}

// HasParticipant reports whether userID takes part in the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}

	return false
}

// PairKey returns the canonical (sorted) participant pair.
func PairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}

	return [2]string{a, b}
}

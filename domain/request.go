package domain

import "time"

// FriendRequest is a pending relationship request. At most one pending
// request exists per unordered {Sender, Recipient} pair; the record is
// consumed on accept. There is no reject or cancel state.
type FriendRequest struct {
	ID        string    `bson:"_id" json:"id"`
	Sender    string    `bson:"sender" json:"sender"`
	Recipient string    `bson:"recipient" json:"recipient"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

package domain

import "time"

// User is a registered account. Friends holds user ids and is symmetric:
// an id appears here iff this user's id appears in that user's Friends.
type User struct {
	ID        string    `bson:"_id" json:"id"`
	FirstName string    `bson:"first_name" json:"first_name"`
	LastName  string    `bson:"last_name" json:"last_name"`
	Email     string    `bson:"email" json:"email"`
	Avatar    string    `bson:"avatar,omitempty" json:"avatar,omitempty"`
	About     string    `bson:"about,omitempty" json:"about,omitempty"`
	Password  string    `bson:"password" json:"-"`
	Verified  bool      `bson:"verified" json:"verified"`
	Friends   []string  `bson:"friends" json:"friends"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsFriendsWith reports whether id is in the user's friend set.
func (u *User) IsFriendsWith(id string) bool {
	for _, f := range u.Friends {
		if f == id {
			return true
		}
	}

	return false
}

// Public is the user projection safe to hand to other users.
type Public struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Avatar    string `json:"avatar,omitempty"`
}

func (u *User) Public() Public {
	return Public{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Avatar:    u.Avatar,
	}
}

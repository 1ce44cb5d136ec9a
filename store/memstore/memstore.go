// Package memstore is an in-memory implementation of the store contracts.
// It mirrors the semantics of the mongo store behind a single mutex and is
// what the tests and local development run against.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warrensiro/chat-server/domain"
	"github.com/warrensiro/chat-server/store"
)

type DB struct {
	mu            sync.RWMutex
	users         map[string]*domain.User
	requests      map[string]*domain.FriendRequest
	conversations map[string]*domain.Conversation
	pairs         map[[2]string]string // canonical pair -> conversation id
}

func New() *DB {
	return &DB{
		users:         make(map[string]*domain.User),
		requests:      make(map[string]*domain.FriendRequest),
		conversations: make(map[string]*domain.Conversation),
		pairs:         make(map[[2]string]string),
	}
}

// Store exposes the database as the three collection contracts.
func (d *DB) Store() store.Store {
	return store.Store{
		Users:         &usersView{db: d},
		Requests:      &requestsView{db: d},
		Conversations: &conversationsView{db: d},
	}
}

type usersView struct{ db *DB }

func (v *usersView) Create(_ context.Context, u *domain.User) error {
	v.db.mu.Lock()
	defer v.db.mu.Unlock()

	for _, existing := range v.db.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return store.ErrConflict
		}
	}

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now

	v.db.users[u.ID] = copyUser(u)

	return nil
}

func (v *usersView) ByID(_ context.Context, id string) (*domain.User, error) {
	v.db.mu.RLock()
	defer v.db.mu.RUnlock()

	u, ok := v.db.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	return copyUser(u), nil
}

func (v *usersView) ByEmail(_ context.Context, email string) (*domain.User, error) {
	v.db.mu.RLock()
	defer v.db.mu.RUnlock()

	for _, u := range v.db.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}

	return nil, store.ErrNotFound
}

func (v *usersView) Update(_ context.Context, u *domain.User) error {
	v.db.mu.Lock()
	defer v.db.mu.Unlock()

	existing, ok := v.db.users[u.ID]
	if !ok {
		return store.ErrNotFound
	}

	existing.FirstName = u.FirstName
	existing.LastName = u.LastName
	existing.Avatar = u.Avatar
	existing.About = u.About
	existing.Password = u.Password
	existing.UpdatedAt = time.Now()

	return nil
}

func (v *usersView) MarkVerified(_ context.Context, id string) error {
	v.db.mu.Lock()
	defer v.db.mu.Unlock()

	u, ok := v.db.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Verified = true
	u.UpdatedAt = time.Now()

	return nil
}

func (v *usersView) AddFriend(_ context.Context, userID, friendID string) error {
	v.db.mu.Lock()
	defer v.db.mu.Unlock()

	u, ok := v.db.users[userID]
	if !ok {
		return store.ErrNotFound
	}

	for _, f := range u.Friends {
		if f == friendID {
			return nil
		}
	}
	u.Friends = append(u.Friends, friendID)
	u.UpdatedAt = time.Now()

	return nil
}

func (v *usersView) ListVerified(_ context.Context) ([]domain.User, error) {
	v.db.mu.RLock()
	defer v.db.mu.RUnlock()

	var out []domain.User
	for _, u := range v.db.users {
		if u.Verified {
			out = append(out, *copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

type requestsView struct{ db *DB }

func (v *requestsView) Create(_ context.Context, r *domain.FriendRequest) error {
	v.db.mu.Lock()
	defer v.db.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = time.Now()

	cp := *r
	v.db.requests[r.ID] = &cp

	return nil
}

func (v *requestsView) ByID(_ context.Context, id string) (*domain.FriendRequest, error) {
	v.db.mu.RLock()
	defer v.db.mu.RUnlock()

	r, ok := v.db.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	cp := *r

	return &cp, nil
}

func (v *requestsView) PendingBetween(_ context.Context, a, b string) (bool, error) {
	v.db.mu.RLock()
	defer v.db.mu.RUnlock()

	for _, r := range v.db.requests {
		if (r.Sender == a && r.Recipient == b) || (r.Sender == b && r.Recipient == a) {
			return true, nil
		}
	}

	return false, nil
}

func (v *requestsView) ListForRecipient(_ context.Context, userID string) ([]domain.FriendRequest, error) {
	v.db.mu.RLock()
	defer v.db.mu.RUnlock()

	var out []domain.FriendRequest
	for _, r := range v.db.requests {
		if r.Recipient == userID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out, nil
}

func (v *requestsView) Delete(_ context.Context, id string) error {
	v.db.mu.Lock()
	defer v.db.mu.Unlock()

	if _, ok := v.db.requests[id]; !ok {
		return store.ErrNotFound
	}
	delete(v.db.requests, id)

	return nil
}

type conversationsView struct{ db *DB }

func (v *conversationsView) FindOrCreate(_ context.Context, a, b string) (*domain.Conversation, error) {
	v.db.mu.Lock()
	defer v.db.mu.Unlock()

	key := domain.PairKey(a, b)
	if id, ok := v.db.pairs[key]; ok {
		return copyConversation(v.db.conversations[id]), nil
	}

	c := &domain.Conversation{
		ID:           uuid.NewString(),
		Participants: []string{key[0], key[1]},
		Messages:     []domain.Message{},
		LastActivity: time.Now(),
	}
	v.db.conversations[c.ID] = c
	v.db.pairs[key] = c.ID

	return copyConversation(c), nil
}

func (v *conversationsView) ByID(_ context.Context, id string) (*domain.Conversation, error) {
	v.db.mu.RLock()
	defer v.db.mu.RUnlock()

	c, ok := v.db.conversations[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	return copyConversation(c), nil
}

func (v *conversationsView) ListFor(_ context.Context, userID string) ([]domain.Conversation, error) {
	v.db.mu.RLock()
	defer v.db.mu.RUnlock()

	var out []domain.Conversation
	for _, c := range v.db.conversations {
		if c.HasParticipant(userID) {
			out = append(out, *copyConversation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })

	return out, nil
}

func (v *conversationsView) AppendMessage(_ context.Context, conversationID string, msg domain.Message) (domain.Message, error) {
	v.db.mu.Lock()
	defer v.db.mu.Unlock()

	c, ok := v.db.conversations[conversationID]
	if !ok {
		return domain.Message{}, store.ErrNotFound
	}

	if msg.ClientID != "" {
		for _, m := range c.Messages {
			if m.ClientID == msg.ClientID {
				return m, nil
			}
		}
	}

	msg.ID = uuid.NewString()
	msg.Status = domain.StatusSent
	msg.CreatedAt = time.Now()

	c.Messages = append(c.Messages, msg)
	c.LastActivity = msg.CreatedAt

	return msg, nil
}

func (v *conversationsView) MarkDelivered(_ context.Context, conversationID, messageID, requestingUserID string) (bool, error) {
	v.db.mu.Lock()
	defer v.db.mu.Unlock()

	c, ok := v.db.conversations[conversationID]
	if !ok {
		return false, nil
	}

	for i := range c.Messages {
		m := &c.Messages[i]
		if m.ID != messageID {
			continue
		}
		if m.To != requestingUserID || m.Status != domain.StatusSent {
			return false, nil
		}
		m.Status = domain.StatusDelivered

		return true, nil
	}

	return false, nil
}

func (v *conversationsView) MarkAllRead(_ context.Context, conversationID, requestingUserID string) (int, error) {
	v.db.mu.Lock()
	defer v.db.mu.Unlock()

	c, ok := v.db.conversations[conversationID]
	if !ok {
		return 0, nil
	}

	n := 0
	for i := range c.Messages {
		m := &c.Messages[i]
		if m.To != requestingUserID || m.Status == domain.StatusRead {
			continue
		}
		m.Status = domain.StatusRead
		n++
	}

	return n, nil
}

func (v *conversationsView) MarkDeliveredForRecipient(_ context.Context, userID string) ([]store.Receipt, error) {
	v.db.mu.Lock()
	defer v.db.mu.Unlock()

	var receipts []store.Receipt
	for _, c := range v.db.conversations {
		for i := range c.Messages {
			m := &c.Messages[i]
			if m.To != userID || m.Status != domain.StatusSent {
				continue
			}
			m.Status = domain.StatusDelivered
			receipts = append(receipts, store.Receipt{
				ConversationID: c.ID,
				MessageID:      m.ID,
				Sender:         m.From,
			})
		}
	}

	return receipts, nil
}

func copyUser(u *domain.User) *domain.User {
	cp := *u
	cp.Friends = append([]string(nil), u.Friends...)

	return &cp
}

func copyConversation(c *domain.Conversation) *domain.Conversation {
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	cp.Messages = append([]domain.Message(nil), c.Messages...)

	return &cp
}

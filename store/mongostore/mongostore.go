// Package mongostore implements the store contracts on MongoDB. Message
// status transitions use array-filtered updates so the guard (recipient,
// current status) and the write happen in one atomic document update.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/warrensiro/chat-server/domain"
	"github.com/warrensiro/chat-server/store"
)

const (
	colUsers         = "users"
	colRequests      = "friend_requests"
	colConversations = "conversations"
)

type DB struct {
	db *mongo.Database
}

func New(db *mongo.Database) *DB {
	return &DB{db: db}
}

// Store exposes the database as the three collection contracts.
func (d *DB) Store() store.Store {
	return store.Store{
		Users:         &usersCol{c: d.db.Collection(colUsers)},
		Requests:      &requestsCol{c: d.db.Collection(colRequests)},
		Conversations: &conversationsCol{c: d.db.Collection(colConversations)},
	}
}

// EnsureIndexes creates the unique indexes the store semantics rely on:
// one account per email, one conversation per participant pair.
func (d *DB) EnsureIndexes(ctx context.Context) error {
	_, err := d.db.Collection(colUsers).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("mongostore: users index: %w", err)
	}

	_, err = d.db.Collection(colConversations).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "participants", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("mongostore: conversations index: %w", err)
	}

	_, err = d.db.Collection(colRequests).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "recipient", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("mongostore: requests index: %w", err)
	}

	return nil
}

type usersCol struct{ c *mongo.Collection }

func (v *usersCol) Create(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		u.ID = primitive.NewObjectID().Hex()
	}
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := v.c.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrConflict
		}

		return fmt.Errorf("mongostore: insert user: %w", err)
	}

	return nil
}

func (v *usersCol) ByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := v.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: find user: %w", err)
	}

	return &u, nil
}

func (v *usersCol) ByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := v.c.FindOne(ctx, bson.M{"email": email}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: find user by email: %w", err)
	}

	return &u, nil
}

func (v *usersCol) Update(ctx context.Context, u *domain.User) error {
	res, err := v.c.UpdateByID(ctx, u.ID, bson.M{"$set": bson.M{
		"first_name": u.FirstName,
		"last_name":  u.LastName,
		"avatar":     u.Avatar,
		"about":      u.About,
		"password":   u.Password,
		"updated_at": time.Now(),
	}})
	if err != nil {
		return fmt.Errorf("mongostore: update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}

	return nil
}

func (v *usersCol) MarkVerified(ctx context.Context, id string) error {
	res, err := v.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"verified":   true,
		"updated_at": time.Now(),
	}})
	if err != nil {
		return fmt.Errorf("mongostore: mark verified: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}

	return nil
}

func (v *usersCol) AddFriend(ctx context.Context, userID, friendID string) error {
	res, err := v.c.UpdateByID(ctx, userID, bson.M{
		"$addToSet": bson.M{"friends": friendID},
		"$set":      bson.M{"updated_at": time.Now()},
	})
	if err != nil {
		return fmt.Errorf("mongostore: add friend: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}

	return nil
}

func (v *usersCol) ListVerified(ctx context.Context) ([]domain.User, error) {
	cur, err := v.c.Find(ctx, bson.M{"verified": true})
	if err != nil {
		return nil, fmt.Errorf("mongostore: list users: %w", err)
	}

	var out []domain.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongostore: decode users: %w", err)
	}

	return out, nil
}

type requestsCol struct{ c *mongo.Collection }

func (v *requestsCol) Create(ctx context.Context, r *domain.FriendRequest) error {
	if r.ID == "" {
		r.ID = primitive.NewObjectID().Hex()
	}
	r.CreatedAt = time.Now()

	if _, err := v.c.InsertOne(ctx, r); err != nil {
		return fmt.Errorf("mongostore: insert request: %w", err)
	}

	return nil
}

func (v *requestsCol) ByID(ctx context.Context, id string) (*domain.FriendRequest, error) {
	var r domain.FriendRequest
	err := v.c.FindOne(ctx, bson.M{"_id": id}).Decode(&r)
	if err == mongo.ErrNoDocuments {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: find request: %w", err)
	}

	return &r, nil
}

func (v *requestsCol) PendingBetween(ctx context.Context, a, b string) (bool, error) {
	n, err := v.c.CountDocuments(ctx, bson.M{"$or": bson.A{
		bson.M{"sender": a, "recipient": b},
		bson.M{"sender": b, "recipient": a},
	}})
	if err != nil {
		return false, fmt.Errorf("mongostore: count requests: %w", err)
	}

	return n > 0, nil
}

func (v *requestsCol) ListForRecipient(ctx context.Context, userID string) ([]domain.FriendRequest, error) {
	cur, err := v.c.Find(ctx, bson.M{"recipient": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongostore: list requests: %w", err)
	}

	var out []domain.FriendRequest
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongostore: decode requests: %w", err)
	}

	return out, nil
}

func (v *requestsCol) Delete(ctx context.Context, id string) error {
	res, err := v.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongostore: delete request: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}

	return nil
}

type conversationsCol struct{ c *mongo.Collection }

func (v *conversationsCol) FindOrCreate(ctx context.Context, a, b string) (*domain.Conversation, error) {
	key := domain.PairKey(a, b)
	filter := bson.M{"participants": bson.A{key[0], key[1]}}

	update := bson.M{"$setOnInsert": bson.M{
		"_id":           primitive.NewObjectID().Hex(),
		"participants":  bson.A{key[0], key[1]},
		"messages":      bson.A{},
		"last_activity": time.Now(),
	}}

	var c domain.Conversation
	err := v.c.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)).Decode(&c)
	if err != nil {
		// A concurrent upsert for the same pair can lose on the unique
		// participants index; the winner's document is the answer.
		if mongo.IsDuplicateKeyError(err) {
			if ferr := v.c.FindOne(ctx, filter).Decode(&c); ferr == nil {
				return &c, nil
			}
		}

		return nil, fmt.Errorf("mongostore: find or create conversation: %w", err)
	}

	return &c, nil
}

func (v *conversationsCol) ByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := v.c.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: find conversation: %w", err)
	}

	return &c, nil
}

func (v *conversationsCol) ListFor(ctx context.Context, userID string) ([]domain.Conversation, error) {
	cur, err := v.c.Find(ctx, bson.M{"participants": userID},
		options.Find().SetSort(bson.D{{Key: "last_activity", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("mongostore: list conversations: %w", err)
	}

	var out []domain.Conversation
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongostore: decode conversations: %w", err)
	}

	return out, nil
}

func (v *conversationsCol) AppendMessage(ctx context.Context, conversationID string, msg domain.Message) (domain.Message, error) {
	msg.ID = primitive.NewObjectID().Hex()
	msg.Status = domain.StatusSent
	msg.CreatedAt = time.Now()

	// The client_id guard makes the push a no-op when the same token is
	// already present, collapsing retransmissions in one atomic update.
	filter := bson.M{"_id": conversationID}
	if msg.ClientID != "" {
		filter["messages.client_id"] = bson.M{"$ne": msg.ClientID}
	}

	res, err := v.c.UpdateOne(ctx, filter, bson.M{
		"$push": bson.M{"messages": msg},
		"$set":  bson.M{"last_activity": msg.CreatedAt},
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("mongostore: append message: %w", err)
	}
	if res.MatchedCount > 0 {
		return msg, nil
	}

	// Either the conversation is gone or the token already exists.
	c, err := v.ByID(ctx, conversationID)
	if err != nil {
		return domain.Message{}, err
	}
	for _, m := range c.Messages {
		if m.ClientID == msg.ClientID {
			return m, nil
		}
	}

	return domain.Message{}, store.ErrNotFound
}

func (v *conversationsCol) MarkDelivered(ctx context.Context, conversationID, messageID, requestingUserID string) (bool, error) {
	res, err := v.c.UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$set": bson.M{"messages.$[m].status": domain.StatusDelivered}},
		options.Update().SetArrayFilters(options.ArrayFilters{Filters: bson.A{
			bson.M{"m.id": messageID, "m.to": requestingUserID, "m.status": domain.StatusSent},
		}}),
	)
	if err != nil {
		return false, fmt.Errorf("mongostore: mark delivered: %w", err)
	}

	return res.ModifiedCount > 0, nil
}

func (v *conversationsCol) MarkAllRead(ctx context.Context, conversationID, requestingUserID string) (int, error) {
	c, err := v.ByID(ctx, conversationID)
	if err == store.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	n := 0
	for _, m := range c.Messages {
		if m.To == requestingUserID && m.Status != domain.StatusRead {
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}

	_, err = v.c.UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$set": bson.M{"messages.$[m].status": domain.StatusRead}},
		options.Update().SetArrayFilters(options.ArrayFilters{Filters: bson.A{
			bson.M{"m.to": requestingUserID, "m.status": bson.M{
				"$in": bson.A{domain.StatusSent, domain.StatusDelivered},
			}},
		}}),
	)
	if err != nil {
		return 0, fmt.Errorf("mongostore: mark all read: %w", err)
	}

	return n, nil
}

func (v *conversationsCol) MarkDeliveredForRecipient(ctx context.Context, userID string) ([]store.Receipt, error) {
	cur, err := v.c.Find(ctx, bson.M{"messages": bson.M{"$elemMatch": bson.M{
		"to":     userID,
		"status": domain.StatusSent,
	}}})
	if err != nil {
		return nil, fmt.Errorf("mongostore: find undelivered: %w", err)
	}

	var convos []domain.Conversation
	if err := cur.All(ctx, &convos); err != nil {
		return nil, fmt.Errorf("mongostore: decode undelivered: %w", err)
	}

	var receipts []store.Receipt
	for _, c := range convos {
		for _, m := range c.Messages {
			if m.To == userID && m.Status == domain.StatusSent {
				receipts = append(receipts, store.Receipt{
					ConversationID: c.ID,
					MessageID:      m.ID,
					Sender:         m.From,
				})
			}
		}
	}
	if len(receipts) == 0 {
		return nil, nil
	}

	_, err = v.c.UpdateMany(ctx,
		bson.M{"messages.to": userID},
		bson.M{"$set": bson.M{"messages.$[m].status": domain.StatusDelivered}},
		options.Update().SetArrayFilters(options.ArrayFilters{Filters: bson.A{
			bson.M{"m.to": userID, "m.status": domain.StatusSent},
		}}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongostore: mark delivered for recipient: %w", err)
	}

	return receipts, nil
}

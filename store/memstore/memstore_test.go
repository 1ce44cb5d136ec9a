package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/warrensiro/chat-server/domain"
	"github.com/warrensiro/chat-server/store"
)

func seedUsers(t *testing.T, st store.Store, names ...string) []*domain.User {
	t.Helper()

	out := make([]*domain.User, 0, len(names))
	for _, name := range names {
		u := &domain.User{
			FirstName: name,
			LastName:  "Test",
			Email:     name + "@example.com",
			Verified:  true,
		}
		if err := st.Users.Create(context.Background(), u); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		out = append(out, u)
	}

	return out
}

func TestUsersCreateDuplicateEmail(t *testing.T) {
	st := New().Store()
	ctx := context.Background()

	seedUsers(t, st, "alice")

	dup := &domain.User{FirstName: "Alice", LastName: "Two", Email: "ALICE@example.com"}
	if err := st.Users.Create(ctx, dup); err != store.ErrConflict {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUsersAddFriendIdempotent(t *testing.T) {
	st := New().Store()
	ctx := context.Background()

	users := seedUsers(t, st, "alice", "bob")

	for i := 0; i < 3; i++ {
		if err := st.Users.AddFriend(ctx, users[0].ID, users[1].ID); err != nil {
			t.Fatal(err)
		}
	}

	a, err := st.Users.ByID(ctx, users[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Friends) != 1 {
		t.Fatalf("expected 1 friend after repeated adds, got %d", len(a.Friends))
	}
}

func TestRequestsPendingBetweenEitherDirection(t *testing.T) {
	st := New().Store()
	ctx := context.Background()

	users := seedUsers(t, st, "alice", "bob")
	a, b := users[0].ID, users[1].ID

	if err := st.Requests.Create(ctx, &domain.FriendRequest{Sender: a, Recipient: b}); err != nil {
		t.Fatal(err)
	}

	for _, pair := range [][2]string{{a, b}, {b, a}} {
		pending, err := st.Requests.PendingBetween(ctx, pair[0], pair[1])
		if err != nil {
			t.Fatal(err)
		}
		if !pending {
			t.Errorf("expected pending for pair %v", pair)
		}
	}

	pending, err := st.Requests.PendingBetween(ctx, a, "someone-else")
	if err != nil {
		t.Fatal(err)
	}
	if pending {
		t.Error("unrelated pair should not be pending")
	}
}

func TestConversationUniquePerPair(t *testing.T) {
	st := New().Store()
	ctx := context.Background()

	c1, err := st.Conversations.FindOrCreate(ctx, "u2", "u1")
	if err != nil {
		t.Fatal(err)
	}
	c2, err := st.Conversations.FindOrCreate(ctx, "u1", "u2")
	if err != nil {
		t.Fatal(err)
	}

	if c1.ID != c2.ID {
		t.Fatalf("expected one conversation per pair, got %s and %s", c1.ID, c2.ID)
	}
	if len(c1.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(c1.Participants))
	}
	if c1.Participants[0] > c1.Participants[1] {
		t.Error("participants should be stored sorted")
	}
}

func TestAppendMessageIdempotentOnClientID(t *testing.T) {
	st := New().Store()
	ctx := context.Background()

	c, _ := st.Conversations.FindOrCreate(ctx, "u1", "u2")

	msg := domain.Message{ClientID: "tok", From: "u1", To: "u2", Kind: domain.MessageText, Body: "hi"}
	first, err := st.Conversations.AppendMessage(ctx, c.ID, msg)
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != domain.StatusSent {
		t.Errorf("appended message should be sent, got %s", first.Status)
	}
	if first.ID == "" || first.CreatedAt.IsZero() {
		t.Error("append should stamp id and creation time")
	}

	second, err := st.Conversations.AppendMessage(ctx, c.ID, msg)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Errorf("retransmit should return the stored message, got new id %s", second.ID)
	}

	stored, _ := st.Conversations.ByID(ctx, c.ID)
	if len(stored.Messages) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(stored.Messages))
	}

	if _, err := st.Conversations.AppendMessage(ctx, "missing", msg); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound for missing conversation, got %v", err)
	}
}

func TestMarkDeliveredGuards(t *testing.T) {
	st := New().Store()
	ctx := context.Background()

	c, _ := st.Conversations.FindOrCreate(ctx, "u1", "u2")
	msg, _ := st.Conversations.AppendMessage(ctx, c.ID, domain.Message{
		ClientID: "t1", From: "u1", To: "u2", Kind: domain.MessageText, Body: "hi",
	})

	// Only the recipient may ack.
	ok, err := st.Conversations.MarkDelivered(ctx, c.ID, msg.ID, "u1")
	if err != nil || ok {
		t.Fatalf("sender ack should be rejected, ok=%v err=%v", ok, err)
	}

	ok, err = st.Conversations.MarkDelivered(ctx, c.ID, msg.ID, "u2")
	if err != nil || !ok {
		t.Fatalf("recipient ack should apply, ok=%v err=%v", ok, err)
	}

	// Duplicate ack: status is no longer sent.
	ok, err = st.Conversations.MarkDelivered(ctx, c.ID, msg.ID, "u2")
	if err != nil || ok {
		t.Fatalf("duplicate ack should be rejected, ok=%v err=%v", ok, err)
	}

	// Unknown ids are quiet no-ops.
	if ok, _ := st.Conversations.MarkDelivered(ctx, c.ID, "missing", "u2"); ok {
		t.Error("unknown message should not transition")
	}
	if ok, _ := st.Conversations.MarkDelivered(ctx, "missing", msg.ID, "u2"); ok {
		t.Error("unknown conversation should not transition")
	}
}

func TestMarkAllReadBatch(t *testing.T) {
	st := New().Store()
	ctx := context.Background()

	c, _ := st.Conversations.FindOrCreate(ctx, "u1", "u2")
	m1, _ := st.Conversations.AppendMessage(ctx, c.ID, domain.Message{ClientID: "t1", From: "u1", To: "u2", Kind: domain.MessageText, Body: "one"})
	_, _ = st.Conversations.AppendMessage(ctx, c.ID, domain.Message{ClientID: "t2", From: "u1", To: "u2", Kind: domain.MessageText, Body: "two"})
	_, _ = st.Conversations.AppendMessage(ctx, c.ID, domain.Message{ClientID: "t3", From: "u2", To: "u1", Kind: domain.MessageText, Body: "reply"})

	// One of u2's messages is already delivered; both must end up read.
	if ok, _ := st.Conversations.MarkDelivered(ctx, c.ID, m1.ID, "u2"); !ok {
		t.Fatal("setup: mark delivered failed")
	}

	n, err := st.Conversations.MarkAllRead(ctx, c.ID, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 messages read, got %d", n)
	}

	stored, _ := st.Conversations.ByID(ctx, c.ID)
	for _, m := range stored.Messages {
		if m.To == "u2" && m.Status != domain.StatusRead {
			t.Errorf("message %s should be read, got %s", m.ID, m.Status)
		}
		if m.To == "u1" && m.Status != domain.StatusSent {
			t.Errorf("u1's inbound message must be untouched, got %s", m.Status)
		}
	}

	// Nothing left to read.
	n, _ = st.Conversations.MarkAllRead(ctx, c.ID, "u2")
	if n != 0 {
		t.Errorf("expected 0 on second read batch, got %d", n)
	}
}

func TestMarkDeliveredForRecipientAcrossConversations(t *testing.T) {
	st := New().Store()
	ctx := context.Background()

	c1, _ := st.Conversations.FindOrCreate(ctx, "u1", "u2")
	c2, _ := st.Conversations.FindOrCreate(ctx, "u3", "u2")
	_, _ = st.Conversations.AppendMessage(ctx, c1.ID, domain.Message{ClientID: "a", From: "u1", To: "u2", Kind: domain.MessageText, Body: "x"})
	_, _ = st.Conversations.AppendMessage(ctx, c2.ID, domain.Message{ClientID: "b", From: "u3", To: "u2", Kind: domain.MessageText, Body: "y"})
	_, _ = st.Conversations.AppendMessage(ctx, c1.ID, domain.Message{ClientID: "c", From: "u2", To: "u1", Kind: domain.MessageText, Body: "z"})

	receipts, err := st.Conversations.MarkDeliveredForRecipient(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if len(receipts) != 2 {
		t.Fatalf("expected 2 receipts, got %d", len(receipts))
	}

	senders := map[string]bool{}
	for _, r := range receipts {
		senders[r.Sender] = true
	}
	if !senders["u1"] || !senders["u3"] {
		t.Errorf("receipts should name both senders, got %v", senders)
	}

	// u2's own outbound message stays sent.
	stored, _ := st.Conversations.ByID(ctx, c1.ID)
	for _, m := range stored.Messages {
		if m.From == "u2" && m.Status != domain.StatusSent {
			t.Errorf("outbound message must be untouched, got %s", m.Status)
		}
	}

	// Second pass finds nothing.
	receipts, _ = st.Conversations.MarkDeliveredForRecipient(ctx, "u2")
	if len(receipts) != 0 {
		t.Errorf("expected no receipts on second pass, got %d", len(receipts))
	}
}

func TestListForOrdersByActivity(t *testing.T) {
	st := New().Store()
	ctx := context.Background()

	c1, _ := st.Conversations.FindOrCreate(ctx, "u1", "u2")
	time.Sleep(time.Millisecond)
	c2, _ := st.Conversations.FindOrCreate(ctx, "u1", "u3")
	time.Sleep(time.Millisecond)

	// Activity in c1 bumps it to the front.
	_, _ = st.Conversations.AppendMessage(ctx, c1.ID, domain.Message{ClientID: "t", From: "u1", To: "u2", Kind: domain.MessageText, Body: "bump"})

	list, err := st.Conversations.ListFor(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(list))
	}
	if list[0].ID != c1.ID || list[1].ID != c2.ID {
		t.Errorf("expected order [%s %s], got [%s %s]", c1.ID, c2.ID, list[0].ID, list[1].ID)
	}

	list, _ = st.Conversations.ListFor(ctx, "u3")
	if len(list) != 1 {
		t.Fatalf("expected 1 conversation for u3, got %d", len(list))
	}
}

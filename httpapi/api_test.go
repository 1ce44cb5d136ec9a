package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	"github.com/warrensiro/chat-server/chat"
	"github.com/warrensiro/chat-server/domain"
	"github.com/warrensiro/chat-server/pkg/ticket"
	"github.com/warrensiro/chat-server/store"
	"github.com/warrensiro/chat-server/store/memstore"
)

// fakeOTP keeps codes in memory, standing in for the redis-backed store.
type fakeOTP struct {
	codes map[string]string
}

func (f *fakeOTP) Issue(_ context.Context, userID string) (string, error) {
	if f.codes == nil {
		f.codes = make(map[string]string)
	}
	f.codes[userID] = "123456"

	return "123456", nil
}

func (f *fakeOTP) Verify(_ context.Context, userID, code string) (bool, error) {
	stored, ok := f.codes[userID]
	if !ok || stored != code {
		return false, nil
	}
	delete(f.codes, userID)

	return true, nil
}

func newTestAPI(t *testing.T) (*httprouter.Router, store.Store, *chat.Presence) {
	t.Helper()

	st := memstore.New().Store()
	issuer := ticket.New([]byte("test-secret"), time.Hour)
	presence := chat.NewPresence()

	api := New(zerolog.Nop(), st, issuer, &fakeOTP{}, presence, nil)
	router := httprouter.New()
	api.Register(router)

	return router, st, presence
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}

	return w, env
}

func registerAndLogin(t *testing.T, router http.Handler, name string) (token, userID string) {
	t.Helper()

	w, env := doJSON(t, router, http.MethodPost, "/auth/register", "", map[string]string{
		"first_name": name,
		"last_name":  "Test",
		"email":      name + "@example.com",
		"password":   "hunter22",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("register %s: status %d", name, w.Code)
	}

	w, env = doJSON(t, router, http.MethodPost, "/auth/verify-otp", "", map[string]string{
		"email": name + "@example.com",
		"otp":   "123456",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("verify-otp %s: status %d", name, w.Code)
	}

	w, env = doJSON(t, router, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    name + "@example.com",
		"password": "hunter22",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: status %d", name, w.Code)
	}

	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("login %s: unexpected data %v", name, env.Data)
	}
	token, _ = data["token"].(string)
	userID, _ = data["user_id"].(string)
	if token == "" || userID == "" {
		t.Fatalf("login %s: missing token or user_id in %v", name, data)
	}

	return token, userID
}

func TestRegisterVerifyLoginFlow(t *testing.T) {
	router, st, _ := newTestAPI(t)

	token, userID := registerAndLogin(t, router, "alice")
	if token == "" {
		t.Fatal("expected a login token")
	}

	u, err := st.Users.ByID(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	if !u.Verified {
		t.Error("user should be verified after otp")
	}
	if u.Password == "hunter22" {
		t.Error("password must be stored hashed")
	}
}

func TestLoginRejections(t *testing.T) {
	router, _, _ := newTestAPI(t)

	registerAndLogin(t, router, "alice")

	w, _ := doJSON(t, router, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("wrong password: expected 400, got %d", w.Code)
	}

	w, _ = doJSON(t, router, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "nobody@example.com",
		"password": "hunter22",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown email: expected 400, got %d", w.Code)
	}
}

func TestUnverifiedCannotLogin(t *testing.T) {
	router, _, _ := newTestAPI(t)

	w, _ := doJSON(t, router, http.MethodPost, "/auth/register", "", map[string]string{
		"first_name": "bob",
		"last_name":  "Test",
		"email":      "bob@example.com",
		"password":   "hunter22",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("register: status %d", w.Code)
	}

	w, _ = doJSON(t, router, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "bob@example.com",
		"password": "hunter22",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unverified login: expected 400, got %d", w.Code)
	}
}

func TestReRegisterBeforeVerification(t *testing.T) {
	router, _, _ := newTestAPI(t)

	body := map[string]string{
		"first_name": "carol",
		"last_name":  "Test",
		"email":      "carol@example.com",
		"password":   "hunter22",
	}
	if w, _ := doJSON(t, router, http.MethodPost, "/auth/register", "", body); w.Code != http.StatusOK {
		t.Fatalf("first register: status %d", w.Code)
	}
	// Re-registering the unverified account refreshes it.
	if w, _ := doJSON(t, router, http.MethodPost, "/auth/register", "", body); w.Code != http.StatusOK {
		t.Fatalf("re-register unverified: status %d", w.Code)
	}

	registerAndLogin(t, router, "carol")

	// A verified account blocks further registrations.
	if w, _ := doJSON(t, router, http.MethodPost, "/auth/register", "", body); w.Code != http.StatusBadRequest {
		t.Errorf("re-register verified: expected 400")
	}
}

func TestAuthorizedListings(t *testing.T) {
	router, st, presence := newTestAPI(t)
	ctx := context.Background()

	aliceToken, aliceID := registerAndLogin(t, router, "alice")
	_, bobID := registerAndLogin(t, router, "bob")
	_, carolID := registerAndLogin(t, router, "carol")

	// alice and bob become friends; carol stays a stranger.
	if err := st.Users.AddFriend(ctx, aliceID, bobID); err != nil {
		t.Fatal(err)
	}
	if err := st.Users.AddFriend(ctx, bobID, aliceID); err != nil {
		t.Fatal(err)
	}
	presence.Bind(bobID, "sb")

	w, env := doJSON(t, router, http.MethodGet, "/user/users", aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list users: status %d", w.Code)
	}
	users, ok := env.Data.([]any)
	if !ok || len(users) != 1 {
		t.Fatalf("expected only carol in users, got %v", env.Data)
	}
	if entry := users[0].(map[string]any); entry["id"] != carolID {
		t.Errorf("expected carol %s, got %v", carolID, entry["id"])
	}

	w, env = doJSON(t, router, http.MethodGet, "/user/friends", aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list friends: status %d", w.Code)
	}
	friends, ok := env.Data.([]any)
	if !ok || len(friends) != 1 {
		t.Fatalf("expected 1 friend, got %v", env.Data)
	}
	friend := friends[0].(map[string]any)
	if friend["id"] != bobID {
		t.Errorf("expected friend %s, got %v", bobID, friend["id"])
	}
	if online, _ := friend["online"].(bool); !online {
		t.Error("bob should be reported online")
	}

	if w, _ := doJSON(t, router, http.MethodGet, "/user/friends", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("missing token: expected 401, got %d", w.Code)
	}
	if w, _ := doJSON(t, router, http.MethodGet, "/user/friends", "bogus", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("bogus token: expected 401, got %d", w.Code)
	}
}

func TestListFriendRequestsAndConversations(t *testing.T) {
	router, st, _ := newTestAPI(t)
	ctx := context.Background()

	aliceToken, aliceID := registerAndLogin(t, router, "alice")
	_, bobID := registerAndLogin(t, router, "bob")

	req := &domain.FriendRequest{Sender: bobID, Recipient: aliceID}
	if err := st.Requests.Create(ctx, req); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Conversations.FindOrCreate(ctx, aliceID, bobID); err != nil {
		t.Fatal(err)
	}

	w, env := doJSON(t, router, http.MethodGet, "/user/friend-requests", aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list requests: status %d", w.Code)
	}
	requests, ok := env.Data.([]any)
	if !ok || len(requests) != 1 {
		t.Fatalf("expected 1 incoming request, got %v", env.Data)
	}

	w, env = doJSON(t, router, http.MethodGet, "/conversation/get-conversations", aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list conversations: status %d", w.Code)
	}
	convos, ok := env.Data.([]any)
	if !ok || len(convos) != 1 {
		t.Fatalf("expected 1 conversation, got %v", env.Data)
	}
}

// Package httpapi is the REST surface: registration, OTP verification,
// login and the read-side listings. It writes the same user, friend request
// and conversation documents the realtime core works on.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/warrensiro/chat-server/chat"
	"github.com/warrensiro/chat-server/domain"
	"github.com/warrensiro/chat-server/pkg/otp"
	"github.com/warrensiro/chat-server/pkg/ticket"
	"github.com/warrensiro/chat-server/store"
)

// OTPStore issues and checks one-time verification codes. Satisfied by
// otp.Store.
type OTPStore interface {
	Issue(ctx context.Context, userID string) (string, error)
	Verify(ctx context.Context, userID, code string) (bool, error)
}

var _ OTPStore = (*otp.Store)(nil)

type API struct {
	log      zerolog.Logger
	store    store.Store
	issuer   ticket.Issuer
	otp      OTPStore
	presence *chat.Presence
	limiter  *Limiter
}

// New builds the REST API. limiter may be nil to disable throttling, e.g.
// in tests.
func New(log zerolog.Logger, st store.Store, issuer ticket.Issuer, otpStore OTPStore, presence *chat.Presence, limiter *Limiter) *API {
	return &API{
		log:      log.With().Str("component", "httpapi").Logger(),
		store:    st,
		issuer:   issuer,
		otp:      otpStore,
		presence: presence,
		limiter:  limiter,
	}
}

// Register wires all REST routes onto the router.
func (a *API) Register(router *httprouter.Router) {
	limit := func(h httprouter.Handle) httprouter.Handle {
		if a.limiter == nil {
			return h
		}

		return a.limiter.Middleware(h)
	}

	router.POST("/auth/register", limit(a.handleRegister))
	router.POST("/auth/verify-otp", limit(a.handleVerifyOTP))
	router.POST("/auth/login", limit(a.handleLogin))

	router.GET("/user/users", limit(a.Authorize(a.handleListUsers)))
	router.GET("/user/friends", limit(a.Authorize(a.handleListFriends)))
	router.GET("/user/friend-requests", limit(a.Authorize(a.handleListRequests)))
	router.GET("/conversation/get-conversations", limit(a.Authorize(a.handleListConversations)))
}

type registerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")

		return
	}
	if req.FirstName == "" || req.LastName == "" || req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "first_name, last_name, email and password are required")

		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.log.Error().Err(err).Msg("hash password")
		respondError(w, http.StatusInternalServerError, "registration failed")

		return
	}

	user := &domain.User{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  string(hash),
	}

	err = a.store.Users.Create(r.Context(), user)
	if errors.Is(err, store.ErrConflict) {
		existing, ferr := a.store.Users.ByEmail(r.Context(), req.Email)
		if ferr != nil || existing.Verified {
			respondError(w, http.StatusBadRequest, "user with that email already exists")

			return
		}

		// Unverified account: refresh the profile and re-issue the code.
		existing.FirstName = req.FirstName
		existing.LastName = req.LastName
		existing.Password = string(hash)
		if err := a.store.Users.Update(r.Context(), existing); err != nil {
			a.log.Error().Err(err).Msg("update unverified user")
			respondError(w, http.StatusInternalServerError, "registration failed")

			return
		}
		user = existing
	} else if err != nil {
		a.log.Error().Err(err).Msg("create user")
		respondError(w, http.StatusInternalServerError, "registration failed")

		return
	}

	code, err := a.otp.Issue(r.Context(), user.ID)
	if err != nil {
		a.log.Error().Err(err).Msg("issue otp")
		respondError(w, http.StatusInternalServerError, "registration failed")

		return
	}

	// Mail delivery is out of scope; the code goes to the log.
	a.log.Info().Str("user_id", user.ID).Str("otp", code).Msg("verification code issued")

	respond(w, http.StatusOK, map[string]any{"user_id": user.ID}, "verification code sent")
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

func (a *API) handleVerifyOTP(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	user, err := a.store.Users.ByEmail(r.Context(), req.Email)
	if err != nil {
		respondError(w, http.StatusBadRequest, "email or code is incorrect")

		return
	}

	ok, err := a.otp.Verify(r.Context(), user.ID, req.OTP)
	if err != nil {
		a.log.Error().Err(err).Msg("verify otp")
		respondError(w, http.StatusInternalServerError, "verification failed")

		return
	}
	if !ok {
		respondError(w, http.StatusBadRequest, "email or code is incorrect")

		return
	}

	if err := a.store.Users.MarkVerified(r.Context(), user.ID); err != nil {
		a.log.Error().Err(err).Msg("mark verified")
		respondError(w, http.StatusInternalServerError, "verification failed")

		return
	}

	token, err := a.issuer.Issue(user.ID)
	if err != nil {
		a.log.Error().Err(err).Msg("issue token")
		respondError(w, http.StatusInternalServerError, "verification failed")

		return
	}

	respond(w, http.StatusOK, map[string]any{"token": token, "user_id": user.ID}, "account verified")
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")

		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "both email and password are required")

		return
	}

	user, err := a.store.Users.ByEmail(r.Context(), req.Email)
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		respondError(w, http.StatusBadRequest, "email or password is incorrect")

		return
	}
	if !user.Verified {
		respondError(w, http.StatusBadRequest, "account is not verified")

		return
	}

	token, err := a.issuer.Issue(user.ID)
	if err != nil {
		a.log.Error().Err(err).Msg("issue token")
		respondError(w, http.StatusInternalServerError, "login failed")

		return
	}

	respond(w, http.StatusOK, map[string]any{"token": token, "user_id": user.ID}, "login successful")
}

// handleListUsers returns verified users who are neither the caller nor
// already friends, the pool a client picks friend-request targets from.
func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caller, err := a.store.Users.ByID(r.Context(), UserID(r))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unknown user")

		return
	}

	users, err := a.store.Users.ListVerified(r.Context())
	if err != nil {
		a.log.Error().Err(err).Msg("list users")
		respondError(w, http.StatusInternalServerError, "failed to fetch users")

		return
	}

	out := []domain.Public{}
	for i := range users {
		u := &users[i]
		if u.ID == caller.ID || caller.IsFriendsWith(u.ID) {
			continue
		}
		out = append(out, u.Public())
	}

	respond(w, http.StatusOK, out, "users found")
}

type friendEntry struct {
	domain.Public
	Online bool `json:"online"`
}

func (a *API) handleListFriends(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caller, err := a.store.Users.ByID(r.Context(), UserID(r))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unknown user")

		return
	}

	out := []friendEntry{}
	for _, id := range caller.Friends {
		friend, err := a.store.Users.ByID(r.Context(), id)
		if err != nil {
			continue
		}
		out = append(out, friendEntry{
			Public: friend.Public(),
			Online: a.presence.Online(id),
		})
	}

	respond(w, http.StatusOK, out, "friends fetched")
}

type requestEntry struct {
	ID     string        `json:"id"`
	Sender domain.Public `json:"sender"`
}

func (a *API) handleListRequests(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requests, err := a.store.Requests.ListForRecipient(r.Context(), UserID(r))
	if err != nil {
		a.log.Error().Err(err).Msg("list requests")
		respondError(w, http.StatusInternalServerError, "failed to fetch friend requests")

		return
	}

	out := []requestEntry{}
	for _, req := range requests {
		sender, err := a.store.Users.ByID(r.Context(), req.Sender)
		if err != nil {
			continue
		}
		out = append(out, requestEntry{ID: req.ID, Sender: sender.Public()})
	}

	respond(w, http.StatusOK, out, "friend requests fetched")
}

func (a *API) handleListConversations(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	convos, err := a.store.Conversations.ListFor(r.Context(), UserID(r))
	if err != nil {
		a.log.Error().Err(err).Msg("list conversations")
		respondError(w, http.StatusInternalServerError, "failed to fetch conversations")

		return
	}

	respond(w, http.StatusOK, convos, "conversations fetched")
}

type envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func respond(w http.ResponseWriter, code int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(envelope{Status: "success", Data: data, Message: message})
}

func respondError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(envelope{Status: "error", Message: message})
}

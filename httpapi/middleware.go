package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
)

type contextKey string

const userKey contextKey = "user"

// Authorize verifies the Bearer token and stashes the subject user id on
// the request context.
func (a *API) Authorize(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")

		userID, err := a.issuer.Verify(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "unauthorized")

			return
		}

		ctx := context.WithValue(r.Context(), userKey, userID)
		next(w, r.WithContext(ctx), ps)
	}
}

// UserID returns the authenticated user id set by Authorize, or "".
func UserID(r *http.Request) string {
	id, _ := r.Context().Value(userKey).(string)

	return id
}

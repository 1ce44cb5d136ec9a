package chat

import "sync"

// Presence owns the user-to-session routing table. It is the only place
// that maps a user id to a live delivery target, so swapping it for an
// external registry later does not touch any call site.
//
// Binding is last-wins: a new session for a user replaces the previous one.
// Unbind is guarded by the session handle so a stale disconnect cannot
// clobber a newer binding.
type Presence struct {
	mu     sync.RWMutex
	routes map[string]string // user id -> session id
	owners map[string]string // session id -> user id
}

func NewPresence() *Presence {
	return &Presence{
		routes: make(map[string]string),
		owners: make(map[string]string),
	}
}

// Bind registers sessionID as the live route for userID and returns the
// superseded session id, if any.
func (p *Presence) Bind(userID, sessionID string) (previous string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.routes[userID]; ok && prev != sessionID {
		previous = prev
		delete(p.owners, prev)
	}

	p.routes[userID] = sessionID
	p.owners[sessionID] = userID

	return previous
}

// Unbind clears the route owned by sessionID. It reports the affected user
// id and whether the binding was still current; a stale session id is a
// no-op.
func (p *Presence) Unbind(sessionID string) (userID string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	userID, ok = p.owners[sessionID]
	if !ok {
		return "", false
	}

	delete(p.owners, sessionID)
	if current, bound := p.routes[userID]; bound && current == sessionID {
		delete(p.routes, userID)
	}

	return userID, true
}

// RouteOf resolves the current live session for userID. ok is false when
// the user is offline; the caller skips delivery.
func (p *Presence) RouteOf(userID string) (sessionID string, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	sessionID, ok = p.routes[userID]

	return sessionID, ok
}

// Online reports whether userID has a live route.
func (p *Presence) Online(userID string) bool {
	_, ok := p.RouteOf(userID)

	return ok
}

// Count reports the number of users currently online.
func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.routes)
}

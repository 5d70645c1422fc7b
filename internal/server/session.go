package server

import (
	"time"

	"github.com/YarShev/omniscidb/internal/catalog"
)

// SessionID is the opaque token issued by Connect and required on every
// query call.
type SessionID string

// session is the server-side state behind a SessionID.
type session struct {
	id         SessionID
	user       catalog.UserMetadata
	dbName     string
	startedAt  time.Time
	lastUsedAt time.Time
}

// lookupSession resolves a SessionID, enforcing idle and max duration.
// Expired sessions are removed and reported as not valid. Callers must hold
// h.mu.
func (h *Handler) lookupSession(id SessionID) (*session, *QueryError) {
	s, ok := h.sessions[id]
	if !ok {
		return nil, sessionError()
	}

	now := h.now()
	if h.cfg.IdleSessionDuration > 0 && now.Sub(s.lastUsedAt) > h.cfg.IdleSessionDuration {
		delete(h.sessions, id)
		return nil, sessionError()
	}
	if h.cfg.MaxSessionDuration > 0 && now.Sub(s.startedAt) > h.cfg.MaxSessionDuration {
		delete(h.sessions, id)
		return nil, sessionError()
	}

	s.lastUsedAt = now
	return s, nil
}

// SessionUser returns the authenticated identity behind a session.
func (h *Handler) SessionUser(id SessionID) (catalog.UserMetadata, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, qerr := h.lookupSession(id)
	if qerr != nil {
		return catalog.UserMetadata{}, qerr
	}
	return s.user, nil
}

// SessionDatabase returns the catalog entry of the session's database.
func (h *Handler) SessionDatabase(id SessionID) (*catalog.DatabaseMetadata, error) {
	h.mu.Lock()
	s, qerr := h.lookupSession(id)
	if qerr != nil {
		h.mu.Unlock()
		return nil, qerr
	}
	dbName := s.dbName
	h.mu.Unlock()

	return h.cat.Database(dbName)
}

// SessionCount reports the number of live sessions. Used by harness
// self-tests to detect leaked sessions.
func (h *Handler) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Package presence tracks which participants are connected to which session.
// It is ephemeral by design and is rebuilt from zero on restart.
package presence

import (
	"sync"

	"github.com/Vasu1712/scenyx-realtime/internal/models"
	"github.com/rs/zerolog/log"
)

// Registry maps session IDs to their connected participants.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string][]models.SessionUser
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string][]models.SessionUser),
	}
}

// Join appends user to the session unless a participant with the same id is
// already present. It reports whether the list changed.
func (r *Registry) Join(sessionID string, user models.SessionUser) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.sessions[sessionID] {
		if p.ID == user.ID {
			return false
		}
	}
	r.sessions[sessionID] = append(r.sessions[sessionID], user)
	log.Info().Str("module", "presence").Str("session", sessionID).Str("user", user.ID).Str("name", user.Name).Msg("participant added")
	return true
}

// Leave removes the participant with userID. It reports whether one was removed.
func (r *Registry) Leave(sessionID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := r.sessions[sessionID]
	for i, p := range users {
		if p.ID != userID {
			continue
		}
		rest := make([]models.SessionUser, 0, len(users)-1)
		rest = append(rest, users[:i]...)
		rest = append(rest, users[i+1:]...)
		if len(rest) == 0 {
			delete(r.sessions, sessionID)
		} else {
			r.sessions[sessionID] = rest
		}
		log.Info().Str("module", "presence").Str("session", sessionID).Str("user", userID).Msg("participant removed")
		return true
	}
	return false
}

// List returns the participants of a session in join order. The result is a
// copy and is never nil.
func (r *Registry) List(sessionID string) []models.SessionUser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.SessionUser, len(r.sessions[sessionID]))
	copy(out, r.sessions[sessionID])
	return out
}

// Count returns how many participants a session has.
func (r *Registry) Count(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[sessionID])
}

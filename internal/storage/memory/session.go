package memory

import (
	"context"
	"fmt"
	"sync" // For RWMutex to handle concurrent access
	"time"

	"github.com/Vasu1712/scenyx-realtime/internal/models"
	"github.com/Vasu1712/scenyx-realtime/internal/storage"
	"github.com/google/uuid" // Import uuid to generate unique IDs
	"github.com/rs/zerolog/log"
)

// SessionStore keeps sessions in process memory. Everything is lost on restart,
// which makes it the store of choice for tests and local development.
type SessionStore struct {
	mu       sync.RWMutex               // Read-write mutex for concurrent access to the maps below
	sessions map[string]*models.Session // Map to store sessions by their ID
	models   map[string][]models.CustomModel
	now      func() time.Time
}

var _ storage.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates and returns a new instance of SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*models.Session),
		models:   make(map[string][]models.CustomModel),
		now:      time.Now,
	}
}

// CreateSession creates a new session with an empty scene.
func (s *SessionStore) CreateSession(_ context.Context, name string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	session := &models.Session{
		ID:           uuid.NewString(),
		Name:         name,
		CreatedAt:    now,
		UpdatedAt:    now,
		SceneData:    models.SceneData{},
		CustomModels: []models.CustomModel{},
	}
	s.sessions[session.ID] = session

	log.Info().Str("module", "storage.memory").Str("session", session.ID).Str("name", name).Msg("session created")
	return session.Clone(), nil
}

// GetSession retrieves a session by its ID together with its custom models.
func (s *SessionStore) GetSession(_ context.Context, sessionID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := session.Clone()
	out.CustomModels = append([]models.CustomModel{}, s.models[sessionID]...)
	return out, nil
}

// UpdateSceneData replaces the scene mapping of a session.
func (s *SessionStore) UpdateSceneData(_ context.Context, sessionID string, scene models.SceneData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return storage.ErrNotFound
	}
	session.SceneData = scene.Clone()
	session.UpdatedAt = s.now().UTC()
	return nil
}

// DeleteSession removes a session and its custom models.
func (s *SessionStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.sessions, sessionID)
	delete(s.models, sessionID)

	log.Info().Str("module", "storage.memory").Str("session", sessionID).Msg("session deleted")
	return nil
}

// AddCustomModel records an uploaded model for a session.
func (s *SessionStore) AddCustomModel(_ context.Context, sessionID, name, assetID string) (*models.CustomModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("add custom model: %w", storage.ErrNotFound)
	}
	m := models.CustomModel{
		ID:        uuid.NewString(),
		Name:      name,
		AssetID:   assetID,
		SessionID: sessionID,
		CreatedAt: s.now().UTC(),
	}
	s.models[sessionID] = append(s.models[sessionID], m)
	return &m, nil
}

// Close is a no-op for the memory store.
func (s *SessionStore) Close() error { return nil }

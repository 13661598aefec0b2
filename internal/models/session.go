package models

import "time"

// Session represents a collaborative workspace holding one scene and the custom
// models uploaded for it.
type Session struct {
	ID           string        `json:"id"`           // Opaque identifier for the session (UUID)
	Name         string        `json:"name"`         // Display name of the session
	CreatedAt    time.Time     `json:"createdAt"`    // Creation timestamp
	UpdatedAt    time.Time     `json:"updatedAt"`    // Last time the scene data was persisted
	SceneData    SceneData     `json:"sceneData"`    // Object ID -> SceneObject
	CustomModels []CustomModel `json:"customModels"` // Custom model records attached to this session
	ActiveUsers  int           `json:"activeUsers"`  // Number of participants currently connected (filled from presence, never stored)
}

// Clone returns a deep copy of the session so callers can mutate it freely.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.SceneData = s.SceneData.Clone()
	out.CustomModels = append([]CustomModel{}, s.CustomModels...)
	return &out
}

// CustomModel references an uploaded model asset that scene objects of kind
// "custom" can point at.
type CustomModel struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AssetID   string    `json:"assetId"`
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionUser is a live participant of a session.
type SessionUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Package storage defines the persistence gateway for sessions. Backends live
// in the memory, postgres and valkey subpackages.
package storage

import (
	"context"
	"errors"

	"github.com/Vasu1712/scenyx-realtime/internal/models"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// SessionStore is the durable home of session metadata and scene snapshots.
type SessionStore interface {
	CreateSession(ctx context.Context, name string) (*models.Session, error)
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	// UpdateSceneData replaces the whole scene mapping and bumps UpdatedAt.
	UpdateSceneData(ctx context.Context, sessionID string, scene models.SceneData) error
	DeleteSession(ctx context.Context, sessionID string) error
	AddCustomModel(ctx context.Context, sessionID, name, assetID string) (*models.CustomModel, error)
	Close() error
}

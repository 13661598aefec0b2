package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Vasu1712/scenyx-realtime/internal/models"
	"github.com/Vasu1712/scenyx-realtime/internal/storage"
	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// Expected schema:
//
//	sessions(id uuid primary key default gen_random_uuid(), name text not null,
//	         scene_data jsonb not null default '{}', created_at timestamptz, updated_at timestamptz)
//	custom_models(id uuid primary key default gen_random_uuid(), name text not null,
//	              asset_id text not null, session_id uuid references sessions(id) on delete cascade,
//	              created_at timestamptz default now())

// SessionStore implements storage.SessionStore using PostgreSQL.
type SessionStore struct {
	db *sql.DB
}

var _ storage.SessionStore = (*SessionStore)(nil)

// NewSessionStore opens a connection pool for the given DSN and verifies it.
func NewSessionStore(ctx context.Context, dataSourceName string) (*SessionStore, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Ping the database to verify the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	log.Info().Str("module", "storage.postgres").Msg("connected to PostgreSQL")
	return &SessionStore{db: db}, nil
}

// CreateSession inserts a session with an empty scene.
func (s *SessionStore) CreateSession(ctx context.Context, name string) (*models.Session, error) {
	session := &models.Session{
		Name:         name,
		SceneData:    models.SceneData{},
		CustomModels: []models.CustomModel{},
	}
	query := `INSERT INTO sessions (name, scene_data, created_at, updated_at) VALUES ($1, '{}'::jsonb, now(), now()) RETURNING id, created_at, updated_at`
	err := s.db.QueryRowContext(ctx, query, name).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	log.Info().Str("module", "storage.postgres").Str("session", session.ID).Str("name", name).Msg("session created")
	return session, nil
}

// GetSession loads a session and its custom models.
func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if err := checkID(sessionID); err != nil {
		return nil, err
	}
	session := &models.Session{}
	var raw []byte
	query := `SELECT id, name, scene_data, created_at, updated_at FROM sessions WHERE id = $1`
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.ID, &session.Name, &raw, &session.CreatedAt, &session.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session %s: %w", sessionID, err)
	}
	session.SceneData, err = decodeScene(raw)
	if err != nil {
		return nil, fmt.Errorf("decode scene of %s: %w", sessionID, err)
	}

	session.CustomModels, err = s.customModels(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionStore) customModels(ctx context.Context, sessionID string) ([]models.CustomModel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, asset_id, session_id, created_at FROM custom_models WHERE session_id = $1 ORDER BY created_at`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("select custom models for %s: %w", sessionID, err)
	}
	defer rows.Close()

	out := []models.CustomModel{}
	for rows.Next() {
		var m models.CustomModel
		if err := rows.Scan(&m.ID, &m.Name, &m.AssetID, &m.SessionID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan custom model: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate custom models: %w", err)
	}
	return out, nil
}

// UpdateSceneData overwrites the scene_data blob.
func (s *SessionStore) UpdateSceneData(ctx context.Context, sessionID string, scene models.SceneData) error {
	if err := checkID(sessionID); err != nil {
		return err
	}
	raw, err := json.Marshal(scene)
	if err != nil {
		return fmt.Errorf("encode scene: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET scene_data = $2::jsonb, updated_at = now() WHERE id = $1`, sessionID, string(raw))
	if err != nil {
		return fmt.Errorf("update session %s: %w", sessionID, err)
	}
	return requireRow(result)
}

// DeleteSession removes a session; custom models cascade.
func (s *SessionStore) DeleteSession(ctx context.Context, sessionID string) error {
	if err := checkID(sessionID); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	if err := requireRow(result); err != nil {
		return err
	}
	log.Info().Str("module", "storage.postgres").Str("session", sessionID).Msg("session deleted")
	return nil
}

// AddCustomModel inserts a custom model row for a session.
func (s *SessionStore) AddCustomModel(ctx context.Context, sessionID, name, assetID string) (*models.CustomModel, error) {
	if err := checkID(sessionID); err != nil {
		return nil, fmt.Errorf("add custom model: %w", err)
	}

	m := &models.CustomModel{Name: name, AssetID: assetID, SessionID: sessionID}
	query := `INSERT INTO custom_models (name, asset_id, session_id)
		SELECT $1, $2, id FROM sessions WHERE id = $3 RETURNING id, created_at`
	err := s.db.QueryRowContext(ctx, query, name, assetID, sessionID).Scan(&m.ID, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("add custom model: %w", storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("insert custom model: %w", err)
	}
	return m, nil
}

// Close closes the database connection.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

// checkID rejects IDs the uuid column could never hold; such sessions do not
// exist, and the query would fail with a syntax error instead.
func checkID(sessionID string) error {
	if _, err := uuid.Parse(sessionID); err != nil {
		return storage.ErrNotFound
	}
	return nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func decodeScene(raw []byte) (models.SceneData, error) {
	scene := models.SceneData{}
	if len(raw) == 0 {
		return scene, nil
	}
	if err := json.Unmarshal(raw, &scene); err != nil {
		return nil, err
	}
	if scene == nil {
		scene = models.SceneData{}
	}
	return scene, nil
}

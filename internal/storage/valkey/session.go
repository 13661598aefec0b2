// Package valkey persists sessions in Valkey. A session is a hash at
// <prefix>:session:<id> and its custom models are a list of JSON documents at
// <prefix>:session:<id>:models.
package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Vasu1712/scenyx-realtime/internal/models"
	"github.com/Vasu1712/scenyx-realtime/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/valkey-io/valkey-go"
)

const (
	fieldName      = "name"
	fieldSceneData = "scene_data"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

// Options configures the Valkey connection.
type Options struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// SessionStore implements storage.SessionStore on top of a valkey.Client.
type SessionStore struct {
	client valkey.Client
	prefix string
}

var _ storage.SessionStore = (*SessionStore)(nil)

// NewSessionStore dials Valkey and checks the connection with PING.
func NewSessionStore(ctx context.Context, opts Options) (*SessionStore, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{opts.Addr},
		Password:    opts.Password,
		SelectDB:    opts.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping valkey at %s: %w", opts.Addr, err)
	}

	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "scenyx"
	}
	log.Info().Str("module", "storage.valkey").Str("addr", opts.Addr).Msg("connected to Valkey")
	return &SessionStore{client: client, prefix: prefix}, nil
}

func (s *SessionStore) sessionKey(id string) string {
	return sessionKey(s.prefix, id)
}

func (s *SessionStore) modelsKey(id string) string {
	return sessionKey(s.prefix, id) + ":models"
}

func sessionKey(prefix, id string) string {
	return prefix + ":session:" + id
}

// CreateSession writes a new session hash with an empty scene.
func (s *SessionStore) CreateSession(ctx context.Context, name string) (*models.Session, error) {
	now := time.Now().UTC()
	session := &models.Session{
		ID:           uuid.NewString(),
		Name:         name,
		CreatedAt:    now,
		UpdatedAt:    now,
		SceneData:    models.SceneData{},
		CustomModels: []models.CustomModel{},
	}
	fields, err := encodeSession(session)
	if err != nil {
		return nil, err
	}

	cmd := s.client.B().Hset().Key(s.sessionKey(session.ID)).FieldValue()
	for _, f := range []string{fieldName, fieldSceneData, fieldCreatedAt, fieldUpdatedAt} {
		cmd = cmd.FieldValue(f, fields[f])
	}
	if err := s.client.Do(ctx, cmd.Build()).Error(); err != nil {
		return nil, fmt.Errorf("hset session: %w", err)
	}

	log.Info().Str("module", "storage.valkey").Str("session", session.ID).Str("name", name).Msg("session created")
	return session, nil
}

// GetSession reads the session hash and its model list.
func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	fields, err := s.client.Do(ctx, s.client.B().Hgetall().Key(s.sessionKey(sessionID)).Build()).AsStrMap()
	if err != nil {
		return nil, fmt.Errorf("hgetall session %s: %w", sessionID, err)
	}
	if len(fields) == 0 {
		return nil, storage.ErrNotFound
	}
	session, err := decodeSession(sessionID, fields)
	if err != nil {
		return nil, err
	}

	docs, err := s.client.Do(ctx, s.client.B().Lrange().Key(s.modelsKey(sessionID)).Start(0).Stop(-1).Build()).AsStrSlice()
	if err != nil && !valkey.IsValkeyNil(err) {
		return nil, fmt.Errorf("lrange models of %s: %w", sessionID, err)
	}
	session.CustomModels, err = decodeModels(docs)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Writes to an existing session check for the hash and write in one script,
// so a concurrent delete cannot leave a hash without its name behind.
var (
	updateScene = valkey.NewLuaScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2], ARGV[3], ARGV[4])
return 1`)
	pushModel = valkey.NewLuaScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
redis.call('RPUSH', KEYS[2], ARGV[1])
return 1`)
)

func updateSceneArgs(raw []byte, now time.Time) []string {
	return []string{fieldSceneData, string(raw), fieldUpdatedAt, now.UTC().Format(time.RFC3339Nano)}
}

// UpdateSceneData overwrites the scene field of an existing session.
func (s *SessionStore) UpdateSceneData(ctx context.Context, sessionID string, scene models.SceneData) error {
	raw, err := json.Marshal(scene)
	if err != nil {
		return fmt.Errorf("encode scene: %w", err)
	}
	keys := []string{s.sessionKey(sessionID)}
	n, err := updateScene.Exec(ctx, s.client, keys, updateSceneArgs(raw, time.Now())).AsInt64()
	if err != nil {
		return fmt.Errorf("update scene of %s: %w", sessionID, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteSession removes both keys of a session.
func (s *SessionStore) DeleteSession(ctx context.Context, sessionID string) error {
	n, err := s.client.Do(ctx, s.client.B().Del().Key(s.sessionKey(sessionID), s.modelsKey(sessionID)).Build()).AsInt64()
	if err != nil {
		return fmt.Errorf("del session %s: %w", sessionID, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	log.Info().Str("module", "storage.valkey").Str("session", sessionID).Msg("session deleted")
	return nil
}

// AddCustomModel appends a model document to the session's list.
func (s *SessionStore) AddCustomModel(ctx context.Context, sessionID, name, assetID string) (*models.CustomModel, error) {
	m := &models.CustomModel{
		ID:        uuid.NewString(),
		Name:      name,
		AssetID:   assetID,
		SessionID: sessionID,
		CreatedAt: time.Now().UTC(),
	}
	doc, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode custom model: %w", err)
	}
	keys := []string{s.sessionKey(sessionID), s.modelsKey(sessionID)}
	n, err := pushModel.Exec(ctx, s.client, keys, []string{string(doc)}).AsInt64()
	if err != nil {
		return nil, fmt.Errorf("rpush custom model: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("add custom model: %w", storage.ErrNotFound)
	}
	return m, nil
}

// Close shuts the client down.
func (s *SessionStore) Close() error {
	s.client.Close()
	return nil
}

func encodeSession(session *models.Session) (map[string]string, error) {
	raw, err := json.Marshal(session.SceneData)
	if err != nil {
		return nil, fmt.Errorf("encode scene: %w", err)
	}
	return map[string]string{
		fieldName:      session.Name,
		fieldSceneData: string(raw),
		fieldCreatedAt: session.CreatedAt.Format(time.RFC3339Nano),
		fieldUpdatedAt: session.UpdatedAt.Format(time.RFC3339Nano),
	}, nil
}

func decodeSession(id string, fields map[string]string) (*models.Session, error) {
	session := &models.Session{
		ID:           id,
		Name:         fields[fieldName],
		SceneData:    models.SceneData{},
		CustomModels: []models.CustomModel{},
	}
	if raw := fields[fieldSceneData]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &session.SceneData); err != nil {
			return nil, fmt.Errorf("decode scene of %s: %w", id, err)
		}
		if session.SceneData == nil {
			session.SceneData = models.SceneData{}
		}
	}
	var err error
	if session.CreatedAt, err = parseTime(fields[fieldCreatedAt]); err != nil {
		return nil, fmt.Errorf("decode created_at of %s: %w", id, err)
	}
	if session.UpdatedAt, err = parseTime(fields[fieldUpdatedAt]); err != nil {
		return nil, fmt.Errorf("decode updated_at of %s: %w", id, err)
	}
	return session, nil
}

func decodeModels(docs []string) ([]models.CustomModel, error) {
	out := make([]models.CustomModel, 0, len(docs))
	for _, doc := range docs {
		var m models.CustomModel
		if err := json.Unmarshal([]byte(doc), &m); err != nil {
			return nil, fmt.Errorf("decode custom model: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

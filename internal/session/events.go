package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Vasu1712/scenyx-realtime/internal/models"
)

// Event names of the realtime protocol.
const (
	EventColorChange     = "object:color_change"
	EventTransformChange = "object:transform_change"
	EventAddObject       = "scene:add_object"
	EventRemoveObject    = "object:remove"
	EventJoin            = "session:join"
	EventLeave           = "session:leave"
	EventUserJoined      = "session:user_joined"
	EventUserLeft        = "session:user_left"
	EventState           = "session:state"
)

var errInvalid = errors.New("invalid payload")

func missing(field string) error {
	return fmt.Errorf("%w: %s is required", errInvalid, field)
}

// Envelope is the frame format on the wire in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound payloads. sessionId travels inside the payload, not the envelope.

type colorChangeIn struct {
	ID        string `json:"id"`
	Color     string `json:"color"`
	SessionID string `json:"sessionId"`
}

func (p colorChangeIn) validate() error {
	if p.Color == "" {
		return missing("color")
	}
	if len(p.Color) < 3 {
		return fmt.Errorf("%w: color %q is too short", errInvalid, p.Color)
	}
	if p.SessionID == "" {
		return missing("sessionId")
	}
	return nil
}

type transformChangeIn struct {
	ID        string       `json:"id"`
	Position  *models.Vec3 `json:"position"`
	Rotation  *models.Vec3 `json:"rotation"`
	Scale     *models.Vec3 `json:"scale"`
	SessionID string       `json:"sessionId"`
}

func (p transformChangeIn) validate() error {
	if p.ID == "" {
		return missing("id")
	}
	if p.SessionID == "" {
		return missing("sessionId")
	}
	return nil
}

type addObjectIn struct {
	ID        string           `json:"id"`
	Type      string           `json:"type"`
	Position  *models.Vec3     `json:"position"`
	Rotation  *models.Vec3     `json:"rotation"`
	Scale     *models.Vec3     `json:"scale"`
	Color     string           `json:"color"`
	Model     *models.ModelRef `json:"model"`
	SessionID string           `json:"sessionId"`
}

func (p addObjectIn) object() (models.SceneObject, error) {
	if p.ID == "" {
		return models.SceneObject{}, missing("id")
	}
	if p.Type == "" {
		return models.SceneObject{}, missing("type")
	}
	if p.SessionID == "" {
		return models.SceneObject{}, missing("sessionId")
	}
	kind, err := models.ParseShapeKind(p.Type)
	if err != nil {
		return models.SceneObject{}, fmt.Errorf("%w: %v", errInvalid, err)
	}
	return models.NewSceneObject(p.ID, kind, p.Position, p.Rotation, p.Scale, p.Color, p.Model), nil
}

type removeObjectIn struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
}

func (p removeObjectIn) validate() error {
	if p.ID == "" {
		return missing("id")
	}
	if p.SessionID == "" {
		return missing("sessionId")
	}
	return nil
}

type joinIn struct {
	SessionID string `json:"sessionId"`
	ID        string `json:"id"`
	Name      string `json:"name"`
}

func (p joinIn) validate() error {
	if p.SessionID == "" {
		return missing("sessionId")
	}
	if p.ID == "" {
		return missing("id")
	}
	if p.Name == "" {
		return missing("name")
	}
	return nil
}

// Outbound payloads.

type ColorChange struct {
	ID    string `json:"id"`
	Color string `json:"color"`
}

type TransformChange struct {
	ID       string       `json:"id"`
	Position *models.Vec3 `json:"position,omitempty"`
	Rotation *models.Vec3 `json:"rotation,omitempty"`
	Scale    *models.Vec3 `json:"scale,omitempty"`
}

type ObjectRemoved struct {
	ID string `json:"id"`
}

type UsersJoined struct {
	Users []models.SessionUser `json:"users"`
}

type UserLeft struct {
	UserID string               `json:"userId"`
	Users  []models.SessionUser `json:"users"`
}

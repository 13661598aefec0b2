package models

import (
	"fmt"
	"strings"
)

// ShapeKind enumerates the primitives a scene object can be.
type ShapeKind string

const (
	ShapeBox      ShapeKind = "box"
	ShapeCube     ShapeKind = "cube"
	ShapeSphere   ShapeKind = "sphere"
	ShapeCylinder ShapeKind = "cylinder"
	ShapeCone     ShapeKind = "cone"
	ShapeTorus    ShapeKind = "torus"
	ShapeCustom   ShapeKind = "custom"
)

var defaultColors = map[ShapeKind]string{
	ShapeBox:      "#ff6b6b",
	ShapeCube:     "#800080",
	ShapeSphere:   "#4ecdc4",
	ShapeCylinder: "#2f3542",
	ShapeCone:     "#ffa502",
	ShapeTorus:    "#5352ed",
	ShapeCustom:   "#ffffff",
}

// ParseShapeKind normalizes a wire value into a ShapeKind.
// "custom-model" is accepted as an alias of "custom".
func ParseShapeKind(s string) (ShapeKind, error) {
	k := ShapeKind(strings.ToLower(strings.TrimSpace(s)))
	if k == "custom-model" {
		k = ShapeCustom
	}
	if _, ok := defaultColors[k]; !ok {
		return "", fmt.Errorf("unknown shape kind %q", s)
	}
	return k, nil
}

// DefaultColor returns the color an object of kind k gets when none is given.
func (k ShapeKind) DefaultColor() string {
	return defaultColors[k]
}

// Vec3 is an x, y, z triple.
type Vec3 [3]float64

var (
	Origin   = Vec3{0, 0, 0}
	UnitSize = Vec3{1, 1, 1}
)

// ModelRef points a custom object at an uploaded asset.
type ModelRef struct {
	AssetID string `json:"assetId"`
	Loading bool   `json:"loading"`
}

// SceneObject is one node of a session's scene.
type SceneObject struct {
	ID       string    `json:"id"`
	Type     ShapeKind `json:"type"`
	Position Vec3      `json:"position"`
	Rotation Vec3      `json:"rotation"` // Euler angles, radians
	Scale    Vec3      `json:"scale"`
	Color    string    `json:"color"`
	Model    *ModelRef `json:"model,omitempty"`
}

// NewSceneObject builds an object from optional fields, filling the identity
// transform and the kind's default color where a field is absent.
func NewSceneObject(id string, kind ShapeKind, position, rotation, scale *Vec3, color string, model *ModelRef) SceneObject {
	obj := SceneObject{
		ID:       id,
		Type:     kind,
		Position: Origin,
		Rotation: Origin,
		Scale:    UnitSize,
		Color:    color,
	}
	if position != nil {
		obj.Position = *position
	}
	if rotation != nil {
		obj.Rotation = *rotation
	}
	if scale != nil {
		obj.Scale = *scale
	}
	if obj.Color == "" {
		obj.Color = kind.DefaultColor()
	}
	if model != nil {
		m := *model
		obj.Model = &m
	}
	return obj
}

// ObjectPatch carries the fields of a partial update. Nil fields are left
// untouched when the patch is applied.
type ObjectPatch struct {
	Position *Vec3
	Rotation *Vec3
	Scale    *Vec3
	Color    *string
}

// Empty reports whether the patch would change nothing.
func (p ObjectPatch) Empty() bool {
	return p.Position == nil && p.Rotation == nil && p.Scale == nil && p.Color == nil
}

// Apply merges the patch into obj.
func (p ObjectPatch) Apply(obj *SceneObject) {
	if p.Position != nil {
		obj.Position = *p.Position
	}
	if p.Rotation != nil {
		obj.Rotation = *p.Rotation
	}
	if p.Scale != nil {
		obj.Scale = *p.Scale
	}
	if p.Color != nil {
		obj.Color = *p.Color
	}
}

// SceneData maps object IDs to objects.
type SceneData map[string]SceneObject

// Clone copies the mapping. A nil mapping clones to an empty one.
func (d SceneData) Clone() SceneData {
	out := make(SceneData, len(d))
	for id, obj := range d {
		if obj.Model != nil {
			m := *obj.Model
			obj.Model = &m
		}
		out[id] = obj
	}
	return out
}

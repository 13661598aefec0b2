package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/Vasu1712/scenyx-realtime/internal/models"
	"github.com/Vasu1712/scenyx-realtime/internal/storage"
)

func TestCreateAndGetSession(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()

	created, err := s.CreateSession(ctx, "Demo House")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := s.GetSession(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Demo House" {
		t.Fatalf("name = %q", got.Name)
	}
	if got.SceneData == nil || len(got.SceneData) != 0 {
		t.Fatalf("expected empty scene, got %v", got.SceneData)
	}
}

func TestGetSessionMissing(t *testing.T) {
	_, err := NewSessionStore().GetSession(context.Background(), "nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateSceneDataIsolatesCallerMap(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	session, _ := s.CreateSession(ctx, "s")

	scene := models.SceneData{"o1": models.NewSceneObject("o1", models.ShapeBox, nil, nil, nil, "", nil)}
	if err := s.UpdateSceneData(ctx, session.ID, scene); err != nil {
		t.Fatalf("update: %v", err)
	}
	delete(scene, "o1")

	got, _ := s.GetSession(ctx, session.ID)
	if _, ok := got.SceneData["o1"]; !ok {
		t.Fatal("stored scene shares memory with caller")
	}
	if !got.UpdatedAt.After(got.CreatedAt) && !got.UpdatedAt.Equal(got.CreatedAt) {
		t.Fatal("updatedAt went backwards")
	}

	if err := s.UpdateSceneData(ctx, "missing", scene); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCustomModelsAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	session, _ := s.CreateSession(ctx, "s")

	m, err := s.AddCustomModel(ctx, session.ID, "chair", "asset-1")
	if err != nil {
		t.Fatalf("add model: %v", err)
	}
	got, _ := s.GetSession(ctx, session.ID)
	if len(got.CustomModels) != 1 || got.CustomModels[0].ID != m.ID {
		t.Fatalf("custom models = %+v", got.CustomModels)
	}

	if err := s.DeleteSession(ctx, session.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetSession(ctx, session.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := s.AddCustomModel(ctx, session.ID, "x", "y"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

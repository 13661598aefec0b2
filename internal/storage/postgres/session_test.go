package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/Vasu1712/scenyx-realtime/internal/models"
	"github.com/Vasu1712/scenyx-realtime/internal/storage"
)

func TestDecodeScene(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{name: "empty column", raw: "", want: 0},
		{name: "json null", raw: "null", want: 0},
		{name: "one object", raw: `{"o1":{"id":"o1","type":"box","position":[1,2,3],"rotation":[0,0,0],"scale":[1,1,1],"color":"#fff"}}`, want: 1},
		{name: "garbage", raw: "{", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeScene([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got == nil {
				t.Fatal("decoded scene must never be nil")
			}
			if len(got) != tt.want {
				t.Fatalf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

// A nil db panics if any of these reach the database.
func TestMalformedIDIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := &SessionStore{}
	for _, id := range []string{"", "not-a-uuid", "123", "'; drop table sessions; --"} {
		if _, err := s.GetSession(ctx, id); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetSession(%q) = %v", id, err)
		}
		if err := s.UpdateSceneData(ctx, id, models.SceneData{}); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("UpdateSceneData(%q) = %v", id, err)
		}
		if err := s.DeleteSession(ctx, id); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("DeleteSession(%q) = %v", id, err)
		}
		if _, err := s.AddCustomModel(ctx, id, "chair", "a1"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("AddCustomModel(%q) = %v", id, err)
		}
	}
}

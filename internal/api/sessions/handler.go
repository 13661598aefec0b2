package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Vasu1712/scenyx-realtime/internal/models"
	"github.com/Vasu1712/scenyx-realtime/internal/presence"
	"github.com/Vasu1712/scenyx-realtime/internal/scene"
	"github.com/Vasu1712/scenyx-realtime/internal/session"
	"github.com/Vasu1712/scenyx-realtime/internal/storage"
	"github.com/Vasu1712/scenyx-realtime/internal/ws"
)

// SessionHandler holds the dependencies of the session HTTP endpoints and
// the websocket upgrade.
type SessionHandler struct {
	Store    storage.SessionStore // durable sessions
	Scenes   *scene.Store         // live scene copies, kept coherent on writes
	Presence *presence.Registry   // who is connected right now
	Hub      *ws.Hub
	Router   *session.Router

	// BaseCtx outlives single requests; websocket pumps run under it.
	BaseCtx     context.Context
	Pump        ws.PumpOptions
	SendBuffer  int
	FrontendURL string
	Origin      string // allowed websocket origin, "*" for any
	Started     time.Time
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Str("module", "api").Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps a store error to a response. ErrNotFound becomes 404.
func fail(w http.ResponseWriter, err error, sessionID, what string) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	log.Error().Err(err).Str("module", "api").Str("session", sessionID).Msg(what)
	writeError(w, http.StatusInternalServerError, "Failed to "+what)
}

// CreateSession handles POST /api/sessions. The creator becomes the owner
// but is not present until their websocket joins.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		UserName string `json:"userName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Str("module", "api").Msg("bad create session body")
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.UserName) == "" {
		writeError(w, http.StatusBadRequest, "Session name and user name cannot be empty")
		return
	}

	sess, err := h.Store.CreateSession(r.Context(), req.Name)
	if err != nil {
		fail(w, err, "", "create session")
		return
	}
	owner := models.SessionUser{ID: uuid.NewString(), Name: req.UserName}
	log.Info().Str("module", "api").Str("session", sess.ID).Str("owner", owner.Name).Msg("session created")

	writeJSON(w, http.StatusCreated, map[string]any{
		"sessionId": sess.ID,
		"session":   sess,
		"owner":     owner,
	})
}

// GetSession handles GET /api/sessions/{id}. The live copy is preferred over
// the stored one, and activeUsers comes from presence.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, ok := h.Scenes.Get(r.Context(), id)
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	sess.ActiveUsers = h.Presence.Count(id)
	writeJSON(w, http.StatusOK, sess)
}

// UpdateSession handles PUT /api/sessions/{id} and replaces the whole scene.
func (h *SessionHandler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		SceneData models.SceneData `json:"sceneData"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	for key, obj := range req.SceneData {
		if obj.ID != key {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("object %q is stored under key %q", obj.ID, key))
			return
		}
	}
	if err := h.Scenes.Replace(r.Context(), id, req.SceneData); err != nil {
		fail(w, err, id, "update session")
		return
	}
	log.Info().Str("module", "api").Str("session", id).Int("objects", len(req.SceneData)).Msg("scene replaced")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DeleteSession handles DELETE /api/sessions/{id}.
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.Store.DeleteSession(r.Context(), id); err != nil {
		fail(w, err, id, "delete session")
		return
	}
	h.Scenes.Forget(id)
	log.Info().Str("module", "api").Str("session", id).Msg("session deleted")
	w.WriteHeader(http.StatusNoContent)
}

// JoinSession handles POST /api/sessions/{id}/join. It hands out a
// participant identity; presence starts when the websocket sends session:join.
func (h *SessionHandler) JoinSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		UserName string `json:"userName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.UserName) == "" {
		writeError(w, http.StatusBadRequest, "User name cannot be empty")
		return
	}
	sess, ok := h.Scenes.Get(r.Context(), id)
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	sess.ActiveUsers = h.Presence.Count(id)
	participant := models.SessionUser{ID: uuid.NewString(), Name: req.UserName}
	log.Info().Str("module", "api").Str("session", id).Str("user", participant.ID).Msg("participant issued")

	writeJSON(w, http.StatusOK, map[string]any{
		"session":     sess,
		"userId":      participant.ID,
		"participant": participant,
	})
}

// Participants handles GET /api/sessions/{id}/participants.
func (h *SessionHandler) Participants(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": id,
		"users":     h.Presence.List(id),
	})
}

// AddCustomModel handles POST /api/sessions/{id}/models.
func (h *SessionHandler) AddCustomModel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Name    string `json:"name"`
		AssetID string `json:"assetId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.AssetID == "" {
		writeError(w, http.StatusBadRequest, "Missing name or assetId")
		return
	}
	m, err := h.Store.AddCustomModel(r.Context(), id, req.Name, req.AssetID)
	if err != nil {
		fail(w, err, id, "create custom model")
		return
	}
	h.Scenes.AttachModel(*m)
	writeJSON(w, http.StatusCreated, m)
}

// ShareLink handles GET /api/sessions/{id}/share-link.
func (h *SessionHandler) ShareLink(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.Store.GetSession(r.Context(), id); err != nil {
		fail(w, err, id, "generate share link")
		return
	}
	url := fmt.Sprintf("%s/session/%s", strings.TrimRight(h.FrontendURL, "/"), id)
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": id, "url": url})
}

// Health handles GET /health.
func (h *SessionHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"uptime":      time.Since(h.Started).Seconds(),
		"connections": h.Hub.ClientCount(),
		"persistence": h.Scenes.Stats(),
	})
}

func (h *SessionHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || h.Origin == "*" || origin == h.Origin
}

// ServeWS upgrades the request and hands the socket to the event router.
// Sessions are joined over the socket, not in the URL.
func (h *SessionHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: h.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "api").Msg("websocket upgrade failed")
		return
	}

	client := ws.NewClient(uuid.NewString(), conn, h.SendBuffer)
	h.Hub.Register(client)
	c := h.Router.Connect(client)

	ctx := h.BaseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	ws.Serve(ctx, h.Hub, client, c, h.Pump)
}

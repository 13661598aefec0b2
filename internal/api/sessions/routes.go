package sessions

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// RegisterRoutes mounts the session API, health check and websocket endpoint.
func RegisterRoutes(r *mux.Router, handler *SessionHandler) {
	r.Use(logRequests)

	r.HandleFunc("/health", handler.Health).Methods(http.MethodGet)
	r.HandleFunc("/ws", handler.ServeWS).Methods(http.MethodGet)

	api := r.PathPrefix("/api/sessions").Subrouter()
	api.HandleFunc("", handler.CreateSession).Methods(http.MethodPost)
	api.HandleFunc("/{id}", handler.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/{id}", handler.UpdateSession).Methods(http.MethodPut)
	api.HandleFunc("/{id}", handler.DeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/{id}/join", handler.JoinSession).Methods(http.MethodPost)
	api.HandleFunc("/{id}/participants", handler.Participants).Methods(http.MethodGet)
	api.HandleFunc("/{id}/models", handler.AddCustomModel).Methods(http.MethodPost)
	api.HandleFunc("/{id}/share-link", handler.ShareLink).Methods(http.MethodGet)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debug().Str("module", "api").Str("method", r.Method).Str("path", r.URL.Path).Msg("request")
		next.ServeHTTP(w, r)
	})
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/cameroncuttingedge/tic_tac_toe_lobby/state"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/utils"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/websocket"
	"github.com/felixge/httpsnoop"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

type statsResponse struct {
	state.Stats
	Connections int `json:"connections"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter wires the websocket endpoint and the read-only HTTP endpoints onto one handler,
// wrapped with access logging, panic recovery and CORS.
func NewRouter(s *state.AppState, hub *websocket.Hub, allowedOrigins []string) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/ws", hub.ServeWS)
	r.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/stats", statsHandler(s, hub)).Methods(http.MethodGet)
	r.HandleFunc("/lobbies/{code}", lobbyHandler(s)).Methods(http.MethodGet)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(allowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
	)
	recovery := handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{}), handlers.PrintRecoveryStack(false))

	return accessLog(recovery(cors(r)))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statsHandler(s *state.AppState, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statsResponse{Stats: s.Stats(), Connections: hub.Connections()})
	}
}

func lobbyHandler(s *state.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := mux.Vars(r)["code"]
		if !utils.ValidLobbyCode(code) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "lobby code must be 4 digits"})
			return
		}

		l, ok := s.Lobby(code)
		if !ok || l.Closed() {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "lobby not found"})
			return
		}
		writeJSON(w, http.StatusOK, l.View())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// accessLog writes one line per request. Upgraded websocket connections are logged when
// they close.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Int("status", m.Code).
			Int64("bytes", m.Written).
			Dur("duration", m.Duration).
			Msg("HTTP request")
	})
}

type recoveryLogger struct{}

func (recoveryLogger) Println(v ...interface{}) {
	log.Error().Interface("panic", v).Msg("Recovered from handler panic")
}

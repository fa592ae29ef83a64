package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"updatebot/internal/config"
	"updatebot/internal/httpserver"
	"updatebot/internal/logging"
)

type settingsResponse struct {
	AppID         string `json:"appId"`
	GameID        string `json:"gameId"`
	UpdateCommand string `json:"updateCommand"`
}

type registerRequest struct {
	UpdateID string `json:"updateId"`
	UserID   string `json:"userId"`
	AppID    string `json:"appId"`
	GameID   string `json:"gameId"`
}

type errorResponse struct {
	Message string `json:"message"`
}

type server struct {
	cfg   config.MockSettingsConfig
	rng   *rand.Rand
	rngMu sync.Mutex
}

func main() {
	cfg := config.LoadMockSettings()
	logging.Init("mock-settings", cfg.LogFormat)

	s := &server{cfg: cfg, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}

	slog.Info("mock settings listening", "port", cfg.Port, "mode", cfg.Mode)
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: s.router(), ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("mock settings server failed", "err", err)
		os.Exit(1)
	}
}

func (s *server) router() http.Handler {
	r := mux.NewRouter()
	r.Use(httpserver.RequestID, httpserver.Logging)
	r.HandleFunc("/settings", s.handleSettings).Methods(http.MethodGet)
	r.HandleFunc("/updates/requests", s.handleRegister).Methods(http.MethodPost)
	return r
}

func (s *server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "invalid api key"})
		return
	}
	appID, gameID := r.URL.Query().Get("appId"), r.URL.Query().Get("gameId")
	if appID == "" || gameID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "appId and gameId are required"})
		return
	}
	if !s.delay(r.Context()) {
		return
	}
	if s.shouldFail() {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "mock failure"})
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{AppID: appID, GameID: gameID, UpdateCommand: s.cfg.UpdateCommand})
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "invalid api key"})
		return
	}
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UpdateID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: httpserver.ErrInvalidJSON})
		return
	}
	if !s.delay(r.Context()) {
		return
	}
	if s.shouldFail() {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "mock failure"})
		return
	}
	slog.Info("mock update request registered", "update_id", req.UpdateID, "user_id", req.UserID)
	writeJSON(w, http.StatusCreated, map[string]string{"id": uuid.NewString()})
}

func (s *server) authorized(r *http.Request) bool {
	if s.cfg.APIKey == "" {
		return true
	}
	return r.Header.Get("Authorization") == "apiKey "+s.cfg.APIKey
}

func (s *server) shouldFail() bool {
	switch strings.ToLower(s.cfg.Mode) {
	case "fail":
		return true
	case "random":
		s.rngMu.Lock()
		defer s.rngMu.Unlock()
		return s.rng.Float64() < s.cfg.FailRate
	default:
		return false
	}
}

// delay reports false when the client went away while waiting.
func (s *server) delay(ctx context.Context) bool {
	if s.cfg.Delay <= 0 {
		return true
	}
	t := time.NewTimer(s.cfg.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

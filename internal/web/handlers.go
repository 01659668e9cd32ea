package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

const defaultListLimit = 100

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.bot.Status(r.Context())
	s.writeJSON(w, status)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, defaultListLimit)
	trades, err := s.tradeRepo.ListTrades(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list trades", zap.Error(err))
		http.Error(w, "Failed to list trades", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, trades)
}

func (s *Server) handlePositionHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, defaultListLimit)
	history, err := s.tradeRepo.ListPositionHistory(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list position history", zap.Error(err))
		http.Error(w, "Failed to list position history", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, history)
}

func (s *Server) handleBotStart(w http.ResponseWriter, r *http.Request) {
	if err := s.bot.Start(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	s.writeJSON(w, map[string]string{"status": "started"})
}

func (s *Server) handleBotStop(w http.ResponseWriter, r *http.Request) {
	if err := s.bot.Stop(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	s.writeJSON(w, map[string]string{"status": "stopped"})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

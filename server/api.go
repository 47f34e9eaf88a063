package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"oscar/generation"
)

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generation.GenerateRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	html, err := s.gen.Generate(r.Context(), req)
	if err != nil {
		generationFailed(w, "generate HTML", err)
		return
	}
	writeJSON(w, http.StatusOK, generation.GenerateResponse{
		HTML:      html,
		Variants:  len(html),
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req generation.EditRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	html, err := s.gen.Edit(r.Context(), req)
	if err != nil {
		generationFailed(w, "edit HTML", err)
		return
	}
	writeJSON(w, http.StatusOK, generation.EditResponse{
		HTML:      html,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleVibeCode(w http.ResponseWriter, r *http.Request) {
	var req generation.VibeCodeRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	html, err := s.gen.VibeCode(r.Context(), req)
	if err != nil {
		generationFailed(w, "generate vibe code", err)
		return
	}
	writeJSON(w, http.StatusOK, generation.GenerateResponse{
		HTML:      html,
		Variants:  len(html),
		Timestamp: time.Now().UTC(),
	})
}

func decodeRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

func generationFailed(w http.ResponseWriter, what string, err error) {
	if generation.IsValidation(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Error().Err(err).Msgf("Failed to %s", what)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: true, Message: message})
}

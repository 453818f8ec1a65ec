package server

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/Yates-Labs/lectern/internal/rag"
	"github.com/Yates-Labs/lectern/internal/router"
)

const internalErrorMessage = "An error occurred while processing your request."

// AssistantRequest is the body of POST /api/assistant.
type AssistantRequest struct {
	Query      string      `json:"query"`
	VideoID    flexString  `json:"video_id"`
	VideoTitle string      `json:"video_title"`
	Timestamp  flexSeconds `json:"timestamp"`
}

// AssistantResponse is the success body of POST /api/assistant.
type AssistantResponse struct {
	Answer string `json:"answer"`
}

// flexString accepts a JSON string or number; players send numeric ids.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("video_id must be a string or number")
	}
	*f = flexString(n.String())
	return nil
}

// flexSeconds accepts a JSON number or a numeric string.
type flexSeconds float64

func (f *flexSeconds) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*f = 0
			return nil
		}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("timestamp must be a number of seconds")
	}
	*f = flexSeconds(v)
	return nil
}

func (s *Server) handleAssistant(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)

	var body AssistantRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "Request body too large.")
			return
		}
		s.writeError(w, http.StatusBadRequest, "Malformed request: "+err.Error())
		return
	}
	if strings.TrimSpace(body.Query) == "" {
		s.writeError(w, http.StatusBadRequest, "Query not provided.")
		return
	}

	result, err := s.answerer.Answer(r.Context(), router.Request{
		Query:      body.Query,
		VideoID:    strings.TrimSpace(string(body.VideoID)),
		VideoTitle: body.VideoTitle,
		Timestamp:  float64(body.Timestamp),
	})
	if err != nil {
		if router.IsClientError(err) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error().Err(err).Str("video_id", string(body.VideoID)).Msg("Assistant request failed")
		s.writeError(w, http.StatusInternalServerError, internalErrorMessage)
		return
	}

	w.Header().Set("X-Answer-Branch", string(result.Branch))
	s.writeJSON(w, http.StatusOK, AssistantResponse{Answer: result.Answer})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	// The build outlives a disconnected client; the index stays consistent either way.
	ctx := context.WithoutCancel(r.Context())

	chunks, err := s.rebuilder.RebuildIndex(ctx)
	if err != nil {
		if errors.Is(err, rag.ErrRebuildInProgress) {
			s.writeError(w, http.StatusConflict, "An index rebuild is already running.")
			return
		}
		s.logger.Error().Err(err).Msg("Index rebuild failed")
		s.writeError(w, http.StatusInternalServerError, internalErrorMessage)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"chunks": chunks})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	s.index.Invalidate()
	snap, err := s.index.Load(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Index reload failed")
		s.writeError(w, http.StatusInternalServerError, internalErrorMessage)
		return
	}
	if snap == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"loaded": false})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"loaded": true, "manifest": snap.Manifest()})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	expected := []byte("Bearer " + s.config.AdminToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, expected) != 1 {
			s.writeError(w, http.StatusUnauthorized, "Unauthorized.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

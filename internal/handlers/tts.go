package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/benvon/nextstep/internal/services/tts"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// SpeechHandler reads task text aloud
type SpeechHandler struct {
	synth  tts.Synthesizer
	logger *zap.Logger
}

// NewSpeechHandler creates a new speech handler
func NewSpeechHandler(synth tts.Synthesizer, logger *zap.Logger) *SpeechHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SpeechHandler{synth: synth, logger: logger}
}

// RegisterRoutes registers speech routes
func (h *SpeechHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/tts", h.Synthesize).Methods("POST")
}

// SynthesizeRequest represents a text-to-speech request
type SynthesizeRequest struct {
	Text string `json:"text"`
}

// Synthesize handles POST /tts and writes the audio body directly
func (h *SpeechHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	if h.synth == nil {
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Text-to-speech is not configured")
		return
	}
	var req SynthesizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	audio, err := h.synth.Synthesize(r.Context(), req.Text)
	if err != nil {
		var providerErr *tts.ProviderError
		switch {
		case errors.Is(err, tts.ErrNotConfigured):
			respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Text-to-speech is not configured")
		case errors.Is(err, tts.ErrEmptyText), errors.Is(err, tts.ErrTextTooLong):
			respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		case errors.As(err, &providerErr):
			h.logger.Error("tts_provider_failed",
				zap.String("user_id", ownerID),
				zap.Int("status_code", providerErr.StatusCode))
			respondJSONError(w, http.StatusBadGateway, "Bad Gateway", "Speech provider request failed")
		default:
			h.logger.Error("tts_failed", zap.String("user_id", ownerID), zap.Error(err))
			respondJSONError(w, http.StatusBadGateway, "Bad Gateway", "Failed to synthesize speech")
		}
		return
	}

	w.Header().Set("Content-Type", audio.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(audio.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio.Data); err != nil {
		h.logger.Warn("tts_write_failed", zap.Error(err))
	}
}

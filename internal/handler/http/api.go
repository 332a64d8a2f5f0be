package http

import (
	"encoding/base64"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/windfall/storyspeak/internal/audio"
	"github.com/windfall/storyspeak/internal/errors"
	"github.com/windfall/storyspeak/internal/service"
	"github.com/windfall/storyspeak/pkg/response"
)

// APIHandler serves the stateless AI endpoints.
type APIHandler struct {
	log       zerolog.Logger
	aiService *service.AIService
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(log zerolog.Logger, aiService *service.AIService) *APIHandler {
	return &APIHandler{
		log:       log,
		aiService: aiService,
	}
}

// LessonRequest is the body of POST /api/v1/lessons.
type LessonRequest struct {
	Story string `json:"story"`
	Level string `json:"level"`
}

// GenerateLesson handles POST /api/v1/lessons
func (h *APIHandler) GenerateLesson(w http.ResponseWriter, r *http.Request) {
	var req LessonRequest
	if err := decode(w, r, &req); err != nil {
		handleError(h.log, w, err)
		return
	}

	l, err := h.aiService.GenerateLesson(r.Context(), req.Story, req.Level)
	if err != nil {
		handleError(h.log, w, err)
		return
	}
	response.JSON(w, http.StatusOK, l)
}

// SpeechRequest is the body of POST /api/v1/speech.
type SpeechRequest struct {
	Text string `json:"text"`
}

// SpeechResponse carries base64 PCM.
type SpeechResponse struct {
	AudioBase64 string `json:"audioBase64"`
	SampleRate  int    `json:"sampleRate"`
	MimeType    string `json:"mimeType"`
}

// GenerateSpeech handles POST /api/v1/speech
//
// Query param: format=wav returns an audio/wav body instead of JSON.
func (h *APIHandler) GenerateSpeech(w http.ResponseWriter, r *http.Request) {
	var req SpeechRequest
	if err := decode(w, r, &req); err != nil {
		handleError(h.log, w, err)
		return
	}

	sp, err := h.aiService.GenerateSpeech(r.Context(), req.Text)
	if err != nil {
		handleError(h.log, w, err)
		return
	}

	if r.URL.Query().Get("format") == "wav" {
		response.Binary(w, "audio/wav", audio.EncodeWAV(sp.PCM, sp.SampleRate, audio.Channels))
		return
	}
	response.JSON(w, http.StatusOK, SpeechResponse{
		AudioBase64: base64.StdEncoding.EncodeToString(sp.PCM),
		SampleRate:  sp.SampleRate,
		MimeType:    audio.PCMMIMEType,
	})
}

// Transcribe handles POST /api/v1/transcribe
func (h *APIHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	var req AudioPayload
	if err := decode(w, r, &req); err != nil {
		handleError(h.log, w, err)
		return
	}
	rec, err := req.audio()
	if err != nil {
		handleError(h.log, w, err)
		return
	}

	text, err := h.aiService.TranscribeAudio(r.Context(), rec)
	if err != nil {
		handleError(h.log, w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"text": text})
}

// PronunciationRequest is the body of POST /api/v1/pronunciation.
type PronunciationRequest struct {
	Text string `json:"text"`
	AudioPayload
}

// EvaluatePronunciation handles POST /api/v1/pronunciation
func (h *APIHandler) EvaluatePronunciation(w http.ResponseWriter, r *http.Request) {
	var req PronunciationRequest
	if err := decode(w, r, &req); err != nil {
		handleError(h.log, w, err)
		return
	}
	if req.Text == "" {
		handleError(h.log, w, errors.Validation("text is required"))
		return
	}
	rec, err := req.audio()
	if err != nil {
		handleError(h.log, w, err)
		return
	}

	ev, err := h.aiService.EvaluatePronunciation(r.Context(), req.Text, rec)
	if err != nil {
		handleError(h.log, w, err)
		return
	}
	response.JSON(w, http.StatusOK, ev)
}

package http

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/windfall/storyspeak/internal/middleware"
	"github.com/windfall/storyspeak/internal/service"
	"github.com/windfall/storyspeak/internal/session"
	"github.com/windfall/storyspeak/pkg/response"
)

// SessionHandler exposes the session state machine. Every trigger answers
// with the session snapshot after the transition.
type SessionHandler struct {
	log      zerolog.Logger
	sessions *service.SessionService
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(log zerolog.Logger, sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{
		log:      log,
		sessions: sessions,
	}
}

// respond writes the snapshot or the error.
func (h *SessionHandler) respond(w http.ResponseWriter, v *service.SessionView, err error) {
	if err != nil {
		handleError(h.log, w, err)
		return
	}
	response.JSON(w, http.StatusOK, v)
}

// Create handles POST /api/v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	v, err := h.sessions.Create(r.Context())
	if err != nil {
		handleError(h.log, w, err)
		return
	}
	response.Created(w, v)
}

// Get handles GET /api/v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.sessions.Get(r.Context(), middleware.GetSessionID(r.Context()))
	h.respond(w, v, err)
}

// Delete handles DELETE /api/v1/sessions/{id}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), middleware.GetSessionID(r.Context())); err != nil {
		handleError(h.log, w, err)
		return
	}
	response.NoContent(w)
}

// StoryRequest is the body of POST .../story.
type StoryRequest struct {
	Story string `json:"story"`
	Level string `json:"level"`
}

// SetStory handles POST /api/v1/sessions/{id}/story
func (h *SessionHandler) SetStory(w http.ResponseWriter, r *http.Request) {
	var req StoryRequest
	if err := decode(w, r, &req); err != nil {
		handleError(h.log, w, err)
		return
	}
	v, err := h.sessions.SetStory(r.Context(), middleware.GetSessionID(r.Context()), req.Story, req.Level)
	h.respond(w, v, err)
}

// Generate handles POST /api/v1/sessions/{id}/lesson
//
// Query param: wait=true blocks until the lesson arrived or failed.
func (h *SessionHandler) Generate(w http.ResponseWriter, r *http.Request) {
	v, err := h.sessions.Generate(r.Context(), middleware.GetSessionID(r.Context()), waitParam(r))
	h.respond(w, v, err)
}

// Back handles POST /api/v1/sessions/{id}/back
func (h *SessionHandler) Back(w http.ResponseWriter, r *http.Request) {
	v, err := h.sessions.Back(r.Context(), middleware.GetSessionID(r.Context()))
	h.respond(w, v, err)
}

// StartPractice handles POST /api/v1/sessions/{id}/practice
func (h *SessionHandler) StartPractice(w http.ResponseWriter, r *http.Request) {
	v, err := h.sessions.StartPractice(r.Context(), middleware.GetSessionID(r.Context()))
	h.respond(w, v, err)
}

// IndexRequest selects a sentence.
type IndexRequest struct {
	Index int `json:"index"`
}

// SelectSentence handles POST /api/v1/sessions/{id}/practice/select
func (h *SessionHandler) SelectSentence(w http.ResponseWriter, r *http.Request) {
	var req IndexRequest
	if err := decode(w, r, &req); err != nil {
		handleError(h.log, w, err)
		return
	}
	v, err := h.sessions.SelectSentence(r.Context(), middleware.GetSessionID(r.Context()), req.Index)
	h.respond(w, v, err)
}

// NextSentence handles POST /api/v1/sessions/{id}/practice/next
func (h *SessionHandler) NextSentence(w http.ResponseWriter, r *http.Request) {
	v, err := h.sessions.NextSentence(r.Context(), middleware.GetSessionID(r.Context()))
	h.respond(w, v, err)
}

// SentenceGameRequest starts a sentence game.
type SentenceGameRequest struct {
	Blanks int `json:"blanks"`
}

// StartSentenceGame handles POST /api/v1/sessions/{id}/sentence-game
func (h *SessionHandler) StartSentenceGame(w http.ResponseWriter, r *http.Request) {
	var req SentenceGameRequest
	if err := decode(w, r, &req); err != nil {
		handleError(h.log, w, err)
		return
	}
	v, err := h.sessions.StartSentenceGame(r.Context(), middleware.GetSessionID(r.Context()), req.Blanks)
	h.respond(w, v, err)
}

// AnswersRequest carries the typed blank answers.
type AnswersRequest struct {
	Answers []string `json:"answers"`
}

// CheckSentenceGame handles POST /api/v1/sessions/{id}/sentence-game/check
func (h *SessionHandler) CheckSentenceGame(w http.ResponseWriter, r *http.Request) {
	var req AnswersRequest
	if err := decode(w, r, &req); err != nil {
		handleError(h.log, w, err)
		return
	}
	v, err := h.sessions.CheckSentenceGame(r.Context(), middleware.GetSessionID(r.Context()), req.Answers)
	h.respond(w, v, err)
}

// NextGameSentence handles POST /api/v1/sessions/{id}/sentence-game/next
func (h *SessionHandler) NextGameSentence(w http.ResponseWriter, r *http.Request) {
	v, err := h.sessions.NextGameSentence(r.Context(), middleware.GetSessionID(r.Context()))
	h.respond(w, v, err)
}

// StartWordGame handles POST /api/v1/sessions/{id}/word-game
func (h *SessionHandler) StartWordGame(w http.ResponseWriter, r *http.Request) {
	v, err := h.sessions.StartWordGame(r.Context(), middleware.GetSessionID(r.Context()))
	h.respond(w, v, err)
}

// WordAnswerRequest is a flashcard pick.
type WordAnswerRequest struct {
	Selected string `json:"selected"`
}

// AnswerWord handles POST /api/v1/sessions/{id}/word-game/answer
func (h *SessionHandler) AnswerWord(w http.ResponseWriter, r *http.Request) {
	var req WordAnswerRequest
	if err := decode(w, r, &req); err != nil {
		handleError(h.log, w, err)
		return
	}
	v, err := h.sessions.AnswerWord(r.Context(), middleware.GetSessionID(r.Context()), req.Selected)
	h.respond(w, v, err)
}

// StartRoleplay handles POST /api/v1/sessions/{id}/roleplay
func (h *SessionHandler) StartRoleplay(w http.ResponseWriter, r *http.Request) {
	v, err := h.sessions.StartRoleplay(r.Context(), middleware.GetSessionID(r.Context()))
	h.respond(w, v, err)
}

// MicRequest toggles the roleplay microphone.
type MicRequest struct {
	On bool `json:"on"`
}

// SetMic handles POST /api/v1/sessions/{id}/roleplay/mic
func (h *SessionHandler) SetMic(w http.ResponseWriter, r *http.Request) {
	var req MicRequest
	if err := decode(w, r, &req); err != nil {
		handleError(h.log, w, err)
		return
	}
	v, err := h.sessions.SetMic(r.Context(), middleware.GetSessionID(r.Context()), req.On)
	h.respond(w, v, err)
}

// MessageRequest is a typed roleplay line.
type MessageRequest struct {
	Text string `json:"text"`
}

// MessageResponse pairs the snapshot with the ID used to collect the reply.
type MessageResponse struct {
	RequestID string               `json:"requestId"`
	Session   *service.SessionView `json:"session"`
}

// SendMessage handles POST /api/v1/sessions/{id}/roleplay/messages
// This is the PRODUCER endpoint: it returns at once and the partner reply
// is produced in the background.
func (h *SessionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := decode(w, r, &req); err != nil {
		handleError(h.log, w, err)
		return
	}
	requestID, v, err := h.sessions.SendMessage(r.Context(), middleware.GetSessionID(r.Context()), req.Text)
	if err != nil {
		handleError(h.log, w, err)
		return
	}
	response.JSON(w, http.StatusAccepted, MessageResponse{RequestID: requestID, Session: v})
}

// WaitReply handles GET /api/v1/sessions/{id}/roleplay/reply
// This is the CONSUMER endpoint: it blocks until the reply is ready.
//
// Query param: request_id
// Response (timeout): 504 Gateway Timeout
func (h *SessionHandler) WaitReply(w http.ResponseWriter, r *http.Request) {
	requestID := r.URL.Query().Get("request_id")
	reply, err := h.sessions.WaitReply(r.Context(), middleware.GetSessionID(r.Context()), requestID)
	if err != nil {
		handleError(h.log, w, err)
		return
	}
	response.JSON(w, http.StatusOK, reply)
}

// CaptureRequest starts a capture.
type CaptureRequest struct {
	Kind session.CaptureKind `json:"kind"`
}

// StartCapture handles POST /api/v1/sessions/{id}/capture/start
func (h *SessionHandler) StartCapture(w http.ResponseWriter, r *http.Request) {
	var req CaptureRequest
	if err := decode(w, r, &req); err != nil {
		handleError(h.log, w, err)
		return
	}
	v, err := h.sessions.StartCapture(r.Context(), middleware.GetSessionID(r.Context()), req.Kind)
	h.respond(w, v, err)
}

// StopCapture handles POST /api/v1/sessions/{id}/capture/stop
//
// The body carries the recording. Query param: wait=true blocks until the
// recording was processed.
func (h *SessionHandler) StopCapture(w http.ResponseWriter, r *http.Request) {
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
	v, err := h.sessions.StopCapture(r.Context(), middleware.GetSessionID(r.Context()), rec, waitParam(r))
	h.respond(w, v, err)
}

// FailCapture handles POST /api/v1/sessions/{id}/capture/fail
func (h *SessionHandler) FailCapture(w http.ResponseWriter, r *http.Request) {
	v, err := h.sessions.FailCapture(r.Context(), middleware.GetSessionID(r.Context()))
	h.respond(w, v, err)
}

// DismissNotice handles DELETE /api/v1/sessions/{id}/notice
func (h *SessionHandler) DismissNotice(w http.ResponseWriter, r *http.Request) {
	v, err := h.sessions.DismissNotice(r.Context(), middleware.GetSessionID(r.Context()))
	h.respond(w, v, err)
}

// Package handler is the HTTP transport: a thin JSON layer over the voice
// flow. It owns everything the flow core deliberately does not: request
// decoding, per-session serialization, the pending-answer side table, the
// per-round-trip time decrement, and supervisor authentication.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/sneportal/voiceexam/internal/flow"
	appI18n "github.com/sneportal/voiceexam/internal/i18n"
	"github.com/sneportal/voiceexam/internal/model"
	"github.com/sneportal/voiceexam/internal/store"
	"github.com/sneportal/voiceexam/internal/voice"
)

const (
	// roundTripCost approximates the seconds a recording round trip consumes
	// beyond what the client reports. Deducted per voice request.
	roundTripCost = 5

	maxAudioUpload = 10 << 20 // 10 MiB per clip
)

var errInvalidVoicePayload = errors.New("expected an audio upload or a transcript")

// Config holds transport settings.
type Config struct {
	BasePath      string
	SecureCookies bool
}

// Handler serves the exam API.
type Handler struct {
	store  *store.Store
	flow   *flow.Manager
	voice  voice.Adapter
	config Config

	mu    sync.Mutex
	gates map[string]*sessionGate
}

// sessionGate serializes voice requests for one session and holds the
// answer awaiting confirmation between round trips.
type sessionGate struct {
	mu      sync.Mutex
	pending *flow.PendingAnswer
}

// New creates the HTTP handler.
func New(s *store.Store, fm *flow.Manager, v voice.Adapter, cfg Config) *Handler {
	return &Handler{
		store:  s,
		flow:   fm,
		voice:  v,
		config: cfg,
		gates:  make(map[string]*sessionGate),
	}
}

// Routes builds the router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// Default localizer; the flow swaps in the exam's language per session.
	r.Use(appI18n.Middleware(string(model.LanguageEnglish)))

	r.Route("/api", func(r chi.Router) {
		// Student-facing endpoints are unauthenticated: the exam kiosk has
		// no login step.
		r.Get("/exams", h.handleListExams)
		r.Post("/sessions", h.handleCreateSession)
		r.Get("/sessions/{sessionID}", h.handleSessionState)
		r.Post("/sessions/{sessionID}/voice", h.handleVoice)
		r.Get("/tone", h.handleTone)
		r.Post("/tts", h.handleTTS)

		r.Post("/auth/login", h.handleLogin)
		r.Post("/auth/logout", h.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/sessions", h.handleListSessions)
			r.Get("/results", h.handleResults)
			r.Post("/sessions/{sessionID}/control", h.handleSessionControl)
		})
	})

	return r
}

func (h *Handler) gate(sessionID string) *sessionGate {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.gates[sessionID]
	if !ok {
		g = &sessionGate{}
		h.gates[sessionID] = g
	}
	return g
}

func (h *Handler) dropGate(sessionID string) {
	h.mu.Lock()
	delete(h.gates, sessionID)
	h.mu.Unlock()
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response failed", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"error": true, "message": message})
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.store.ListActiveExams()
	if err != nil {
		slog.Error("list exams failed", "error", err)
		respondError(w, http.StatusInternalServerError, "could not list exams")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"exams": exams})
}

type createSessionRequest struct {
	ExamID int64 `json:"exam_id"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := h.store.GetExamView(req.ExamID)
	if err != nil {
		respondError(w, http.StatusNotFound, "exam not found")
		return
	}
	if !view.Exam.Active {
		respondError(w, http.StatusNotFound, "exam not found")
		return
	}
	if len(view.Questions) == 0 {
		respondError(w, http.StatusConflict, "exam has no questions")
		return
	}

	sess := model.ExamSession{
		ExamID:        view.Exam.ID,
		SessionID:     uuid.NewString(),
		State:         model.StateStudentName,
		TimeRemaining: view.Exam.DurationMinutes * 60,
	}
	id, err := h.store.CreateSession(sess)
	if err != nil {
		slog.Error("create session failed", "error", err)
		respondError(w, http.StatusInternalServerError, "could not create session")
		return
	}
	sess.ID = id

	ctx := appI18n.WithLocalizer(r.Context(), appI18n.NewLocalizer(string(view.Exam.Language)))
	greeting := appI18n.Td(ctx, "WelcomeAskName", map[string]any{"Title": view.Exam.Title})

	resp := map[string]any{
		"session_id":      sess.SessionID,
		"state":           sess.State,
		"text":            greeting,
		"time_remaining":  sess.TimeRemaining,
		"total_questions": len(view.Questions),
		"language":        view.Exam.Language.SpeechCode(),
	}
	if audio, err := h.voice.Synthesize(ctx, greeting, view.Exam.Language.SpeechCode()); err == nil {
		resp["audio_available"] = true
		resp["audio_data"] = audio
		resp["audio_content_type"] = "audio/mpeg"
	} else {
		slog.Warn("greeting synthesis failed", "session_id", sess.SessionID, "error", err)
		resp["audio_available"] = false
	}

	slog.Info("session created", "session_id", sess.SessionID, "exam_id", view.Exam.ID)
	respondJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleSessionState(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sv, err := h.store.GetSessionView(sessionID)
	if err != nil {
		slog.Error("load session view failed", "session_id", sessionID, "error", err)
		respondError(w, http.StatusInternalServerError, "could not load session")
		return
	}
	if sv == nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, sv)
}

// handleVoice processes one recorded clip (or a pre-made transcript) for a
// session. Requests for the same session are serialized; concurrent clips
// wait their turn rather than interleaving state transitions.
func (h *Handler) handleVoice(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	audio, transcript, err := readVoicePayload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The session must be loaded under the gate: a snapshot read before the
	// lock could replay a stale state over a concurrent request's transition.
	g := h.gate(sessionID)
	g.mu.Lock()
	defer g.mu.Unlock()

	sess, err := h.store.GetSessionBySessionID(sessionID)
	if err != nil {
		slog.Error("load session failed", "session_id", sessionID, "error", err)
		respondError(w, http.StatusInternalServerError, "could not load session")
		return
	}
	if sess == nil {
		h.dropGate(sessionID)
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if sess.State.Terminal() {
		respondError(w, http.StatusConflict, "exam already complete")
		return
	}

	// Charge the recording round trip against the clock up front, so a
	// student cannot stop it by never finishing an answer.
	sess.TimeRemaining -= roundTripCost
	if sess.TimeRemaining < 0 {
		sess.TimeRemaining = 0
	}
	if err := h.store.UpdateSession(*sess); err != nil {
		slog.Error("persist time decrement failed", "session_id", sessionID, "error", err)
	}

	var resp *flow.Response
	if transcript != "" {
		resp, g.pending = h.flow.HandleTranscript(r.Context(), sess, transcript, g.pending)
	} else {
		resp, g.pending = h.flow.HandleVoiceInput(r.Context(), sess, audio, g.pending)
	}

	if resp.State.Terminal() {
		h.dropGate(sessionID)
	}

	respondJSON(w, http.StatusOK, resp)
}

// readVoicePayload pulls the audio clip or fallback transcript out of a
// voice request. Multipart uploads carry the clip in the "audio" field; a
// "transcript" field (form or JSON) bypasses transcription.
func readVoicePayload(r *http.Request) (audio []byte, transcript string, err error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Transcript string `json:"transcript"`
		}
		if decodeErr := json.NewDecoder(r.Body).Decode(&body); decodeErr != nil {
			return nil, "", errInvalidVoicePayload
		}
		return nil, body.Transcript, nil
	}

	if parseErr := r.ParseMultipartForm(maxAudioUpload); parseErr != nil {
		return nil, "", errInvalidVoicePayload
	}
	if transcript = r.FormValue("transcript"); transcript != "" {
		return nil, transcript, nil
	}

	file, _, fileErr := r.FormFile("audio")
	if fileErr != nil {
		return nil, "", errInvalidVoicePayload
	}
	defer file.Close()
	audio, readErr := io.ReadAll(io.LimitReader(file, maxAudioUpload))
	if readErr != nil {
		return nil, "", errInvalidVoicePayload
	}
	return audio, "", nil
}

// handleTone streams a short WAV answer-cue tone. Frequency and duration
// are clamped by the generator.
func (h *Handler) handleTone(w http.ResponseWriter, r *http.Request) {
	frequency := voice.DefaultToneFrequency
	duration := voice.DefaultToneDuration
	if v := r.URL.Query().Get("frequency"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			frequency = f
		}
	}
	if v := r.URL.Query().Get("duration"); v != "" {
		if d, err := strconv.ParseFloat(v, 64); err == nil {
			duration = d
		}
	}

	wav, err := voice.GenerateTone(frequency, duration)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := w.Write(wav); err != nil {
		slog.Error("write tone failed", "error", err)
	}
}

type ttsRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// handleTTS synthesizes arbitrary prompt text, for client-side replay of
// instructions outside a session round trip.
func (h *Handler) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.Language == "" {
		req.Language = model.LanguageEnglish.SpeechCode()
	}

	audio, err := h.voice.Synthesize(r.Context(), req.Text, req.Language)
	if err != nil {
		slog.Error("tts synthesis failed", "error", err)
		respondError(w, http.StatusBadGateway, "speech synthesis unavailable")
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	if _, err := w.Write(audio); err != nil {
		slog.Error("write tts audio failed", "error", err)
	}
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(100)
	if err != nil {
		slog.Error("list sessions failed", "error", err)
		respondError(w, http.StatusInternalServerError, "could not list sessions")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.store.ExportAllSessions()
	if err != nil {
		slog.Error("export results failed", "error", err)
		respondError(w, http.StatusInternalServerError, "could not export results")
		return
	}
	respondJSON(w, http.StatusOK, model.ResultsExport{
		ExportedAt: time.Now(),
		Sessions:   results,
	})
}

type controlRequest struct {
	Action        string `json:"action"`
	TimeRemaining int    `json:"time_remaining"`
}

// handleSessionControl lets a supervisor stop a session or override its
// remaining time mid-exam.
func (h *Handler) handleSessionControl(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, err := h.store.GetSessionBySessionID(sessionID)
	if err != nil {
		slog.Error("load session failed", "session_id", sessionID, "error", err)
		respondError(w, http.StatusInternalServerError, "could not load session")
		return
	}
	if sess == nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sup := model.SupervisorFromContext(r.Context())

	switch req.Action {
	case "emergency_stop":
		if !sess.State.Terminal() {
			sess.State = model.StateExamComplete
			now := time.Now()
			sess.CompletedAt = &now
		}
		h.dropGate(sessionID)
		slog.Info("session stopped by supervisor",
			"session_id", sessionID, "supervisor", sup.Username)

	case "update_time":
		if req.TimeRemaining < 0 {
			respondError(w, http.StatusBadRequest, "time_remaining must not be negative")
			return
		}
		sess.TimeRemaining = req.TimeRemaining
		slog.Info("session time updated by supervisor",
			"session_id", sessionID, "supervisor", sup.Username, "time_remaining", req.TimeRemaining)

	default:
		respondError(w, http.StatusBadRequest, "unknown action")
		return
	}

	if err := h.store.UpdateSession(*sess); err != nil {
		slog.Error("persist session control failed", "session_id", sessionID, "error", err)
		respondError(w, http.StatusInternalServerError, "could not update session")
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

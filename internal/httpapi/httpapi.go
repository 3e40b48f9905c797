// Package httpapi exposes the practice session controller as a JSON API.
//
// Every route resolves its session from the X-Learner-ID request header; a
// missing header runs the request against the shared anonymous session.
// Handlers translate between HTTP and [session.Controller] calls and hold no
// state of their own.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/7spvzk7dmv-jpg/listen-ES/internal/sampler"
	"github.com/7spvzk7dmv-jpg/listen-ES/internal/session"
)

// learnerHeader carries the learner identity. Anonymous when absent.
const learnerHeader = "X-Learner-ID"

// Handler serves the /api routes backed by a session manager.
type Handler struct {
	manager *session.Manager
}

// New creates a [Handler] on top of manager.
func New(manager *session.Manager) *Handler {
	return &Handler{manager: manager}
}

// Register adds all /api routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/state", h.State)
	mux.HandleFunc("POST /api/next", h.Next)
	mux.HandleFunc("POST /api/answer", h.Answer)
	mux.HandleFunc("POST /api/speech", h.Speech)
	mux.HandleFunc("POST /api/speak", h.Speak)
	mux.HandleFunc("POST /api/capture/start", h.CaptureStart)
	mux.HandleFunc("POST /api/capture/stop", h.CaptureStop)
	mux.HandleFunc("POST /api/dataset/toggle", h.ToggleDataset)
	mux.HandleFunc("POST /api/exam", h.ExamMode)
	mux.HandleFunc("POST /api/reveal", h.Reveal)
	mux.HandleFunc("POST /api/reset", h.Reset)
	mux.HandleFunc("GET /api/audio", h.Audio)
}

// State returns the full session snapshot.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.State())
}

// Next draws the next practice item.
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	item, err := c.Next(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// answerRequest is the body of POST /api/answer.
type answerRequest struct {
	Answer string `json:"answer"`
}

// Answer grades a typed translation against the current item.
func (h *Handler) Answer(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	attempt, err := c.SubmitAnswer(r.Context(), req.Answer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

// speechRequest is the body of POST /api/speech.
type speechRequest struct {
	Transcript string `json:"transcript"`
}

// Speech grades a spoken transcript (recognised client-side) against the
// current item's source text.
func (h *Handler) Speech(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var req speechRequest
	if !decodeBody(w, r, &req) {
		return
	}
	attempt, err := c.SubmitSpeech(r.Context(), req.Transcript)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

// Speak starts background synthesis of the current item. The audio itself is
// fetched via GET /api/audio; this route only warms the synthesis cache and
// cancels any prior in-flight synthesis.
func (h *Handler) Speak(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := c.Speak(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// CaptureStart opens a speech-recognition session for the current item,
// superseding any capture already in flight.
func (h *Handler) CaptureStart(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := c.StartCapture(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// CaptureStop cancels the live capture, if any.
func (h *Handler) CaptureStop(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	c.StopCapture()
	w.WriteHeader(http.StatusNoContent)
}

// ToggleDataset switches to the next dataset in the ring and returns the
// refreshed snapshot.
func (h *Handler) ToggleDataset(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	if _, err := c.ToggleDataset(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c.State())
}

// examRequest is the body of POST /api/exam.
type examRequest struct {
	On bool `json:"on"`
}

// ExamMode switches exam mode on or off.
func (h *Handler) ExamMode(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var req examRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c.SetExamMode(r.Context(), req.On)
	writeJSON(w, http.StatusOK, c.State())
}

// Reveal uncovers the current item's source and reference.
func (h *Handler) Reveal(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	c.Reveal()
	writeJSON(w, http.StatusOK, c.State())
}

// Reset restores level, counters and weights to their defaults.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	c.ResetProgress(r.Context())
	writeJSON(w, http.StatusOK, c.State())
}

// Audio synthesises the current item and returns the clip.
func (h *Handler) Audio(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	audio, mime, err := c.Audio(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	if _, err := w.Write(audio); err != nil {
		slog.Debug("audio write aborted", "err", err)
	}
}

// session resolves the controller for the request's learner. A failed session
// bootstrap (usually an unreachable dataset source) is reported as 502.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Controller, bool) {
	c, err := h.manager.Get(r.Context(), r.Header.Get(learnerHeader))
	if err != nil {
		slog.Error("session bootstrap failed", "err", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "session unavailable: " + err.Error()})
		return nil, false
	}
	return c, true
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error string `json:"error"`
}

// decodeBody parses the JSON request body into dst. An empty body leaves dst
// at its zero value. Reports whether decoding succeeded.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}

// writeError maps controller errors to HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNoCurrentItem):
		status = http.StatusConflict
	case errors.Is(err, session.ErrSpeechUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, sampler.ErrEmptyPool):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response write aborted", "err", err)
	}
}

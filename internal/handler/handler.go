// Package handler exposes the exam service as a JSON HTTP API.
package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/quizforge/adexam/internal/exam"
	"github.com/quizforge/adexam/internal/i18n"
	"github.com/quizforge/adexam/internal/material"
	"github.com/quizforge/adexam/internal/model"
	"github.com/quizforge/adexam/internal/store"
	"github.com/quizforge/adexam/internal/vecindex"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	engine    *exam.Engine
	materials *material.Service
	index     *vecindex.Index
}

// New creates a new Handler.
func New(s *store.Store, e *exam.Engine, m *material.Service, idx *vecindex.Index) *Handler {
	return &Handler{store: s, engine: e, materials: m, index: idx}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(api chi.Router) {
		api.Post("/exam/start", h.handleStart)
		api.Post("/exam/answer", h.handleAnswer)
		api.Post("/exam/end", h.handleEnd)
		api.Get("/attempts/{attemptID}", h.handleAttempt)
		api.Get("/students/{studentID}/attempts", h.handleStudentAttempts)

		api.Route("/admin", func(admin chi.Router) {
			admin.Get("/departments", h.handleListDepartments)
			admin.Post("/departments", h.handleCreateDepartment)
			admin.Get("/configs", h.handleListConfigs)
			admin.Put("/configs", h.handleUpsertConfig)
			admin.Get("/materials", h.handleListMaterials)
			admin.Post("/materials", h.handleCreateMaterial)
			admin.Delete("/materials/{materialID}", h.handleDeleteMaterial)
			admin.Post("/reindex", h.handleReindex)
			admin.Get("/index/stats", h.handleIndexStats)
		})
	})
}

type startRequest struct {
	StudentID int64 `json:"student_id"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.engine.Start(r.Context(), req.StudentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type answerRequest struct {
	AttemptID  int64  `json:"attempt_id"`
	QuestionID int64  `json:"question_id"`
	Answer     string `json:"answer"`
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.engine.SubmitAnswer(r.Context(), req.AttemptID, req.QuestionID, req.Answer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type endRequest struct {
	AttemptID int64 `json:"attempt_id"`
}

func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	var req endRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	attempt, err := h.engine.End(r.Context(), req.AttemptID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attemptProjection(r, attempt))
}

// attemptResponse decorates an attempt with localized display labels.
type attemptResponse struct {
	model.Attempt
	EndReasonLabel string `json:"end_reason_label,omitempty"`
	RatingLabel    string `json:"rating_label,omitempty"`
}

func attemptProjection(r *http.Request, a model.Attempt) attemptResponse {
	res := attemptResponse{Attempt: a}
	if a.EndReason != nil {
		res.EndReasonLabel = i18n.EndReasonLabel(r.Context(), *a.EndReason)
	}
	if a.Rating != nil {
		res.RatingLabel = i18n.RatingLabel(r.Context(), *a.Rating)
	}
	return res
}

type attemptViewResponse struct {
	Attempt   attemptResponse      `json:"attempt"`
	Questions []model.QuestionView `json:"questions"`
}

func (h *Handler) handleAttempt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "attemptID")
	if !ok {
		return
	}
	view, err := h.engine.View(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attemptViewResponse{
		Attempt:   attemptProjection(r, view.Attempt),
		Questions: view.Questions,
	})
}

func (h *Handler) handleStudentAttempts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "studentID")
	if !ok {
		return
	}
	attempts, err := h.store.ListAttempts(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]attemptResponse, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, attemptProjection(r, a))
	}
	writeJSON(w, http.StatusOK, out)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{
		Error:     err.Error(),
		Retryable: model.Retryable(err),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrAttemptAlreadyOpen),
		errors.Is(err, model.ErrQuestionAlreadyAnswered),
		errors.Is(err, model.ErrAttemptNotOpen):
		return http.StatusConflict
	case errors.Is(err, model.ErrAttemptLimitExceeded):
		return http.StatusForbidden
	case errors.Is(err, model.ErrStudentNotFound),
		errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConfigurationMissing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrGenerationFailed),
		errors.Is(err, model.ErrGradingFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

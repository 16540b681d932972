package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/quizforge/adexam/internal/model"
	"github.com/quizforge/adexam/internal/vecindex"
)

func (h *Handler) handleListDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := h.store.ListDepartments()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, departments)
}

func (h *Handler) handleCreateDepartment(w http.ResponseWriter, r *http.Request) {
	var dept model.Department
	if !decodeJSON(w, r, &dept) {
		return
	}
	if dept.College == "" || dept.Name == "" {
		http.Error(w, "college and name are required", http.StatusBadRequest)
		return
	}
	id, err := h.store.CreateDepartment(dept)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.store.GetDepartment(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.store.ListConfigs()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, configs)
}

func (h *Handler) handleUpsertConfig(w http.ResponseWriter, r *http.Request) {
	var cfg model.ExamConfig
	if !decodeJSON(w, r, &cfg) {
		return
	}
	if cfg.DepartmentID == 0 || cfg.GradeLevel == 0 {
		http.Error(w, "department_id and grade_level are required", http.StatusBadRequest)
		return
	}
	id, err := h.store.UpsertConfig(cfg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stored, err := h.store.GetConfig(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (h *Handler) handleListMaterials(w http.ResponseWriter, r *http.Request) {
	deptID, _ := strconv.ParseInt(r.URL.Query().Get("department_id"), 10, 64)
	grade, _ := strconv.Atoi(r.URL.Query().Get("grade_level"))
	materials, err := h.store.ListMaterials(deptID, grade)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, materials)
}

type createMaterialRequest struct {
	DepartmentID int64  `json:"department_id"`
	GradeLevel   int    `json:"grade_level"`
	Title        string `json:"title"`
	Text         string `json:"text"`
}

func (h *Handler) handleCreateMaterial(w http.ResponseWriter, r *http.Request) {
	var req createMaterialRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DepartmentID == 0 || req.GradeLevel == 0 || req.Title == "" {
		http.Error(w, "department_id, grade_level and title are required", http.StatusBadRequest)
		return
	}
	m, err := h.materials.Ingest(r.Context(), req.DepartmentID, req.GradeLevel, req.Title, req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) handleDeleteMaterial(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "materialID")
	if !ok {
		return
	}
	if err := h.materials.Delete(id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reindexRequest struct {
	DepartmentID int64 `json:"department_id,omitempty"`
	GradeLevel   int   `json:"grade_level,omitempty"`
	Force        bool  `json:"force,omitempty"`
}

// handleReindex kicks off re-embedding in the background. The request
// context ends with the response, so the job runs on its own context.
func (h *Handler) handleReindex(w http.ResponseWriter, r *http.Request) {
	var req reindexRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()
		n, err := h.index.Reindex(ctx, vecindex.ReindexOptions{
			DepartmentID: req.DepartmentID,
			GradeLevel:   req.GradeLevel,
			Force:        req.Force,
		})
		if err != nil {
			slog.Error("background reindex failed", "error", err)
			return
		}
		slog.Info("background reindex finished", "chunks", n)
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reindex started"})
}

func (h *Handler) handleIndexStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.index.Stats()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

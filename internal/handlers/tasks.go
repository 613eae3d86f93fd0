package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/benvon/smart-tasks/internal/consolidation"
	"github.com/benvon/smart-tasks/internal/models"
	"github.com/benvon/smart-tasks/internal/taskstore"
	"github.com/gorilla/mux"
)

// TaskReader is the read side of the task store
type TaskReader interface {
	Get(ctx context.Context, id string) (*models.Task, error)
	ByThread(ctx context.Context, threadID string) []*models.Task
}

// StatsProvider reports comparator counters
type StatsProvider interface {
	Stats() consolidation.ComparatorStats
}

// TaskHandler serves read-only task views for operators
type TaskHandler struct {
	tasks TaskReader
	stats StatsProvider
}

// NewTaskHandler creates a task handler; stats may be nil
func NewTaskHandler(tasks TaskReader, stats StatsProvider) *TaskHandler {
	return &TaskHandler{tasks: tasks, stats: stats}
}

// RegisterRoutes registers the task routes on r
func (h *TaskHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/tasks/{id}", h.GetTask).Methods(http.MethodGet)
	r.HandleFunc("/threads/{threadID}/tasks", h.ListThreadTasks).Methods(http.MethodGet)
	r.HandleFunc("/statsz", h.Stats).Methods(http.MethodGet)
}

// GetTask handles GET /tasks/{id}
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, taskstore.ErrNotFound) {
		respondJSONError(w, http.StatusNotFound, "not_found", "task not found")
		return
	}
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// ListThreadTasks handles GET /threads/{threadID}/tasks, returning the thread's open tasks
func (h *TaskHandler) ListThreadTasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.tasks.ByThread(r.Context(), mux.Vars(r)["threadID"])
	respondJSON(w, http.StatusOK, tasks)
}

// Stats handles GET /statsz
func (h *TaskHandler) Stats(w http.ResponseWriter, _ *http.Request) {
	if h.stats == nil {
		respondJSONError(w, http.StatusNotFound, "not_found", "stats not available")
		return
	}
	s := h.stats.Stats()
	respondJSON(w, http.StatusOK, map[string]int64{
		"cache_hits":       s.CacheHits,
		"short_circuits":   s.ShortCircuits,
		"classifier_calls": s.ClassifierCalls,
		"fallbacks":        s.Fallbacks,
	})
}

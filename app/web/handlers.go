package web

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/taskhook/app/store"
)

// handleListTasks returns all tasks owned by the caller
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		s.writeJSONError(w, http.StatusUnauthorized, "missing token")
		return
	}

	tasks, err := s.store.ListTasks(r.Context(), user.ID)
	if err != nil {
		log.Printf("[ERROR] failed to list tasks for %s: %v", user.ID, err)
		s.writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := make([]APITask, 0, len(tasks))
	for _, task := range tasks {
		resp = append(resp, s.toAPITask(task))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleCreateTask creates a task owned by the caller, with defaults for
// absent fields: title "New Task", schedule "manual", enabled false
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		s.writeJSONError(w, http.StatusUnauthorized, "missing token")
		return
	}

	var req struct {
		Title    string `json:"title"`
		Schedule string `json:"schedule"`
		Enabled  bool   `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		req.Title = "New Task"
	}
	if req.Schedule == "" {
		req.Schedule = "manual"
	}

	task, err := s.store.CreateTask(r.Context(), user.ID, req.Title, req.Schedule, req.Enabled)
	if err != nil {
		log.Printf("[ERROR] failed to create task for %s: %v", user.ID, err)
		s.writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	log.Printf("[INFO] created task %s for user %s", task.ID, user.ID)
	s.writeJSON(w, http.StatusOK, s.toAPITask(task))
}

// handlePatchTask merges supplied fields into the caller's task. A task owned
// by someone else is reported as not found.
func (s *Server) handlePatchTask(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		s.writeJSONError(w, http.StatusUnauthorized, "missing token")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		s.writeJSONError(w, http.StatusBadRequest, "task id required")
		return
	}

	var patch store.TaskPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	task, err := s.store.PatchTask(r.Context(), user.ID, id, patch)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeJSONError(w, http.StatusNotFound, "task not found")
			return
		}
		log.Printf("[ERROR] failed to patch task %s for %s: %v", id, user.ID, err)
		s.writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, s.toAPITask(task))
}

// handleDeleteTask removes the caller's task
func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		s.writeJSONError(w, http.StatusUnauthorized, "missing token")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		s.writeJSONError(w, http.StatusBadRequest, "task id required")
		return
	}

	if err := s.store.DeleteTask(r.Context(), user.ID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeJSONError(w, http.StatusNotFound, "task not found")
			return
		}
		log.Printf("[ERROR] failed to delete task %s for %s: %v", id, user.ID, err)
		s.writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	log.Printf("[INFO] deleted task %s for user %s", id, user.ID)
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleRegisterWebhook registers an outbound webhook endpoint for the caller.
// The url is stored as given, reachability is not checked.
func (s *Server) handleRegisterWebhook(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		s.writeJSONError(w, http.StatusUnauthorized, "missing token")
		return
	}

	var req struct {
		URL   string `json:"url"`
		Event string `json:"event"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		s.writeJSONError(w, http.StatusBadRequest, "url required")
		return
	}
	if req.Event == "" {
		req.Event = "task.fired"
	}

	wh, err := s.store.CreateWebhook(r.Context(), user.ID, req.URL, req.Event)
	if err != nil {
		log.Printf("[ERROR] failed to create webhook for %s: %v", user.ID, err)
		s.writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	log.Printf("[INFO] registered webhook %s for user %s", wh.ID, user.ID)
	s.writeJSON(w, http.StatusOK, toAPIWebhook(wh))
}

// handleListWebhooks returns all webhooks owned by the caller
func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		s.writeJSONError(w, http.StatusUnauthorized, "missing token")
		return
	}

	webhooks, err := s.store.ListWebhooks(r.Context(), user.ID)
	if err != nil {
		log.Printf("[ERROR] failed to list webhooks for %s: %v", user.ID, err)
		s.writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := make([]APIWebhook, 0, len(webhooks))
	for _, wh := range webhooks {
		resp = append(resp, toAPIWebhook(wh))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleTestWebhook produces a simulated delivery for the caller's webhook,
// no outbound request is made
func (s *Server) handleTestWebhook(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		s.writeJSONError(w, http.StatusUnauthorized, "missing token")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		s.writeJSONError(w, http.StatusBadRequest, "webhook id required")
		return
	}

	wh, err := s.store.FindWebhook(r.Context(), user.ID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeJSONError(w, http.StatusNotFound, "webhook not found")
			return
		}
		log.Printf("[ERROR] failed to find webhook %s for %s: %v", id, user.ID, err)
		s.writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	result, err := s.dispatcher.Dispatch(r.Context(), wh.URL, wh.Event)
	if err != nil {
		log.Printf("[ERROR] failed to dispatch test for webhook %s: %v", id, err)
		s.writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

package web

import (
	"net/http"
	"os"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/umputun/taskhook/app/store"
)

// APIUser is a user in API responses, without the password hash
type APIUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Plan      string    `json:"plan"`
	CreatedAt time.Time `json:"createdAt"`
}

// APIAuthResponse is the JSON response for register and login
type APIAuthResponse struct {
	Token string  `json:"token"`
	User  APIUser `json:"user"`
}

// APITask is a task in API responses. NextRun is computed when the schedule
// label parses as a cron expression, omitted otherwise.
type APITask struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Title     string    `json:"title"`
	Schedule  string    `json:"schedule"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
	NextRun   time.Time `json:"next_run,omitzero"`
}

// APIWebhook is a webhook in API responses
type APIWebhook struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	URL       string    `json:"url"`
	Event     string    `json:"event"`
	CreatedAt time.Time `json:"createdAt"`
}

// APIStatusResponse is the JSON response for /api/v1/status
type APIStatusResponse struct {
	Version       string    `json:"version"`
	Backend       string    `json:"backend"`
	Hostname      string    `json:"hostname"`
	UptimeSeconds int       `json:"uptime_seconds"`
	MemoryUsedPct float64   `json:"memory_used_pct,omitzero"`
	LoadAvg       float64   `json:"load_avg,omitzero"`
	Timestamp     time.Time `json:"timestamp"`
}

// toAPIUser converts store.User to APIUser, dropping the password hash
func toAPIUser(u store.User) APIUser {
	return APIUser{ID: u.ID, Email: u.Email, Name: u.Name, Plan: u.Plan, CreatedAt: u.CreatedAt}
}

// toAPITask converts store.Task to APITask, computing NextRun for
// cron-shaped schedule labels
func (s *Server) toAPITask(task store.Task) APITask {
	api := APITask{
		ID:        task.ID,
		OwnerID:   task.OwnerID,
		Title:     task.Title,
		Schedule:  task.Schedule,
		Enabled:   task.Enabled,
		CreatedAt: task.CreatedAt,
	}
	if sched, err := s.parser.Parse(task.Schedule); err == nil {
		api.NextRun = sched.Next(time.Now())
	}
	return api
}

// toAPIWebhook converts store.Webhook to APIWebhook
func toAPIWebhook(wh store.Webhook) APIWebhook {
	return APIWebhook{ID: wh.ID, OwnerID: wh.OwnerID, URL: wh.URL, Event: wh.Event, CreatedAt: wh.CreatedAt}
}

// handleAPIStatus returns service info - designed for CLI/jq consumption
func (s *Server) handleAPIStatus(w http.ResponseWriter, _ *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		log.Printf("[WARN] failed to get hostname: %v", err)
	}

	resp := APIStatusResponse{
		Version:       s.version,
		Backend:       s.storeKind,
		Hostname:      hostname,
		UptimeSeconds: int(time.Since(s.startTime).Seconds()),
		Timestamp:     time.Now(),
	}

	// system stats are best effort, skipped on platforms where they fail
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemoryUsedPct = vm.UsedPercent
	} else {
		log.Printf("[WARN] failed to get memory stats: %v", err)
	}
	if avg, err := load.Avg(); err == nil {
		resp.LoadAvg = avg.Load1
	} else {
		log.Printf("[WARN] failed to get load average: %v", err)
	}

	s.writeJSON(w, http.StatusOK, resp)
}

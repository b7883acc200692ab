package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// document is the persisted layout of the embedded store, a single JSON file
// with three ordered sequences
type document struct {
	Users    []User    `json:"users"`
	Tasks    []Task    `json:"tasks"`
	Webhooks []Webhook `json:"webhooks"`
}

// Embedded implements Interface with a single JSON file on disk. Every operation
// reads the full document, mutates it in memory and writes it back, there is no
// caching between calls. The read-modify-write cycle is serialized with a mutex
// to prevent lost updates under concurrent requests.
type Embedded struct {
	path string
	mu   sync.Mutex
	now  func() time.Time // for tests
	uid  func() string    // id generator, for tests
}

// NewEmbedded creates an embedded store backed by the given file, creating the
// file with an empty document if it doesn't exist yet
func NewEmbedded(path string) (*Embedded, error) {
	e := &Embedded{path: path, now: time.Now, uid: uuid.NewString}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to make store directory for %q: %w", path, err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := e.save(&document{Users: []User{}, Tasks: []Task{}, Webhooks: []Webhook{}}); err != nil {
			return nil, fmt.Errorf("failed to initialize store file %q: %w", path, err)
		}
		return e, nil
	}

	// verify the existing file is a loadable document
	if _, err := e.load(); err != nil {
		return nil, fmt.Errorf("failed to load store file %q: %w", path, err)
	}
	return e, nil
}

// FindUserByEmail scans users for an exact email match, case-sensitive as stored
func (e *Embedded) FindUserByEmail(_ context.Context, email string) (User, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, err := e.load()
	if err != nil {
		return User{}, err
	}
	for _, u := range doc.Users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

// CreateUser appends a new user with a generated id and default free plan.
// Email uniqueness is the caller's responsibility, see ErrDuplicateEmail.
func (e *Embedded) CreateUser(_ context.Context, email, passwordHash, name string) (User, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, err := e.load()
	if err != nil {
		return User{}, err
	}
	user := User{
		ID:           e.uid(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Plan:         "free",
		CreatedAt:    e.now().UTC(),
	}
	doc.Users = append(doc.Users, user)
	if err := e.save(doc); err != nil {
		return User{}, err
	}
	return user, nil
}

// ListTasks returns tasks owned by ownerID in natural storage order
func (e *Embedded) ListTasks(_ context.Context, ownerID string) ([]Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, err := e.load()
	if err != nil {
		return nil, err
	}
	tasks := []Task{}
	for _, t := range doc.Tasks {
		if t.OwnerID == ownerID {
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// CreateTask appends a new task owned by ownerID
func (e *Embedded) CreateTask(_ context.Context, ownerID, title, schedule string, enabled bool) (Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, err := e.load()
	if err != nil {
		return Task{}, err
	}
	task := Task{
		ID:        e.uid(),
		OwnerID:   ownerID,
		Title:     title,
		Schedule:  schedule,
		Enabled:   enabled,
		CreatedAt: e.now().UTC(),
	}
	doc.Tasks = append(doc.Tasks, task)
	if err := e.save(doc); err != nil {
		return Task{}, err
	}
	return task, nil
}

// PatchTask merges non-nil patch fields into the task with the given id owned
// by ownerID. Returns ErrNotFound if no such task, including tasks owned by
// someone else.
func (e *Embedded) PatchTask(_ context.Context, ownerID, id string, patch TaskPatch) (Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, err := e.load()
	if err != nil {
		return Task{}, err
	}
	for i, t := range doc.Tasks {
		if t.ID != id || t.OwnerID != ownerID {
			continue
		}
		if patch.Title != nil {
			t.Title = *patch.Title
		}
		if patch.Schedule != nil {
			t.Schedule = *patch.Schedule
		}
		if patch.Enabled != nil {
			t.Enabled = *patch.Enabled
		}
		doc.Tasks[i] = t
		if err := e.save(doc); err != nil {
			return Task{}, err
		}
		return t, nil
	}
	return Task{}, ErrNotFound
}

// DeleteTask removes the task with the given id owned by ownerID,
// ErrNotFound if absent or owned by someone else
func (e *Embedded) DeleteTask(_ context.Context, ownerID, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, err := e.load()
	if err != nil {
		return err
	}
	for i, t := range doc.Tasks {
		if t.ID == id && t.OwnerID == ownerID {
			doc.Tasks = append(doc.Tasks[:i], doc.Tasks[i+1:]...)
			return e.save(doc)
		}
	}
	return ErrNotFound
}

// CreateWebhook appends a new webhook owned by ownerID
func (e *Embedded) CreateWebhook(_ context.Context, ownerID, url, event string) (Webhook, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, err := e.load()
	if err != nil {
		return Webhook{}, err
	}
	wh := Webhook{
		ID:        e.uid(),
		OwnerID:   ownerID,
		URL:       url,
		Event:     event,
		CreatedAt: e.now().UTC(),
	}
	doc.Webhooks = append(doc.Webhooks, wh)
	if err := e.save(doc); err != nil {
		return Webhook{}, err
	}
	return wh, nil
}

// ListWebhooks returns webhooks owned by ownerID in natural storage order
func (e *Embedded) ListWebhooks(_ context.Context, ownerID string) ([]Webhook, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, err := e.load()
	if err != nil {
		return nil, err
	}
	webhooks := []Webhook{}
	for _, w := range doc.Webhooks {
		if w.OwnerID == ownerID {
			webhooks = append(webhooks, w)
		}
	}
	return webhooks, nil
}

// FindWebhook returns the webhook with the given id owned by ownerID,
// ErrNotFound if absent or owned by someone else
func (e *Embedded) FindWebhook(_ context.Context, ownerID, id string) (Webhook, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, err := e.load()
	if err != nil {
		return Webhook{}, err
	}
	for _, w := range doc.Webhooks {
		if w.ID == id && w.OwnerID == ownerID {
			return w, nil
		}
	}
	return Webhook{}, ErrNotFound
}

// Close is a no-op for the embedded store, nothing is held open between calls
func (e *Embedded) Close() error { return nil }

// load reads and decodes the full document from disk
func (e *Embedded) load() (*document, error) {
	data, err := os.ReadFile(e.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}
	doc := &document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to decode store file: %w", err)
	}
	return doc, nil
}

// save encodes and writes the full document back to disk. The write goes
// through a temp file renamed over the target, a crash mid-write can't leave
// a truncated document behind.
func (e *Embedded) save(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store document: %w", err)
	}
	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmp, e.path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

// Package store provides persistence for users, tasks and webhooks behind a single
// interface with two interchangeable backends: an embedded single-file JSON store
// and an external MongoDB store. Callers never see which backend is active,
// all records carry normalized string identifiers regardless of the backend.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound returned when a record is absent or not owned by the caller.
// Ownership misses are deliberately indistinguishable from absence.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail returned on attempt to register an already present email.
// The check is performed by the caller via FindUserByEmail before CreateUser,
// the store itself doesn't enforce uniqueness in the embedded backend.
var ErrDuplicateEmail = errors.New("email already registered")

// User represents a registered account. PasswordHash is persisted but stripped
// from API responses by the web layer.
type User struct {
	ID           string    `json:"id" bson:"-"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"passwordHash" bson:"passwordHash"`
	Name         string    `json:"name" bson:"name"`
	Plan         string    `json:"plan" bson:"plan"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

// Task represents a named task owned by a single user. Schedule is a stored
// label, not an active trigger, nothing in the service executes tasks.
type Task struct {
	ID        string    `json:"id" bson:"-"`
	OwnerID   string    `json:"ownerId" bson:"ownerId"`
	Title     string    `json:"title" bson:"title"`
	Schedule  string    `json:"schedule" bson:"schedule"`
	Enabled   bool      `json:"enabled" bson:"enabled"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Webhook represents an outbound notification endpoint owned by a single user
type Webhook struct {
	ID        string    `json:"id" bson:"-"`
	OwnerID   string    `json:"ownerId" bson:"ownerId"`
	URL       string    `json:"url" bson:"url"`
	Event     string    `json:"event" bson:"event"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// TaskPatch holds a partial task update, nil fields are left untouched
type TaskPatch struct {
	Title    *string `json:"title"`
	Schedule *string `json:"schedule"`
	Enabled  *bool   `json:"enabled"`
}

// Interface defines storage operations shared by both backends. Every task and
// webhook operation is scoped by ownerID, records owned by others are reported
// as ErrNotFound. Identifiers are immutable once assigned and never reused.
type Interface interface {
	FindUserByEmail(ctx context.Context, email string) (User, error)
	CreateUser(ctx context.Context, email, passwordHash, name string) (User, error)

	ListTasks(ctx context.Context, ownerID string) ([]Task, error)
	CreateTask(ctx context.Context, ownerID, title, schedule string, enabled bool) (Task, error)
	PatchTask(ctx context.Context, ownerID, id string, patch TaskPatch) (Task, error)
	DeleteTask(ctx context.Context, ownerID, id string) error

	CreateWebhook(ctx context.Context, ownerID, url, event string) (Webhook, error)
	ListWebhooks(ctx context.Context, ownerID string) ([]Webhook, error)
	FindWebhook(ctx context.Context, ownerID, id string) (Webhook, error)

	Close() error
}

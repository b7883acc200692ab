package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExternal_MalformedIDs(t *testing.T) {
	// malformed ids are reported as not found, backend id shapes never leak
	e := &External{}
	ctx := context.Background()

	_, err := e.PatchTask(ctx, "owner-1", "not-a-hex-id", TaskPatch{})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, e.DeleteTask(ctx, "owner-1", "not-a-hex-id"), ErrNotFound)

	_, err = e.FindWebhook(ctx, "owner-1", "not-a-hex-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewExternal_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := NewExternal(ctx, "mongodb://127.0.0.1:1", "taskhook_test")
	assert.Error(t, err)
}

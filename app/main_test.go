package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func Test_setupLogs(t *testing.T) {
	saved := opts
	defer func() { opts = saved }()

	t.Run("without file logging", func(t *testing.T) {
		opts.Log.Enabled = false
		writer := setupLogs()
		assert.Equal(t, os.Stdout, writer)
	})

	t.Run("with file logging", func(t *testing.T) {
		opts.Log.Enabled = true
		opts.Log.Filename = filepath.Join(t.TempDir(), "taskhook.log")
		opts.Log.MaxSize = 10
		opts.Log.MaxBackups = 3
		opts.Log.MaxAge = 5
		opts.Log.EnabledCompress = true

		writer := setupLogs()
		fileLogger, ok := writer.(*lumberjack.Logger)
		require.True(t, ok, "expected lumberjack logger")
		assert.Equal(t, opts.Log.Filename, fileLogger.Filename)
		assert.Equal(t, 10, fileLogger.MaxSize)
		assert.Equal(t, 3, fileLogger.MaxBackups)
		assert.Equal(t, 5, fileLogger.MaxAge)
		assert.True(t, fileLogger.Compress)
	})
}

func Test_makeStore(t *testing.T) {
	saved := opts
	defer func() { opts = saved }()

	t.Run("embedded by default", func(t *testing.T) {
		opts.Store.MongoURL = ""
		opts.Store.File = filepath.Join(t.TempDir(), "store.json")

		dataStore, kind, err := makeStore(context.Background())
		require.NoError(t, err)
		defer func() { require.NoError(t, dataStore.Close()) }()

		assert.Equal(t, "embedded", kind)
		assert.FileExists(t, opts.Store.File)
	})

	t.Run("embedded fails on bad path", func(t *testing.T) {
		opts.Store.MongoURL = ""
		opts.Store.File = filepath.Join(t.TempDir(), "occupied")
		require.NoError(t, os.MkdirAll(opts.Store.File, 0o700)) // a directory where the file should be

		_, _, err := makeStore(context.Background())
		assert.Error(t, err)
	})

	t.Run("fallback to embedded on dead mongo", func(t *testing.T) {
		opts.Store.MongoURL = "mongodb://127.0.0.1:1"
		opts.Store.MongoDB = "taskhook"
		opts.Store.ConnectAttempts = 1
		opts.Store.ConnectTimeout = 200 * time.Millisecond
		opts.Store.File = filepath.Join(t.TempDir(), "store.json")

		dataStore, kind, err := makeStore(context.Background())
		require.NoError(t, err)
		defer func() { require.NoError(t, dataStore.Close()) }()

		assert.Equal(t, "embedded", kind)
		assert.FileExists(t, opts.Store.File)
	})

	t.Run("fallback after multiple connect attempts", func(t *testing.T) {
		opts.Store.MongoURL = "mongodb://127.0.0.1:1"
		opts.Store.MongoDB = "taskhook"
		opts.Store.ConnectAttempts = 2
		opts.Store.ConnectTimeout = 100 * time.Millisecond
		opts.Store.File = filepath.Join(t.TempDir(), "store.json")

		started := time.Now()
		dataStore, kind, err := makeStore(context.Background())
		require.NoError(t, err)
		defer func() { require.NoError(t, dataStore.Close()) }()

		assert.Equal(t, "embedded", kind)
		// second attempt runs after the fixed delay between retries
		assert.GreaterOrEqual(t, time.Since(started), time.Second)
	})
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/umputun/taskhook/app/auth"
	"github.com/umputun/taskhook/app/notify"
	"github.com/umputun/taskhook/app/store"
	"github.com/umputun/taskhook/app/web"
)

var opts struct {
	Address  string        `short:"a" long:"address" env:"TASKHOOK_ADDRESS" default:":8080" description:"listening address"`
	Secret   string        `long:"secret" env:"TASKHOOK_SECRET" required:"true" description:"jwt signing secret"`
	TokenTTL time.Duration `long:"token-ttl" env:"TASKHOOK_TOKEN_TTL" default:"168h" description:"bearer token lifetime"`

	Store struct {
		File            string        `long:"file" env:"FILE" default:"var/taskhook.json" description:"embedded store file"`
		MongoURL        string        `long:"mongo-url" env:"MONGO_URL" description:"mongo connection url, empty to use embedded store"`
		MongoDB         string        `long:"mongo-db" env:"MONGO_DB" default:"taskhook" description:"mongo database name"`
		ConnectAttempts int           `long:"connect-attempts" env:"CONNECT_ATTEMPTS" default:"3" description:"mongo connection attempts before fallback"`
		ConnectTimeout  time.Duration `long:"connect-timeout" env:"CONNECT_TIMEOUT" default:"5s" description:"mongo connection timeout per attempt"`
	} `group:"store" namespace:"store" env-namespace:"TASKHOOK_STORE"`

	Log struct {
		Enabled         bool   `long:"enabled" env:"ENABLED" description:"enable file logging"`
		Filename        string `long:"file" env:"FILE" default:"logs/taskhook.log" description:"log file name"`
		MaxSize         int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"max log size in megabytes"`
		MaxAge          int    `long:"max-age" env:"MAX_AGE" default:"0" description:"max log age in days"`
		MaxBackups      int    `long:"max-backups" env:"MAX_BACKUPS" default:"7" description:"max number of rotated files"`
		EnabledCompress bool   `long:"enabled-compress" env:"ENABLED_COMPRESS" description:"enable compression of rotated files"`
	} `group:"log" namespace:"log" env-namespace:"TASKHOOK_LOG"`

	Dbg bool `long:"dbg" env:"TASKHOOK_DEBUG" description:"debug mode"`
}

var revision = "unknown"

func main() {
	fmt.Printf("taskhook %s\n", revision)

	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(2)
	}
	setupLogs()

	defer func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	signals(cancel) // handle SIGQUIT and SIGTERM

	dataStore, storeKind, err := makeStore(ctx)
	if err != nil {
		log.Printf("[ERROR] failed to create store: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := dataStore.Close(); err != nil {
			log.Printf("[WARN] failed to close store: %v", err)
		}
	}()
	log.Printf("[INFO] using %s store", storeKind)

	srv, err := web.New(web.Config{
		Store:      dataStore,
		Auth:       auth.NewService(opts.Secret, opts.TokenTTL),
		Dispatcher: notify.NewSimulator(),
		Version:    revision,
		StoreKind:  storeKind,
	})
	if err != nil {
		log.Printf("[ERROR] failed to create web server: %v", err)
		os.Exit(1)
	}

	if err := srv.Run(ctx, opts.Address); err != nil {
		log.Printf("[ERROR] web server terminated: %v", err)
		os.Exit(1)
	}
}

// makeStore selects the storage backend. With a mongo url configured it tries
// the external store with bounded retries and falls back to the embedded store
// if the connection can't be established. The fallback is logged explicitly,
// a dead mongo should never crash the service or pass silently.
func makeStore(ctx context.Context) (store.Interface, string, error) {
	if opts.Store.MongoURL == "" {
		embedded, err := store.NewEmbedded(opts.Store.File)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create embedded store: %w", err)
		}
		return embedded, "embedded", nil
	}

	var external *store.External
	connect := func() error {
		connCtx, cancel := context.WithTimeout(ctx, opts.Store.ConnectTimeout)
		defer cancel()
		var e error
		external, e = store.NewExternal(connCtx, opts.Store.MongoURL, opts.Store.MongoDB)
		return e
	}

	if err := repeater.NewDefault(opts.Store.ConnectAttempts, time.Second).Do(ctx, connect); err != nil {
		log.Printf("[WARN] external store unavailable, falling back to embedded store: %v", err)
		embedded, embErr := store.NewEmbedded(opts.Store.File)
		if embErr != nil {
			return nil, "", fmt.Errorf("failed to create fallback embedded store: %w", embErr)
		}
		return embedded, "embedded", nil
	}
	return external, "external", nil
}

// setupLogs configures lgr and returns the active writer, a rotated file
// through lumberjack when file logging is enabled and stdout otherwise
func setupLogs() io.Writer {
	logOpts := []log.Option{log.Msec, log.LevelBraces, log.StackTraceOnError}
	if opts.Dbg {
		logOpts = []log.Option{log.Debug, log.CallerFile, log.CallerFunc, log.Msec, log.LevelBraces, log.StackTraceOnError}
	}

	if !opts.Log.Enabled {
		log.Setup(logOpts...)
		return os.Stdout
	}

	fileLogger := &lumberjack.Logger{
		Filename:   opts.Log.Filename,
		MaxSize:    opts.Log.MaxSize,
		MaxBackups: opts.Log.MaxBackups,
		MaxAge:     opts.Log.MaxAge,
		Compress:   opts.Log.EnabledCompress,
	}
	logOpts = append(logOpts, log.Out(io.MultiWriter(os.Stdout, fileLogger)))
	log.Setup(logOpts...)
	return fileLogger
}

func signals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	go func() {
		stacktrace := make([]byte, 8192)
		for sig := range sigChan {
			if sig == syscall.SIGQUIT { // dump stacktrace on SIGQUIT
				length := runtime.Stack(stacktrace, true)
				fmt.Println(string(stacktrace[:length]))
				continue
			}
			log.Printf("[WARN] signal %v received, terminating", sig)
			cancel()
		}
	}()
	signal.Notify(sigChan, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
}

package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gatekeep.org/internal/access"
	"gatekeep.org/internal/httpapi"
	"gatekeep.org/internal/obs"
	"gatekeep.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	// Local overrides; missing file is fine.
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("GATEKEEP_COMMIT"))

	var (
		store access.Store
		db    *sql.DB
	)
	if dsn := os.Getenv("GATEKEEP_PG_DSN"); dsn != "" {
		var opts []pg.Option
		if envBool("GATEKEEP_CASE_INSENSITIVE_LOGINS") {
			opts = append(opts, pg.WithCaseInsensitiveLogins())
		}
		pgStore, err := pg.Open(dsn, opts...)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pgStore
		db = pgStore.DB()
	} else {
		log.Printf("GATEKEEP_PG_DSN not set, using in-memory store")
		store = access.NewMemoryStore()
	}

	salt := os.Getenv("GATEKEEP_PASSWORD_SALT")
	var encrypter access.PasswordEncrypter
	switch scheme := os.Getenv("GATEKEEP_PASSWORD_SCHEME"); scheme {
	case "", "sha1":
		encrypter = access.NewSHA1Encrypter(salt)
	case "argon2":
		encrypter = access.NewArgon2Encrypter(salt)
	case "plain":
		encrypter = access.PlaintextEncrypter{}
	default:
		log.Fatalf("unknown GATEKEEP_PASSWORD_SCHEME %q", scheme)
	}

	svc, err := access.NewService(store, encrypter, access.NewSession(),
		access.WithSimultaneousLogins(envBool("GATEKEEP_ALLOW_SIMULTANEOUS_LOGINS")))
	if err != nil {
		log.Fatalf("init access service: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, svc)

	addr := os.Getenv("GATEKEEP_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting gatekeep-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"bank-portal/internal/attempts"
	"bank-portal/internal/auth"
	"bank-portal/internal/config"
	"bank-portal/internal/handlers"
	"bank-portal/internal/notify"
	"bank-portal/internal/session"
	"bank-portal/internal/storage"
)

func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "portal.db"
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	secureCookie := os.Getenv("SECURE_COOKIE") == "true"

	cfg := config.Load()

	db, err := storage.NewDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if accountNumber := os.Getenv("SEED_ACCOUNT"); accountNumber != "" {
		if err := seedAccount(db, accountNumber); err != nil {
			log.Fatalf("Failed to seed account: %v", err)
		}
	}

	// The session slot lives in a memory store scoped to this process;
	// login attempt records go through the durable sqlite store.
	sessions := session.New(storage.NewMemoryKV(), session.Config{
		Timeout: cfg.SessionTimeout,
		OnExpired: func() {
			log.Printf("Session expired due to inactivity")
		},
	})
	defer sessions.Destroy()

	tracker := attempts.New(db, attempts.Config{
		MaxAttempts:     cfg.MaxAttempts,
		LockoutDuration: cfg.LockoutDuration,
	})

	sender := notify.NewSender(cfg, notify.NewThrottle(notify.ThrottleConfig{
		Limit:  cfg.EmailRateLimit,
		Window: cfg.RateLimitWindow,
	}))

	h := handlers.NewHandlers(db, sessions, tracker, sender, "web/templates", secureCookie)
	mux := setupRouter(h, "web/static")

	log.Printf("Listening on :%s", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// seedAccount bootstraps an account from the environment so a fresh
// install (or a test run) starts with a usable login.
func seedAccount(db *storage.DB, accountNumber string) error {
	if _, err := db.GetAccountByNumber(accountNumber); err == nil {
		return nil
	}

	password := os.Getenv("SEED_PASSWORD")
	if password == "" {
		return fmt.Errorf("SEED_PASSWORD is required when SEED_ACCOUNT is set")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	_, err = db.CreateAccount(accountNumber, hash,
		os.Getenv("SEED_NAME"), os.Getenv("SEED_EMAIL"),
		os.Getenv("SEED_PHONE"), os.Getenv("SEED_ADDRESS"))
	if err != nil {
		return err
	}
	log.Printf("Seeded account %s", accountNumber)
	return nil
}

func setupRouter(h *handlers.Handlers, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	})

	mux.HandleFunc("GET /login", h.LoginForm)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("POST /logout", h.Logout)
	mux.HandleFunc("GET /session/status", h.SessionStatus)

	mux.Handle("GET /profile", h.AuthMiddleware(http.HandlerFunc(h.ProfileForm)))
	mux.Handle("POST /profile", h.AuthMiddleware(http.HandlerFunc(h.UpdateProfile)))
	mux.Handle("POST /session/activity", h.AuthMiddleware(http.HandlerFunc(h.Activity)))

	return mux
}

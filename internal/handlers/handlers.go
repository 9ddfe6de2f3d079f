package handlers

import (
	"context"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"bank-portal/internal/attempts"
	"bank-portal/internal/auth"
	"bank-portal/internal/models"
	"bank-portal/internal/notify"
	"bank-portal/internal/session"
	"bank-portal/internal/storage"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// SessionContextKey is the context key for the authenticated session.
	SessionContextKey contextKey = "session"
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"
	// notifyTimeout bounds the fire-and-observe notification sends.
	notifyTimeout = 15 * time.Second
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db           *storage.DB
	sessions     *session.Manager
	tracker      *attempts.Tracker
	sender       *notify.Sender
	templateDir  string
	secureCookie bool
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *storage.DB, sessions *session.Manager, tracker *attempts.Tracker, sender *notify.Sender, templateDir string, secureCookie bool) *Handlers {
	return &Handlers{
		db:           db,
		sessions:     sessions,
		tracker:      tracker,
		sender:       sender,
		templateDir:  templateDir,
		secureCookie: secureCookie,
	}
}

// SessionFromContext retrieves the authenticated session from request context.
func SessionFromContext(r *http.Request) *models.Session {
	if s, ok := r.Context().Value(SessionContextKey).(*models.Session); ok {
		return s
	}
	return nil
}

// AuthMiddleware wraps handlers to require an authenticated session. The
// cookie token must match the current session slot; every request through
// here counts as user activity.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		s := h.sessions.Get()
		if s == nil || s.Token != cookie.Value {
			h.clearSessionCookie(w)
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		ctx := context.WithValue(r.Context(), SessionContextKey, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoginViewModel holds data for the login page.
type LoginViewModel struct {
	Error             string
	RemainingAttempts int
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	// If already logged in, redirect to the profile screen
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if s := h.sessions.Get(); s != nil && s.Token == cookie.Value {
			http.Redirect(w, r, "/profile", http.StatusFound)
			return
		}
	}
	h.render(w, r, "login.html", LoginViewModel{})
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, "login.html", LoginViewModel{Error: "Invalid form submission"})
		return
	}

	accountNumber := strings.TrimSpace(r.FormValue("account_number"))
	password := r.FormValue("password")

	if accountNumber == "" || password == "" {
		h.render(w, r, "login.html", LoginViewModel{Error: "Account number and password are required"})
		return
	}

	// Lockout check comes before credential validation
	if locked, remaining := h.tracker.IsLocked(accountNumber); locked {
		h.render(w, r, "login.html", LoginViewModel{
			Error: fmt.Sprintf("Account temporarily locked. Try again in %d seconds.", remaining),
		})
		return
	}

	account, err := h.db.GetAccountByNumber(accountNumber)
	if err != nil || !auth.CheckPassword(password, account.PasswordHash) {
		if err := h.tracker.RecordFailure(accountNumber); err != nil {
			log.Printf("Failed to record login attempt: %v", err)
		}

		if locked, remaining := h.tracker.IsLocked(accountNumber); locked {
			h.render(w, r, "login.html", LoginViewModel{
				Error: fmt.Sprintf("Too many failed attempts. Account locked for %d seconds.", remaining),
			})
			return
		}

		h.render(w, r, "login.html", LoginViewModel{
			Error:             "Invalid account number or password",
			RemainingAttempts: h.tracker.Remaining(accountNumber),
		})
		return
	}

	if err := h.tracker.Reset(accountNumber); err != nil {
		log.Printf("Failed to reset login attempts: %v", err)
	}

	s, err := h.sessions.Create(map[string]string{
		"accountNumber": account.AccountNumber,
		"holderName":    account.HolderName,
		"email":         account.Email,
		"phone":         account.Phone,
		"address":       account.Address,
	})
	if err != nil {
		log.Printf("Failed to create session: %v", err)
		h.render(w, r, "login.html", LoginViewModel{Error: "An error occurred. Please try again."})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    s.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	// Notification is fire-and-observe: it never blocks or rolls back the
	// login that just committed.
	userAgent := r.UserAgent()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		ev := models.LoginEvent{
			UserEmail:     account.Email,
			AccountNumber: account.AccountNumber,
			IPAddress:     h.sender.LookupIP(ctx),
			UserAgent:     userAgent,
		}
		if err := h.sender.SendLoginNotification(ctx, ev); err != nil {
			log.Printf("Login notification not sent: %v", err)
		}
	}()

	http.Redirect(w, r, "/profile", http.StatusFound)
}

// Logout handles user logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Destroy()
	h.clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// ProfileViewModel holds data for the profile update page.
type ProfileViewModel struct {
	User    map[string]string
	Error   string
	Success string
}

// ProfileForm renders the profile update page.
func (h *Handlers) ProfileForm(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r)
	h.render(w, r, "profile.html", ProfileViewModel{User: s.User})
}

// UpdateProfile handles the profile update form submission.
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r)

	if err := r.ParseForm(); err != nil {
		h.render(w, r, "profile.html", ProfileViewModel{User: s.User, Error: "Invalid form submission"})
		return
	}

	account, err := h.db.GetAccountByNumber(s.User["accountNumber"])
	if err != nil {
		log.Printf("UpdateProfile account lookup error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	submitted := map[string]*string{
		"holderName": &account.HolderName,
		"email":      &account.Email,
		"phone":      &account.Phone,
		"address":    &account.Address,
	}
	formNames := map[string]string{
		"holderName": "holder_name",
		"email":      "email",
		"phone":      "phone",
		"address":    "address",
	}

	var changes []models.FieldChange
	updates := make(map[string]string)
	for field, current := range submitted {
		value := strings.TrimSpace(r.FormValue(formNames[field]))
		if value == *current {
			continue
		}
		changes = append(changes, models.FieldChange{Field: field, OldValue: *current, NewValue: value})
		updates[field] = value
		*current = value
	}

	if len(changes) == 0 {
		h.render(w, r, "profile.html", ProfileViewModel{User: s.User, Success: "No changes to save"})
		return
	}

	if err := h.db.UpdateAccountProfile(account); err != nil {
		log.Printf("UpdateProfile error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.sessions.Update(updates)

	// Same fire-and-observe contract as the login notification.
	ev := models.UpdateEvent{
		UserEmail:     account.Email,
		AccountNumber: account.AccountNumber,
		Changes:       changes,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := h.sender.SendProfileUpdateNotification(ctx, ev); err != nil {
			log.Printf("Profile update notification not sent: %v", err)
		}
	}()

	user := h.sessions.CurrentUser()
	if user == nil {
		user = s.User
	}
	h.render(w, r, "profile.html", ProfileViewModel{User: user, Success: "Profile updated"})
}

// Activity records a user-interaction signal. This is the low-latency
// activity path; the inactivity watchdog is the polling one.
func (h *Handlers) Activity(w http.ResponseWriter, r *http.Request) {
	h.sessions.Touch()
	w.WriteHeader(http.StatusNoContent)
}

// SessionStatus reports whether the session slot is still alive, without
// counting the check itself as activity. The front end polls it and
// navigates back to the login screen once the session is gone.
func (h *Handlers) SessionStatus(w http.ResponseWriter, r *http.Request) {
	if h.sessions.Valid() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusUnauthorized)
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, viewName string, data any) {
	tmpl, err := template.ParseFiles(filepath.Join(h.templateDir, "base.html"), filepath.Join(h.templateDir, viewName))
	if err != nil {
		log.Printf("Template error: %v", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Template execution error: %v", err)
	}
}

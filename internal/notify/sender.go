package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bank-portal/internal/config"
	"bank-portal/internal/models"

	"github.com/google/uuid"
)

// Default endpoints. Overridable for tests.
const (
	DefaultEmailEndpoint = "https://api.emailjs.com/api/v1.0/email/send"
	DefaultIPEndpoint    = "https://api.ipify.org?format=json"
)

// ErrNotConfigured is returned when the email service credentials are
// missing. Notification sends are rejected but never block login or
// profile updates.
var ErrNotConfigured = errors.New("email service not configured")

// ErrRateLimited is returned when the user's notification budget for the
// current window is exhausted.
var ErrRateLimited = errors.New("notification rate limit exceeded")

// Sender delivers admin notification emails through the EmailJS REST API.
type Sender struct {
	serviceID      string
	templateLogin  string
	templateUpdate string
	publicKey      string
	adminEmail     string

	throttle *Throttle
	client   *http.Client
	endpoint string
	ipURL    string
	now      func() time.Time
}

// NewSender creates a sender from the portal configuration. The throttle
// is shared across both notification kinds: login and update sends draw
// from the same per-user budget.
func NewSender(cfg config.Config, throttle *Throttle) *Sender {
	return &Sender{
		serviceID:      cfg.EmailServiceID,
		templateLogin:  cfg.EmailTemplateLogin,
		templateUpdate: cfg.EmailTemplateUpdate,
		publicKey:      cfg.EmailPublicKey,
		adminEmail:     cfg.AdminEmail,
		throttle:       throttle,
		client:         &http.Client{},
		endpoint:       DefaultEmailEndpoint,
		ipURL:          DefaultIPEndpoint,
		now:            time.Now,
	}
}

// SendLoginNotification notifies the admin of a new login. The throttle
// slot is consumed before the send; a failed send does not refund it.
func (s *Sender) SendLoginNotification(ctx context.Context, ev models.LoginEvent) error {
	if s.serviceID == "" || s.templateLogin == "" || s.publicKey == "" {
		return ErrNotConfigured
	}
	if s.throttle.IsRateLimited(ev.UserEmail) {
		return ErrRateLimited
	}

	ip := ev.IPAddress
	if ip == "" {
		ip = "Unknown"
	}
	account := ev.AccountNumber
	if account == "" {
		account = "N/A"
	}

	return s.send(ctx, s.templateLogin, map[string]any{
		"to_email":       s.adminEmail,
		"subject":        "New Login Detected",
		"user_email":     ev.UserEmail,
		"account_number": account,
		"timestamp":      s.now().Format(time.RFC1123),
		"ip_address":     ip,
		"user_agent":     ev.UserAgent,
		"event_id":       uuid.NewString(),
	})
}

// SendProfileUpdateNotification notifies the admin of profile changes.
func (s *Sender) SendProfileUpdateNotification(ctx context.Context, ev models.UpdateEvent) error {
	if s.serviceID == "" || s.templateUpdate == "" || s.publicKey == "" {
		return ErrNotConfigured
	}
	if s.throttle.IsRateLimited(ev.UserEmail) {
		return ErrRateLimited
	}

	account := ev.AccountNumber
	if account == "" {
		account = "N/A"
	}

	return s.send(ctx, s.templateUpdate, map[string]any{
		"to_email":       s.adminEmail,
		"subject":        "Profile Update Notification",
		"user_email":     ev.UserEmail,
		"account_number": account,
		"timestamp":      s.now().Format(time.RFC1123),
		"changes_list":   formatChanges(ev.Changes),
		"total_changes":  len(ev.Changes),
		"event_id":       uuid.NewString(),
	})
}

func formatChanges(changes []models.FieldChange) string {
	lines := make([]string, 0, len(changes))
	for _, c := range changes {
		oldValue := c.OldValue
		if oldValue == "" {
			oldValue = "(empty)"
		}
		newValue := c.NewValue
		if newValue == "" {
			newValue = "(empty)"
		}
		lines = append(lines, fmt.Sprintf("%s: %s -> %s", c.Field, oldValue, newValue))
	}
	return strings.Join(lines, "\n")
}

func (s *Sender) send(ctx context.Context, templateID string, params map[string]any) error {
	body, err := json.Marshal(map[string]any{
		"service_id":      s.serviceID,
		"template_id":     templateID,
		"user_id":         s.publicKey,
		"template_params": params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notification send failed: status %d", resp.StatusCode)
	}
	return nil
}

// LookupIP returns the caller's public IP address, or "Unknown" when the
// lookup fails. Failures never block the login flow.
func (s *Sender) LookupIP(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.ipURL, nil)
	if err != nil {
		return "Unknown"
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "Unknown"
	}
	defer resp.Body.Close()

	var payload struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.IP == "" {
		return "Unknown"
	}
	return payload.IP
}

package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"bank-portal/internal/attempts"
	"bank-portal/internal/auth"
	"bank-portal/internal/config"
	"bank-portal/internal/notify"
	"bank-portal/internal/session"
	"bank-portal/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const templateDir = "../../web/templates"

// HandlersTestSuite exercises the login and profile flows end to end
// against an in-memory database.
type HandlersTestSuite struct {
	suite.Suite
	db       *storage.DB
	sessions *session.Manager
	tracker  *attempts.Tracker
	h        *Handlers
}

// SetupTest runs before each test
func (suite *HandlersTestSuite) SetupTest() {
	if _, err := os.Stat(templateDir); os.IsNotExist(err) {
		suite.T().Skip("Template directory not found, skipping handler tests")
	}

	db, err := storage.NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db

	hash, err := auth.HashPassword("correct-horse")
	require.NoError(suite.T(), err)
	_, err = db.CreateAccount("1234567", hash, "Test Holder", "holder@example.com", "01000000000", "Cairo")
	require.NoError(suite.T(), err)

	suite.sessions = session.New(storage.NewMemoryKV(), session.Config{Timeout: 30 * time.Minute})
	suite.tracker = attempts.New(db, attempts.Config{MaxAttempts: 5, LockoutDuration: 5 * time.Minute})
	sender := notify.NewSender(config.Config{}, notify.NewThrottle(notify.ThrottleConfig{}))

	suite.h = NewHandlers(db, suite.sessions, suite.tracker, sender, templateDir, false)
}

// TearDownTest runs after each test
func (suite *HandlersTestSuite) TearDownTest() {
	if suite.sessions != nil {
		suite.sessions.Destroy()
	}
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *HandlersTestSuite) postForm(handler http.HandlerFunc, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func (suite *HandlersTestSuite) login(accountNumber, password string) *httptest.ResponseRecorder {
	return suite.postForm(suite.h.Login, "/login", url.Values{
		"account_number": {accountNumber},
		"password":       {password},
	})
}

func (suite *HandlersTestSuite) TestLoginSuccess() {
	w := suite.login("1234567", "correct-horse")

	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/profile", w.Header().Get("Location"))

	cookies := w.Result().Cookies()
	require.NotEmpty(suite.T(), cookies, "expected a session cookie")
	assert.Equal(suite.T(), SessionCookieName, cookies[0].Name)
	assert.Len(suite.T(), cookies[0].Value, 64)

	user := suite.sessions.CurrentUser()
	require.NotNil(suite.T(), user)
	assert.Equal(suite.T(), "1234567", user["accountNumber"])
	assert.Equal(suite.T(), "holder@example.com", user["email"])
}

func (suite *HandlersTestSuite) TestLoginFailureRecordsAttempt() {
	w := suite.login("1234567", "wrong")

	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "Invalid account number or password")
	assert.Contains(suite.T(), w.Body.String(), "4 attempts remaining")
	assert.Equal(suite.T(), 1, suite.tracker.Get("1234567").Count)
	assert.False(suite.T(), suite.sessions.IsAuthenticated())
}

func (suite *HandlersTestSuite) TestLoginLockoutAfterMaxFailures() {
	for i := 0; i < 4; i++ {
		suite.login("1234567", "wrong")
	}

	w := suite.login("1234567", "wrong")
	assert.Contains(suite.T(), w.Body.String(), "Too many failed attempts")

	// Even the correct password is rejected while locked
	w = suite.login("1234567", "correct-horse")
	assert.Contains(suite.T(), w.Body.String(), "Account temporarily locked")
	assert.False(suite.T(), suite.sessions.IsAuthenticated())
}

func (suite *HandlersTestSuite) TestLoginSuccessResetsAttempts() {
	suite.login("1234567", "wrong")
	suite.login("1234567", "wrong")
	require.Equal(suite.T(), 2, suite.tracker.Get("1234567").Count)

	suite.login("1234567", "correct-horse")
	assert.Zero(suite.T(), suite.tracker.Get("1234567").Count)
	assert.Equal(suite.T(), 5, suite.tracker.Remaining("1234567"))
}

func (suite *HandlersTestSuite) TestLoginUnknownAccountCountsAttempt() {
	w := suite.login("0000000", "whatever")

	assert.Contains(suite.T(), w.Body.String(), "Invalid account number or password")
	assert.Equal(suite.T(), 1, suite.tracker.Get("0000000").Count)
}

func (suite *HandlersTestSuite) TestAuthMiddlewareRejectsWithoutCookie() {
	protected := suite.h.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/profile", http.NoBody)
	w := httptest.NewRecorder()
	protected.ServeHTTP(w, req)

	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/login", w.Header().Get("Location"))
}

func (suite *HandlersTestSuite) TestAuthMiddlewareRejectsStaleToken() {
	_, err := suite.sessions.Create(map[string]string{"accountNumber": "1234567"})
	require.NoError(suite.T(), err)

	protected := suite.h.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/profile", http.NoBody)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "not-the-current-token"})
	w := httptest.NewRecorder()
	protected.ServeHTTP(w, req)

	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/login", w.Header().Get("Location"))
}

func (suite *HandlersTestSuite) TestAuthMiddlewarePassesValidSession() {
	s, err := suite.sessions.Create(map[string]string{"accountNumber": "1234567"})
	require.NoError(suite.T(), err)

	var got string
	protected := suite.h.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = SessionFromContext(r).User["accountNumber"]
	}))

	req := httptest.NewRequest(http.MethodGet, "/profile", http.NoBody)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: s.Token})
	w := httptest.NewRecorder()
	protected.ServeHTTP(w, req)

	assert.Equal(suite.T(), "1234567", got)
}

func (suite *HandlersTestSuite) TestUpdateProfilePersistsChanges() {
	s, err := suite.sessions.Create(map[string]string{
		"accountNumber": "1234567",
		"holderName":    "Test Holder",
		"email":         "holder@example.com",
		"phone":         "01000000000",
		"address":       "Cairo",
	})
	require.NoError(suite.T(), err)

	form := url.Values{
		"holder_name": {"Test Holder"},
		"email":       {"new@example.com"},
		"phone":       {"01234567890"},
		"address":     {"Cairo"},
	}
	req := httptest.NewRequest(http.MethodPost, "/profile", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: s.Token})
	w := httptest.NewRecorder()
	suite.h.AuthMiddleware(http.HandlerFunc(suite.h.UpdateProfile)).ServeHTTP(w, req)

	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "Profile updated")

	// Database reflects the change
	account, err := suite.db.GetAccountByNumber("1234567")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "new@example.com", account.Email)
	assert.Equal(suite.T(), "01234567890", account.Phone)

	// Session payload was merged, untouched keys preserved
	user := suite.sessions.CurrentUser()
	assert.Equal(suite.T(), "new@example.com", user["email"])
	assert.Equal(suite.T(), "Test Holder", user["holderName"])
}

func (suite *HandlersTestSuite) TestUpdateProfileNoChanges() {
	s, err := suite.sessions.Create(map[string]string{
		"accountNumber": "1234567",
		"holderName":    "Test Holder",
		"email":         "holder@example.com",
		"phone":         "01000000000",
		"address":       "Cairo",
	})
	require.NoError(suite.T(), err)

	form := url.Values{
		"holder_name": {"Test Holder"},
		"email":       {"holder@example.com"},
		"phone":       {"01000000000"},
		"address":     {"Cairo"},
	}
	req := httptest.NewRequest(http.MethodPost, "/profile", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: s.Token})
	w := httptest.NewRecorder()
	suite.h.AuthMiddleware(http.HandlerFunc(suite.h.UpdateProfile)).ServeHTTP(w, req)

	assert.Contains(suite.T(), w.Body.String(), "No changes to save")
}

func (suite *HandlersTestSuite) TestLogoutDestroysSession() {
	_, err := suite.sessions.Create(map[string]string{"accountNumber": "1234567"})
	require.NoError(suite.T(), err)

	req := httptest.NewRequest(http.MethodPost, "/logout", http.NoBody)
	w := httptest.NewRecorder()
	suite.h.Logout(w, req)

	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/login", w.Header().Get("Location"))
	assert.False(suite.T(), suite.sessions.IsAuthenticated())
}

func (suite *HandlersTestSuite) TestSessionStatus() {
	req := httptest.NewRequest(http.MethodGet, "/session/status", http.NoBody)
	w := httptest.NewRecorder()
	suite.h.SessionStatus(w, req)
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)

	_, err := suite.sessions.Create(nil)
	require.NoError(suite.T(), err)

	w = httptest.NewRecorder()
	suite.h.SessionStatus(w, req)
	assert.Equal(suite.T(), http.StatusNoContent, w.Code)
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}

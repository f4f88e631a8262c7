package tenant

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/cornerstone-erp/keystone/pkg/authz"
)

type authFixture struct {
	router   *mux.Router
	sessions *SessionStore
	store    *authz.Store
	tenantID string
	userID   string
}

func setupAuthHandlers(t *testing.T) *authFixture {
	t.Helper()
	db := setupTestDB(t)
	store := authz.NewStore(db)
	tenantID, userID := seedUser(t, store, "Manager")
	sessions := NewSessionStore(db)
	permissions := authz.NewPermissionService(store, nil, nil)
	handlers := NewHandlers(sessions, store, permissions, nil, nil)

	router := mux.NewRouter()
	handlers.RegisterRoutes(router)
	return &authFixture{
		router:   router,
		sessions: sessions,
		store:    store,
		tenantID: tenantID,
		userID:   userID,
	}
}

func (f *authFixture) login(t *testing.T, userID string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(LoginRequest{UserID: userID})
	if err != nil {
		t.Fatalf("marshal login request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestLogin(t *testing.T) {
	f := setupAuthHandlers(t)

	rec := f.login(t, f.userID)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Success bool          `json:"success"`
		Data    LoginResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.Success {
		t.Error("login envelope not successful")
	}
	if envelope.Data.Token == "" {
		t.Fatal("login returned no token")
	}
	if envelope.Data.TenantID != f.tenantID {
		t.Errorf("tenant = %s, want %s", envelope.Data.TenantID, f.tenantID)
	}
	if envelope.Data.RoleName != "Manager" || envelope.Data.IsAdmin {
		t.Errorf("role payload = %+v", envelope.Data)
	}

	// The issued token is immediately usable.
	session, err := f.sessions.Lookup(context.Background(), envelope.Data.Token)
	if err != nil {
		t.Fatalf("issued token does not resolve: %v", err)
	}
	if session.UserID != f.userID {
		t.Errorf("session user = %s, want %s", session.UserID, f.userID)
	}
}

func TestLoginRejections(t *testing.T) {
	f := setupAuthHandlers(t)
	ctx := context.Background()

	rec := f.login(t, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty user_id status = %d, want 400", rec.Code)
	}

	rec = f.login(t, "no-such-user")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown user status = %d, want 401", rec.Code)
	}

	if err := f.store.SetUserActive(ctx, f.userID, false); err != nil {
		t.Fatalf("SetUserActive failed: %v", err)
	}
	rec = f.login(t, f.userID)
	if rec.Code != http.StatusForbidden {
		t.Errorf("inactive user status = %d, want 403", rec.Code)
	}
}

func TestLogout(t *testing.T) {
	f := setupAuthHandlers(t)
	token, _, err := f.sessions.Create(context.Background(), f.userID, f.tenantID)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if _, err := f.sessions.Lookup(context.Background(), token); !authz.IsUnauthorized(err) {
		t.Error("session survived logout")
	}

	// A second logout with the revoked token fails.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("repeat logout status = %d, want 401", rec.Code)
	}
}

func TestLogoutWithoutToken(t *testing.T) {
	f := setupAuthHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

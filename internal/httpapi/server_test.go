package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"cloak/server/internal/auth"
	"cloak/server/internal/core"
	"cloak/server/internal/history"
	"cloak/server/internal/store"
	"cloak/server/internal/ws"
)

func startTestAPI(t *testing.T, rootUsers []string) (*core.Router, *auth.Service, *httptest.Server) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	authSvc := auth.New(st, "test-secret", time.Hour)
	router := core.NewRouter(
		core.NewRoomDirectory(),
		core.NewRegistry(),
		core.NewModerationStore(),
		history.NewMemoryLog(50),
		authSvc,
		nil,
		nil,
		core.Config{},
	)

	api := New(router, authSvc, ws.Options{}, rootUsers)
	ts := httptest.NewServer(api.Echo())
	t.Cleanup(ts.Close)
	return router, authSvc, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestHealthAndRooms(t *testing.T) {
	router, _, ts := startTestAPI(t, nil)

	router.Rooms().Ensure("lobby", false)
	router.Rooms().Ensure("vault", true)
	router.Registry().Register("c1", "alice", false, 8)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" || health.Clients != 1 || health.Rooms != 2 {
		t.Fatalf("unexpected health: %#v", health)
	}

	roomsResp, err := http.Get(ts.URL + "/api/rooms")
	if err != nil {
		t.Fatalf("GET /api/rooms: %v", err)
	}
	defer roomsResp.Body.Close()
	var rooms roomsResponse
	if err := json.NewDecoder(roomsResp.Body).Decode(&rooms); err != nil {
		t.Fatalf("decode rooms: %v", err)
	}
	if len(rooms.Rooms) != 2 || rooms.Rooms[0].Name != "lobby" || !rooms.Rooms[1].Protected {
		t.Fatalf("unexpected rooms: %#v", rooms)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	_, authSvc, ts := startTestAPI(t, []string{"admin"})

	resp := postJSON(t, ts.URL+"/api/register", credentialsRequest{Username: "alice", Password: "hunter2"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/register", credentialsRequest{Username: "alice", Password: "other"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register status = %d", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/login", credentialsRequest{Username: "alice", Password: "hunter2"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var login loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if login.Role != "member" || login.Token == "" {
		t.Fatalf("unexpected login: %#v", login)
	}
	if authSvc.IsPrivileged(login.Token) {
		t.Fatal("member token must not be privileged")
	}

	resp = postJSON(t, ts.URL+"/api/login", credentialsRequest{Username: "alice", Password: "wrong"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d", resp.StatusCode)
	}
}

func TestLoginIssuesRootRole(t *testing.T) {
	_, authSvc, ts := startTestAPI(t, []string{"admin"})

	resp := postJSON(t, ts.URL+"/api/register", credentialsRequest{Username: "admin", Password: "s3cret"})
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/api/login", credentialsRequest{Username: "admin", Password: "s3cret"})
	defer resp.Body.Close()
	var login loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if login.Role != auth.RoleRoot {
		t.Fatalf("role = %q, want root", login.Role)
	}
	if !authSvc.IsPrivileged(login.Token) {
		t.Fatal("root token should be privileged")
	}
}

func TestLoginRejectsBannedUser(t *testing.T) {
	router, _, ts := startTestAPI(t, nil)

	resp := postJSON(t, ts.URL+"/api/register", credentialsRequest{Username: "mallory", Password: "pw"})
	resp.Body.Close()

	router.Moderation().Ban("mallory")
	resp = postJSON(t, ts.URL+"/api/login", credentialsRequest{Username: "mallory", Password: "pw"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("banned login status = %d", resp.StatusCode)
	}
}

package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stellarlinkco/haiemet/internal/registry"
)

type fakeRegistry struct {
	snap  registry.Snapshot
	users map[string]registry.UserRecord
}

func (f *fakeRegistry) Snapshot() registry.Snapshot { return f.snap }

func (f *fakeRegistry) Get(id string) (registry.UserRecord, bool) {
	u, ok := f.users[id]
	return u, ok
}

func newTestServer(opts ...Option) *Server {
	gin.SetMode(gin.TestMode)
	reg := &fakeRegistry{
		snap: registry.Snapshot{
			TotalUsers:    1,
			TotalMessages: 7,
			System:        registry.SystemState{CoreBeats: 3, LightPower: 1500, Mood: registry.SystemMoodEnergized},
		},
		users: map[string]registry.UserRecord{
			"42": {ID: "42", Handle: "dana", Points: 120, Level: 2, Mood: registry.MoodPositive},
		},
	}
	return NewServer(reg, nil, opts...)
}

func do(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Engine.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := do(t, newTestServer(), "/healthz")
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", w.Code, w.Body.String())
	}
}

func TestStatus(t *testing.T) {
	w := do(t, newTestServer(), "/api/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d", w.Code)
	}
	var snap registry.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.TotalUsers != 1 || snap.TotalMessages != 7 || snap.System.CoreBeats != 3 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.System.Mood != registry.SystemMoodEnergized {
		t.Errorf("mood = %q", snap.System.Mood)
	}
}

func TestUser(t *testing.T) {
	s := newTestServer(WithUserAPI(true))

	w := do(t, s, "/api/users/42")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d", w.Code)
	}
	var u registry.UserRecord
	if err := json.Unmarshal(w.Body.Bytes(), &u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.Handle != "dana" || u.Level != 2 || u.Mood != registry.MoodPositive {
		t.Errorf("user = %+v", u)
	}

	w = do(t, s, "/api/users/nobody")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown user code = %d, want 404", w.Code)
	}
}

func TestUser_DisabledByDefault(t *testing.T) {
	if w := do(t, newTestServer(), "/api/users/42"); w.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", w.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	if w := do(t, newTestServer(), "/api/nope"); w.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", w.Code)
	}
}

func TestStartShutdown(t *testing.T) {
	s := newTestServer()
	if s.Addr() != "" {
		t.Error("Addr should be empty before Start")
	}
	if err := s.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown error: %v", err)
	}
}

func TestShutdownWithoutStart(t *testing.T) {
	if err := newTestServer().Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown error: %v", err)
	}
}

func TestHandle(t *testing.T) {
	s := newTestServer()
	s.Handle("/ws", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	if w := do(t, s, "/ws"); w.Code != http.StatusTeapot {
		t.Errorf("mounted handler code = %d", w.Code)
	}
}

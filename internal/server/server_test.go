package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/devspace/internal/config"
	"github.com/sakif/devspace/internal/model"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:           8080,
		DBPath:         ":memory:",
		JWTSecret:      "test-secret-that-is-32-chars-ok!",
		TokenTTL:       time.Hour,
		AllowedOrigins: "http://localhost:3000",
		Env:            "test",
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(cfg, logger, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// call sends a JSON request through the router and returns the recorder.
func call(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

type authBody struct {
	Success bool       `json:"success"`
	Token   string     `json:"token"`
	User    model.User `json:"user"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
	Code    string `json:"code"`
}

func register(t *testing.T, s *Server, username string) authBody {
	t.Helper()
	rr := call(t, s, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@x.com",
		"password": "Pw123!",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decodeBody[authBody](t, rr)
}

func createProject(t *testing.T, s *Server, token, title string, public bool) model.Project {
	t.Helper()
	rr := call(t, s, http.MethodPost, "/api/projects", token, map[string]any{
		"title": title, "isPublic": public,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return *decodeBody[struct {
		Project *model.Project `json:"project"`
	}](t, rr).Project
}

func createSnippet(t *testing.T, s *Server, token string, body map[string]any) model.Snippet {
	t.Helper()
	if _, ok := body["language"]; !ok {
		body["language"] = "python"
	}
	rr := call(t, s, http.MethodPost, "/api/code", token, body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return *decodeBody[struct {
		CodeSnippet *model.Snippet `json:"codeSnippet"`
	}](t, rr).CodeSnippet
}

func TestSelfJoinGrantsWholeProject(t *testing.T) {
	s := newTestServer(t, testConfig())
	alice := register(t, s, "alice")

	p1 := createProject(t, s, alice.Token, "P1", true)
	s1 := createSnippet(t, s, alice.Token, map[string]any{
		"projectId": p1.ID, "title": "S1", "content": "print(1)",
		"isPublic": true, "allowCollaboration": true,
	})
	s2 := createSnippet(t, s, alice.Token, map[string]any{
		"projectId": p1.ID, "title": "S2", "content": "print(2)", "isPublic": true,
	})

	bob := register(t, s, "bob")

	rr := call(t, s, http.MethodPut, "/api/code/"+s2.ID, bob.Token, map[string]any{"content": "x"})
	assert.Equal(t, http.StatusForbidden, rr.Code, "not a collaborator yet")

	rr = call(t, s, http.MethodPost, "/api/code/"+s1.ID+"/collaborators", bob.Token, map[string]string{"username": "bob"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = call(t, s, http.MethodPut, "/api/code/"+s2.ID, bob.Token, map[string]any{"content": "print('bob')"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decodeBody[struct {
		CodeSnippet *model.Snippet `json:"codeSnippet"`
	}](t, rr).CodeSnippet
	assert.Equal(t, "print('bob')", updated.Content)

	rr = call(t, s, http.MethodPost, "/api/code/"+s1.ID+"/collaborators", bob.Token, map[string]string{"username": "bob"})
	assert.Equal(t, http.StatusConflict, rr.Code, "joining twice")
}

func TestPrivateSnippetVisibility(t *testing.T) {
	s := newTestServer(t, testConfig())
	alice := register(t, s, "alice")
	bob := register(t, s, "bob")
	snip := createSnippet(t, s, alice.Token, map[string]any{"title": "secret", "content": "x"})

	rr := call(t, s, http.MethodGet, "/api/code/"+snip.ID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = call(t, s, http.MethodGet, "/api/code/"+snip.ID, bob.Token, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = call(t, s, http.MethodGet, "/api/code/"+snip.ID, alice.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decodeBody[model.Snippet](t, rr)
	assert.Equal(t, snip.ID, got.ID)
	assert.Equal(t, alice.User.ID, got.OwnerID)
}

func TestPrivateProjectSnippetListing(t *testing.T) {
	s := newTestServer(t, testConfig())
	alice := register(t, s, "alice")
	bob := register(t, s, "bob")
	p := createProject(t, s, alice.Token, "Secret", false)
	createSnippet(t, s, alice.Token, map[string]any{"title": "shared", "projectId": p.ID, "isPublic": true})

	path := "/api/code/project/" + p.ID
	assert.Equal(t, http.StatusUnauthorized, call(t, s, http.MethodGet, path, "", nil).Code)
	assert.Equal(t, http.StatusForbidden, call(t, s, http.MethodGet, path, bob.Token, nil).Code)
	assert.Equal(t, http.StatusOK, call(t, s, http.MethodGet, path, alice.Token, nil).Code)
}

func TestStarToggle(t *testing.T) {
	s := newTestServer(t, testConfig())
	alice := register(t, s, "alice")
	snip := createSnippet(t, s, alice.Token, map[string]any{"title": "S", "isPublic": true})

	type starBody struct {
		IsStarred bool `json:"isStarred"`
		StarCount int  `json:"starCount"`
	}

	rr := call(t, s, http.MethodPost, "/api/code/"+snip.ID+"/star", alice.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, starBody{IsStarred: true, StarCount: 1}, decodeBody[starBody](t, rr))

	rr = call(t, s, http.MethodPost, "/api/code/"+snip.ID+"/star", alice.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, starBody{IsStarred: false, StarCount: 0}, decodeBody[starBody](t, rr))
}

func TestForkSnippet(t *testing.T) {
	s := newTestServer(t, testConfig())
	alice := register(t, s, "alice")
	bob := register(t, s, "bob")
	snip := createSnippet(t, s, alice.Token, map[string]any{
		"title": "S", "content": "print(1)", "isPublic": true, "tags": []string{"demo"},
	})

	rr := call(t, s, http.MethodPost, "/api/code/"+snip.ID+"/fork", bob.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	fork := decodeBody[struct {
		Snippet *model.Snippet `json:"snippet"`
	}](t, rr).Snippet

	require.NotNil(t, fork.ForkedFromSnippetID)
	assert.Equal(t, snip.ID, *fork.ForkedFromSnippetID)
	assert.False(t, fork.IsPublic)
	assert.Equal(t, bob.User.ID, fork.OwnerID)
	assert.Equal(t, "print(1)", fork.Content)

	rr = call(t, s, http.MethodGet, "/api/projects/"+fork.ProjectID, bob.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	project := decodeBody[model.Project](t, rr)
	assert.Equal(t, "Forked Snippets", project.Title)

	rr = call(t, s, http.MethodGet, "/api/code/forked", bob.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decodeBody[struct {
		CodeSnippets []model.Snippet `json:"codeSnippets"`
	}](t, rr)
	require.Len(t, list.CodeSnippets, 1)
	assert.Equal(t, fork.ID, list.CodeSnippets[0].ID)
}

func TestErrorResponses(t *testing.T) {
	s := newTestServer(t, testConfig())
	alice := register(t, s, "alice")

	t.Run("validation names the field", func(t *testing.T) {
		rr := call(t, s, http.MethodPost, "/api/code", alice.Token, map[string]any{"language": "go"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		body := decodeBody[errorBody](t, rr)
		assert.Equal(t, "validation_error", body.Error)
		assert.Equal(t, "title", body.Field)
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{"))
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "body", decodeBody[errorBody](t, rr).Field)
	})

	t.Run("missing token", func(t *testing.T) {
		rr := call(t, s, http.MethodGet, "/api/auth/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "unauthorized", decodeBody[errorBody](t, rr).Error)
	})

	t.Run("garbage token", func(t *testing.T) {
		rr := call(t, s, http.MethodGet, "/api/auth/me", "not-a-jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "TOKEN_INVALID", decodeBody[errorBody](t, rr).Code)
	})

	t.Run("unknown snippet", func(t *testing.T) {
		rr := call(t, s, http.MethodGet, "/api/code/nope", alice.Token, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "not_found", decodeBody[errorBody](t, rr).Error)
	})

	t.Run("duplicate username", func(t *testing.T) {
		rr := call(t, s, http.MethodPost, "/api/auth/register", "", map[string]string{
			"username": "alice", "email": "other@x.com", "password": "Pw123!",
		})
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("run without executor", func(t *testing.T) {
		snip := createSnippet(t, s, alice.Token, map[string]any{"title": "r", "content": "print(1)"})
		rr := call(t, s, http.MethodPost, "/api/code/"+snip.ID+"/run", alice.Token, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestLoginAndMe(t *testing.T) {
	s := newTestServer(t, testConfig())
	register(t, s, "alice")

	rr := call(t, s, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@x.com", "password": "Pw123!",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	login := decodeBody[authBody](t, rr)
	assert.True(t, login.Success)
	assert.NotEmpty(t, login.Token)

	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == "token" {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "login sets the token cookie")
	assert.True(t, cookie.HttpOnly)

	rr = call(t, s, http.MethodGet, "/api/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	me := decodeBody[model.User](t, rr)
	assert.Equal(t, "alice", me.Username)

	rr = call(t, s, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice", "password": "wrong1",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestNotificationsOverHTTP(t *testing.T) {
	s := newTestServer(t, testConfig())
	alice := register(t, s, "alice")
	bob := register(t, s, "bob")
	snip := createSnippet(t, s, alice.Token, map[string]any{"title": "S", "isPublic": true})

	rr := call(t, s, http.MethodPost, "/api/code/"+snip.ID+"/star", bob.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	type listBody struct {
		Notifications []model.Notification `json:"notifications"`
		UnreadCount   int                  `json:"unreadCount"`
	}
	rr = call(t, s, http.MethodGet, "/api/notifications", alice.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	list := decodeBody[listBody](t, rr)
	require.Len(t, list.Notifications, 1)
	assert.Equal(t, 1, list.UnreadCount)
	assert.Contains(t, list.Notifications[0].Message, "bob")

	rr = call(t, s, http.MethodPut, "/api/notifications/read-all", alice.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = call(t, s, http.MethodGet, "/api/notifications?unread=true", alice.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decodeBody[listBody](t, rr).Notifications)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, testConfig())

	rr := call(t, s, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	health := decodeBody[healthResponse](t, rr)
	assert.Equal(t, "ok", health.Database)
	assert.Equal(t, "disabled", health.Redis)

	rr = call(t, s, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "devspace_http_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/api/code", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebSocketRequiresRedis(t *testing.T) {
	s := newTestServer(t, testConfig())
	alice := register(t, s, "alice")

	rr := call(t, s, http.MethodGet, "/ws/notifications", alice.Token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestSnippetSocketRelaysEdits(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisURL = "redis://" + mr.Addr()
	s := newTestServer(t, cfg)

	alice := register(t, s, "alice")
	snip := createSnippet(t, s, alice.Token, map[string]any{"title": "S", "content": "a", "isPublic": true})

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/code/" + snip.ID
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	// Give the subscription a moment to register with Redis.
	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("snippet:*")) > 0
	}, 2*time.Second, 10*time.Millisecond)

	rr := call(t, s, http.MethodPut, "/api/code/"+snip.ID, alice.Token, map[string]any{"content": "b"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev struct {
		Type       string `json:"type"`
		ResourceID string `json:"resourceId"`
	}
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, "content", ev.Type)
	assert.Equal(t, snip.ID, ev.ResourceID)
}

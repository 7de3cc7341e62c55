package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/devspace/internal/auth"
	"github.com/sakif/devspace/internal/executor"
	"github.com/sakif/devspace/internal/model"
	"github.com/sakif/devspace/internal/repository/sqlite"
)

const testSecret = "test-secret-that-is-32-chars-ok!"

type publishedEvent struct {
	Channel   string
	EventType string
	Resource  string
	Actor     string
}

// recordingPublisher captures events instead of sending them to Redis.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, channel, eventType, resourceID, userID string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{channel, eventType, resourceID, userID})
	return nil
}

func (p *recordingPublisher) onChannel(channel string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.Channel == channel {
			out = append(out, e)
		}
	}
	return out
}

type fakeExecutor struct {
	languages map[string]bool
	lastReq   executor.ExecutionRequest
}

func (f *fakeExecutor) Supports(lang string) bool {
	return f.languages[executor.NormalizeLanguage(lang)]
}

func (f *fakeExecutor) Execute(_ context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	f.lastReq = req
	return &executor.ExecutionResult{Stdout: "ok\n", Duration: time.Millisecond}, nil
}

type testEnv struct {
	db            *sqlite.DB
	tokens        *auth.TokenService
	auth          *AuthService
	projects      *ProjectService
	snippets      *SnippetService
	notifications *NotificationService
	publisher     *recordingPublisher
	executor      *fakeExecutor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := &recordingPublisher{}
	exec := &fakeExecutor{languages: map[string]bool{"python": true, "javascript": true}}

	notifications := NewNotificationService(db.Notifications(), db.Users(), pub, logger)
	projects := NewProjectService(db.Projects(), db.Snippets(), db.Users(), db.Collaborators(), db.Stars(), notifications, logger)
	snippets := NewSnippetService(db.Snippets(), db.Projects(), db.Users(), db.Collaborators(), db.Stars(),
		projects, notifications, pub, exec, logger)

	return &testEnv{
		db:            db,
		tokens:        tokens,
		auth:          NewAuthService(db.Users(), tokens, auth.NewPasswordServiceWithCost(bcrypt.MinCost), logger),
		projects:      projects,
		snippets:      snippets,
		notifications: notifications,
		publisher:     pub,
		executor:      exec,
	}
}

func (e *testEnv) register(t *testing.T, username string) *model.User {
	t.Helper()
	res, err := e.auth.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@x.com",
		Password: "Pw123!",
	})
	require.NoError(t, err)
	return res.User
}

func (e *testEnv) project(t *testing.T, owner *model.User, title string, public bool) *model.Project {
	t.Helper()
	p, err := e.projects.Create(context.Background(), owner.ID, CreateProjectInput{Title: title, IsPublic: public})
	require.NoError(t, err)
	return p
}

func (e *testEnv) snippet(t *testing.T, owner *model.User, in CreateSnippetInput) *model.Snippet {
	t.Helper()
	if in.Language == "" {
		in.Language = "python"
	}
	if in.Title == "" {
		in.Title = "snippet"
	}
	s, err := e.snippets.Create(context.Background(), owner.ID, in)
	require.NoError(t, err)
	return s
}

func ptr[T any](v T) *T { return &v }

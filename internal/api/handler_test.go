package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/m-urubek/scio--progress-path/internal/domain"
	"github.com/m-urubek/scio--progress-path/internal/inference"
	"github.com/m-urubek/scio--progress-path/internal/notify"
	"github.com/m-urubek/scio--progress-path/internal/session"
	"github.com/m-urubek/scio--progress-path/internal/store"
)

type fixedClient struct {
	verdict inference.Verdict
}

func (c *fixedClient) Interpret(ctx context.Context, goalText string) (*inference.Interpretation, error) {
	return &inference.Interpretation{
		Kind:  domain.GoalPercentage,
		Steps: []string{"outline", "draft", "revise"},
	}, nil
}

func (c *fixedClient) Evaluate(ctx context.Context, req inference.EvaluateRequest) (*inference.Verdict, error) {
	v := c.verdict
	return &v, nil
}

func newTestServer(t *testing.T) (*httptest.Server, store.Repository) {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	svc := session.NewService(repo, &fixedClient{
		verdict: inference.Verdict{Guidance: "Nice work on the outline.", Progress: 33, SignificantContribution: true},
	}, notify.NewHub())

	r := chi.NewRouter()
	NewHandler(repo, svc).RegisterRoutes(r)
	NewHealthHandler(repo).RegisterHealth(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, repo
}

func seedConfirmedGroup(t *testing.T, repo store.Repository) *domain.Group {
	t.Helper()
	stepCount := 3
	group := &domain.Group{
		ID:        uuid.NewString(),
		Name:      "Essay workshop",
		GoalText:  "Write a five paragraph essay",
		GoalKind:  domain.GoalPercentage,
		StepCount: &stepCount,
		JoinToken: "tok-" + uuid.NewString()[:8],
		CreatedAt: time.Now(),
	}
	if err := repo.CreateGroup(context.Background(), group, []string{"outline", "draft", "revise"}); err != nil {
		t.Fatalf("Failed to create group: %v", err)
	}
	if err := repo.ConfirmGroup(context.Background(), group.ID); err != nil {
		t.Fatalf("Failed to confirm group: %v", err)
	}
	return group
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestCreateGroupFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/groups", map[string]string{
		"name":      "Essay workshop",
		"goal_text": "Write a five paragraph essay",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	var created struct {
		Group *domain.Group     `json:"group"`
		Steps []domain.GoalStep `json:"steps"`
	}
	decodeBody(t, resp, &created)
	if created.Group == nil || created.Group.Confirmed {
		t.Fatalf("Expected an unconfirmed group, got %+v", created.Group)
	}
	if len(created.Steps) != 3 {
		t.Errorf("Expected 3 interpreted steps, got %d", len(created.Steps))
	}

	// Joining before confirmation is a conflict.
	resp = postJSON(t, srv.URL+"/api/join", map[string]string{
		"join_token":   created.Group.JoinToken,
		"nickname":     "alice",
		"device_token": "device-a",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 before confirmation, got %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/groups/"+created.Group.ID+"/confirm", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 on confirm, got %d", resp.StatusCode)
	}
}

func TestRejectGroup_ReinterpretsUntilConfirmed(t *testing.T) {
	srv, repo := newTestServer(t)
	ctx := context.Background()

	group := &domain.Group{
		ID:        uuid.NewString(),
		Name:      "Lab",
		GoalText:  "old goal",
		GoalKind:  domain.GoalBinary,
		JoinToken: uuid.NewString(),
		CreatedAt: time.Now(),
	}
	if err := repo.CreateGroup(ctx, group, nil); err != nil {
		t.Fatalf("Failed to create group: %v", err)
	}

	resp := postJSON(t, srv.URL+"/api/groups/"+group.ID+"/reject", map[string]string{
		"goal_text": "Write a five paragraph essay",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 on reject, got %d", resp.StatusCode)
	}
	var rejected struct {
		Group *domain.Group `json:"group"`
	}
	decodeBody(t, resp, &rejected)
	if rejected.Group.GoalText != "Write a five paragraph essay" {
		t.Errorf("Expected revised goal text, got %q", rejected.Group.GoalText)
	}

	if err := repo.ConfirmGroup(ctx, group.ID); err != nil {
		t.Fatalf("Failed to confirm group: %v", err)
	}

	resp = postJSON(t, srv.URL+"/api/groups/"+group.ID+"/reject", map[string]string{
		"goal_text": "too late",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 after confirmation, got %d", resp.StatusCode)
	}
}

func TestJoinFlow(t *testing.T) {
	srv, repo := newTestServer(t)
	group := seedConfirmedGroup(t, repo)

	resp := postJSON(t, srv.URL+"/api/join", map[string]string{
		"join_token":   group.JoinToken,
		"nickname":     "alice",
		"device_token": "device-a",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 on first join, got %d", resp.StatusCode)
	}
	var joined struct {
		Session  *domain.ParticipantSession `json:"session"`
		Restored bool                       `json:"restored"`
	}
	decodeBody(t, resp, &joined)
	if joined.Restored || joined.Session == nil {
		t.Fatalf("Expected a fresh session, got %+v", joined)
	}

	// Same device restores, even under a different nickname.
	resp = postJSON(t, srv.URL+"/api/join", map[string]string{
		"join_token":   group.JoinToken,
		"nickname":     "alice-on-the-phone",
		"device_token": "device-a",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 on restore, got %d", resp.StatusCode)
	}
	var restored struct {
		Session  *domain.ParticipantSession `json:"session"`
		Restored bool                       `json:"restored"`
	}
	decodeBody(t, resp, &restored)
	if !restored.Restored || restored.Session.ID != joined.Session.ID {
		t.Errorf("Expected the original session back, got %+v", restored)
	}

	// A second device with a taken nickname conflicts.
	resp = postJSON(t, srv.URL+"/api/join", map[string]string{
		"join_token":   group.JoinToken,
		"nickname":     "Alice",
		"device_token": "device-b",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 for a taken nickname, got %d", resp.StatusCode)
	}

	// An unknown token is not found.
	resp = postJSON(t, srv.URL+"/api/join", map[string]string{
		"join_token":   "missing",
		"nickname":     "bob",
		"device_token": "device-c",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown token, got %d", resp.StatusCode)
	}
}

func TestSendMessageFlow(t *testing.T) {
	srv, repo := newTestServer(t)
	group := seedConfirmedGroup(t, repo)

	sess := &domain.ParticipantSession{
		ID:          uuid.NewString(),
		GroupID:     group.ID,
		Nickname:    "carol",
		DeviceToken: "device-c",
		JoinedAt:    time.Now(),
	}
	if err := repo.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	resp := postJSON(t, fmt.Sprintf("%s/api/sessions/%s/messages", srv.URL, sess.ID), map[string]string{
		"body": "Here is my outline",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var turn struct {
		ParticipantMessage *domain.Message `json:"participant_message"`
		AssistantMessage   *domain.Message `json:"assistant_message"`
		Progress           int             `json:"progress"`
		Completed          bool            `json:"completed"`
		Degraded           bool            `json:"degraded"`
	}
	decodeBody(t, resp, &turn)
	if turn.Degraded || turn.Completed {
		t.Errorf("Unexpected turn flags: %+v", turn)
	}
	if turn.Progress != 33 {
		t.Errorf("Expected progress 33, got %d", turn.Progress)
	}
	if turn.AssistantMessage == nil || turn.AssistantMessage.Body != "Nice work on the outline." {
		t.Errorf("Unexpected assistant message: %+v", turn.AssistantMessage)
	}

	// An empty body is a validation error.
	resp = postJSON(t, fmt.Sprintf("%s/api/sessions/%s/messages", srv.URL, sess.ID), map[string]string{
		"body": "  ",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for a blank body, got %d", resp.StatusCode)
	}

	// The conversation lists both sides, and the key view only the contribution.
	var listed struct {
		Messages []*domain.Message `json:"messages"`
	}
	resp, err := http.Get(fmt.Sprintf("%s/api/sessions/%s/messages", srv.URL, sess.ID))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	decodeBody(t, resp, &listed)
	if len(listed.Messages) != 2 {
		t.Errorf("Expected 2 messages, got %d", len(listed.Messages))
	}

	resp, err = http.Get(fmt.Sprintf("%s/api/sessions/%s/messages/key", srv.URL, sess.ID))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	decodeBody(t, resp, &listed)
	if len(listed.Messages) != 1 || listed.Messages[0].Sender != domain.SenderParticipant {
		t.Errorf("Expected one key participant message, got %d", len(listed.Messages))
	}
}

func TestResolveAlertEndpoint(t *testing.T) {
	srv, repo := newTestServer(t)
	group := seedConfirmedGroup(t, repo)
	ctx := context.Background()

	sess := &domain.ParticipantSession{
		ID:          uuid.NewString(),
		GroupID:     group.ID,
		Nickname:    "dave",
		DeviceToken: "device-d",
		JoinedAt:    time.Now(),
	}
	if err := repo.CreateSession(ctx, sess); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	alert, _, err := repo.CreateAlertIfNone(ctx, sess.ID, domain.AlertInactivity)
	if err != nil {
		t.Fatalf("Failed to create alert: %v", err)
	}

	resp := postJSON(t, srv.URL+"/api/alerts/"+alert.ID+"/resolve", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var resolved struct {
		Alert *domain.Alert `json:"alert"`
	}
	decodeBody(t, resp, &resolved)
	if !resolved.Alert.Resolved {
		t.Error("Expected the alert to be resolved")
	}

	// Resolving again is a no-op, not an error.
	resp = postJSON(t, srv.URL+"/api/alerts/"+alert.ID+"/resolve", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 on repeat, got %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/alerts/missing/resolve", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown alert, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var health struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeBody(t, resp, &health)
	if health.Status != "healthy" || health.Checks["database"] != "ok" {
		t.Errorf("Unexpected health payload: %+v", health)
	}
}

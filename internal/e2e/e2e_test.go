package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/toddfishman/meetini/internal/clock"
	"github.com/toddfishman/meetini/internal/config"
	"github.com/toddfishman/meetini/internal/migration"
	"github.com/toddfishman/meetini/internal/notification"
	"github.com/toddfishman/meetini/internal/observability"
	"github.com/toddfishman/meetini/internal/providers/email"
	"github.com/toddfishman/meetini/internal/providers/sms"
	"github.com/toddfishman/meetini/internal/scheduler"
	"github.com/toddfishman/meetini/internal/server"
	"github.com/toddfishman/meetini/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	e2eAPIKey     = "e2e-api-key"
	e2eCronSecret = "e2e-cron-secret"
)

type sentEmail struct {
	to       []string
	template string
}

// recordingEmail stands in for SMTP so the test can see what went out.
type recordingEmail struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (r *recordingEmail) Send(_ context.Context, to []string, subject string, _ string, _ ...email.SendOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentEmail{to: to, template: subject})
	return nil
}

func (r *recordingEmail) SendTemplate(_ context.Context, to []string, templateName string, _ map[string]any, _ ...email.SendOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentEmail{to: to, template: templateName})
	return nil
}

func (r *recordingEmail) reset() {
	r.mu.Lock()
	r.sent = nil
	r.mu.Unlock()
}

func (r *recordingEmail) snapshot() []sentEmail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentEmail(nil), r.sent...)
}

type testEnv struct {
	app       *fx.App
	db        *gorm.DB
	baseURL   string
	scheduler *scheduler.Scheduler
	email     *recordingEmail
	httpSrv   *httptest.Server
}

var env *testEnv

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	setDefaultEnv()

	var err error
	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		os.Exit(1)
	}

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func TestE2E_HealthCheck(t *testing.T) {
	resp, _ := doJSON(t, http.MethodGet, env.baseURL+"/health", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestE2E_TriggerRequiresSecret(t *testing.T) {
	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/api/cron/reminders", nil, map[string]string{
		"X-Cron-Secret": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d: %s", resp.StatusCode, string(body))
	}
}

func TestE2E_InvitationReminderLifecycle(t *testing.T) {
	resetDatabase(t, env.db)
	env.email.reset()

	meeting := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	invitationID, participantIDs := createInvitation(t, meeting)

	run := triggerRun(t)
	if run.Dispatch.Sent != 1 {
		t.Fatalf("expected one reminder sent, got %+v", run.Dispatch)
	}
	sent := env.email.snapshot()
	if len(sent) != 2 {
		t.Fatalf("expected two invitation emails, got %d", len(sent))
	}
	for _, msg := range sent {
		if msg.template != "reminder_invitation" {
			t.Fatalf("unexpected template %q", msg.template)
		}
	}

	run = triggerRun(t)
	if run.Dispatch.Sent != 0 || run.Dispatch.Due != 0 {
		t.Fatalf("expected nothing due on the second run, got %+v", run.Dispatch)
	}
	if got := len(env.email.snapshot()); got != 2 {
		t.Fatalf("expected no new emails, got %d total", got)
	}

	for _, participantID := range participantIDs {
		resp, body := doJSON(t, http.MethodPost, env.baseURL+"/api/invitations/"+invitationID+"/responses", map[string]string{
			"participant_id": participantID,
			"status":         "accepted",
		}, apiHeaders())
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("respond: expected 200, got %d: %s", resp.StatusCode, string(body))
		}
	}

	reminders := listReminders(t, invitationID)
	var upcoming int
	for _, r := range reminders {
		if r.Type == "upcoming_meeting" {
			upcoming++
			if !r.ScheduledFor.Equal(meeting.Add(-time.Hour)) {
				t.Fatalf("upcoming reminder at %s, want %s", r.ScheduledFor, meeting.Add(-time.Hour))
			}
		}
	}
	if upcoming != 1 {
		t.Fatalf("expected one upcoming reminder, got %d", upcoming)
	}

	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/api/invitations/"+invitationID+"/cancel", nil, apiHeaders())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d: %s", resp.StatusCode, string(body))
	}

	run = triggerRun(t)
	if run.Cleanup.CancelledDeleted == 0 {
		t.Fatalf("expected cancelled reminders to be swept, got %+v", run.Cleanup)
	}
	if got := len(listReminders(t, invitationID)); got != 0 {
		t.Fatalf("expected no reminders left, got %d", got)
	}
}

func startEnv() (*testEnv, error) {
	var (
		engine      *gin.Engine
		dbConn      *gorm.DB
		schedulerSv *scheduler.Scheduler
	)
	recorder := &recordingEmail{}

	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		db.Module,
		migration.Module,
		clock.Module,
		fx.Provide(func() (*snowflake.Node, error) {
			return snowflake.NewNode(1)
		}),
		fx.Provide(func() email.Provider { return recorder }),
		fx.Provide(func(log *zap.Logger) sms.Provider { return &sms.NoOpProvider{Log: log} }),
		notification.Module,
		server.Module,
		scheduler.Module,
		fx.Populate(&engine, &dbConn, &schedulerSv),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	httpSrv := httptest.NewServer(engine)

	return &testEnv{
		app:       app,
		db:        dbConn,
		baseURL:   httpSrv.URL,
		scheduler: schedulerSv,
		email:     recorder,
		httpSrv:   httpSrv,
	}, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
}

func setDefaultEnv() {
	setEnvIfEmpty("ENVIRONMENT", "test")
	setEnvIfEmpty("LOG_LEVEL", "error")
	setEnvIfEmpty("OTEL_ENABLED", "false")
	setEnvIfEmpty("HTTP_ADDR", "127.0.0.1:0")
	setEnvIfEmpty("DATABASE_TYPE", "sqlite")
	setEnvIfEmpty("DATABASE_NAME", "file:meetini_e2e?mode=memory&cache=shared")
	setEnvIfEmpty("DATABASE_MAX_OPEN_CONN", "1")
	setEnvIfEmpty("DATABASE_METRICS_ENABLED", "false")
	setEnvIfEmpty("API_KEYS", e2eAPIKey)
	setEnvIfEmpty("REMINDER_CRON_SECRET", e2eCronSecret)
	setEnvIfEmpty("REMINDER_LINK_SECRET", "e2e-link-secret")
	setEnvIfEmpty("PUBLIC_BASE_URL", "https://meetini.test")
}

func setEnvIfEmpty(key, value string) {
	if strings.TrimSpace(os.Getenv(key)) != "" {
		return
	}
	_ = os.Setenv(key, value)
}

func resetDatabase(t *testing.T, dbConn *gorm.DB) {
	t.Helper()
	for _, table := range []string{"reminders", "participants", "invitation_preferences", "invitations"} {
		if err := dbConn.Exec("DELETE FROM " + table).Error; err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
}

func apiHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + e2eAPIKey}
}

func createInvitation(t *testing.T, meeting time.Time) (string, []string) {
	t.Helper()

	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/api/invitations", map[string]any{
		"title":          "Quarterly sync",
		"created_by":     "organizer@example.com",
		"proposed_times": []time.Time{meeting},
		"participants": []map[string]any{
			{"email": "a@example.com", "name": "A"},
			{"email": "b@example.com", "name": "B"},
		},
	}, apiHeaders())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create invitation: expected 201, got %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		Data struct {
			ID           string `json:"id"`
			Participants []struct {
				ID string `json:"id"`
			} `json:"participants"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode invitation: %v", err)
	}
	ids := make([]string, 0, len(out.Data.Participants))
	for _, p := range out.Data.Participants {
		ids = append(ids, p.ID)
	}
	return out.Data.ID, ids
}

type runResponse struct {
	Status   string `json:"status"`
	Dispatch struct {
		Due  int `json:"due"`
		Sent int `json:"sent"`
	} `json:"dispatch"`
	Cleanup struct {
		CancelledDeleted int64 `json:"cancelled_deleted"`
	} `json:"cleanup"`
}

func triggerRun(t *testing.T) runResponse {
	t.Helper()

	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/api/cron/reminders", nil, map[string]string{
		"X-Cron-Secret": e2eCronSecret,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("trigger: expected 200, got %d: %s", resp.StatusCode, string(body))
	}
	var out runResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if out.Status != "ok" {
		t.Fatalf("unexpected run status %q", out.Status)
	}
	return out
}

type reminderRow struct {
	Type         string    `json:"type"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Sent         bool      `json:"sent"`
}

func listReminders(t *testing.T, invitationID string) []reminderRow {
	t.Helper()

	resp, body := doJSON(t, http.MethodGet, env.baseURL+"/api/invitations/"+invitationID+"/reminders", nil, apiHeaders())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list reminders: expected 200, got %d: %s", resp.StatusCode, string(body))
	}
	var out struct {
		Data []reminderRow `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode reminders: %v", err)
	}
	return out.Data
}

func doJSON(t *testing.T, method, reqURL string, payload any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode json: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, reqURL, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

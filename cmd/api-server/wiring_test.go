package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"admissions-forms/internal/common/auth"
	"admissions-forms/internal/common/config"
	"admissions-forms/internal/common/logger"
	"admissions-forms/internal/forms"
	"admissions-forms/internal/models"
	"admissions-forms/internal/notify"
	"admissions-forms/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Startup helpers
// ==========================

func TestRetryWithBackoff(t *testing.T) {
	log := logger.NewTestLogger(t)

	calls := 0
	err := retryWithBackoff(func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, 5, time.Millisecond, log, "dial")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = retryWithBackoff(func() error {
		calls++
		return errors.New("connection refused")
	}, 2, time.Millisecond, log, "dial")
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "dial failed after 2 attempts")
}

func TestSMSPriorities(t *testing.T) {
	got := smsPriorities([]string{"High", " urgent ", "critical", ""})
	assert.Equal(t, []models.Priority{models.PriorityHigh, models.PriorityUrgent}, got)
	assert.Empty(t, smsPriorities(nil))
}

func TestBuildVerifier(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.AuthConfig)
		want    interface{}
		wantErr bool
	}{
		{"jwt default", func(c *config.AuthConfig) { c.JWT.Secret = "s3cret" }, &auth.JWTVerifier{}, false},
		{"jwt without secret", func(c *config.AuthConfig) { c.Provider = "jwt" }, nil, true},
		{"keycloak", func(c *config.AuthConfig) {
			c.Provider = "keycloak"
			c.Keycloak.URL = "http://keycloak:8080"
			c.Keycloak.Realm = "admissions"
		}, &auth.KeycloakClient{}, false},
		{"keycloak without realm", func(c *config.AuthConfig) {
			c.Provider = "keycloak"
			c.Keycloak.URL = "http://keycloak:8080"
		}, nil, true},
		{"unknown", func(c *config.AuthConfig) { c.Provider = "ldap" }, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg config.AuthConfig
			tt.mutate(&cfg)
			v, err := buildVerifier(cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, v)
		})
	}
}

func TestBuildSenders(t *testing.T) {
	ctx := context.Background()
	log := logger.NewTestLogger(t)

	cfg := &config.Config{}
	cfg.Notifications.Email.Enabled = true
	cfg.Notifications.Email.Provider = "console"
	senders, err := buildSenders(ctx, cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &notify.ConsoleSender{}, senders[notify.ChannelEmail])
	assert.NotContains(t, senders, notify.ChannelSMS)

	cfg.Notifications.Email.Provider = "sendgrid"
	_, err = buildSenders(ctx, cfg, log)
	assert.Error(t, err)

	cfg.Integrations.SendGrid.APIKey = "SG.key"
	senders, err = buildSenders(ctx, cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &notify.SendGridSender{}, senders[notify.ChannelEmail])

	cfg.Notifications.Email.Provider = "pigeon"
	_, err = buildSenders(ctx, cfg, log)
	assert.Error(t, err)

	cfg.Notifications.Email.Enabled = false
	senders, err = buildSenders(ctx, cfg, log)
	require.NoError(t, err)
	assert.Empty(t, senders)
}

// ==========================
// Seeding
// ==========================

type fakeSeeder struct {
	got []registry.FormTemplate
}

func (f *fakeSeeder) Seed(_ context.Context, _ string, templates []registry.FormTemplate) (forms.SeedResult, error) {
	f.got = templates
	return forms.SeedResult{Created: len(templates)}, nil
}

func TestSeedForms(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	reg := registry.New(now)
	fields := []registry.Field{{Name: "fullName", Label: "Full Name", Type: "text", Required: true}}
	require.NoError(t, reg.Add(registry.FormTemplate{ID: "general-enquiry", Name: "General Enquiry", Category: "general", Status: registry.StatusPublished, Fields: fields}, now))
	require.NoError(t, reg.Add(registry.FormTemplate{ID: "french-a1", Name: "French A1", Category: "language-course", Fields: fields}, now))

	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, registry.SaveRegistry(reg, path))

	s := &fakeSeeder{}
	require.NoError(t, seedForms(context.Background(), s, path, logger.NewTestLogger(t)))
	require.Len(t, s.got, 1)
	assert.Equal(t, "general-enquiry", s.got[0].ID)

	err := seedForms(context.Background(), s, filepath.Join(t.TempDir(), "missing.json"), logger.NewTestLogger(t))
	assert.Error(t, err)
}

// ==========================
// Migrate command
// ==========================

type fakeMigrator struct {
	command string
	args    []string
	err     error
}

func (f *fakeMigrator) RunMigrations(_ context.Context, command string, args ...string) error {
	f.command, f.args = command, args
	return f.err
}

func TestRunMigrate(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantCommand string
		wantArgs    []string
	}{
		{"defaults to up", nil, "up", []string{}},
		{"status", []string{"status"}, "status", []string{}},
		{"down-to with version", []string{"down-to", "0"}, "down-to", []string{"0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMigrator{}
			require.NoError(t, runMigrate(context.Background(), m, tt.args, logger.NewTestLogger(t)))
			assert.Equal(t, tt.wantCommand, m.command)
			assert.ElementsMatch(t, tt.wantArgs, m.args)
		})
	}

	m := &fakeMigrator{err: errors.New(`"lol": no such command`)}
	err := runMigrate(context.Background(), m, []string{"lol"}, logger.NewTestLogger(t))
	assert.EqualError(t, err, `"lol": no such command`)
}

// ==========================
// Readiness
// ==========================

func TestReadyHandler(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: refused") }

	tests := []struct {
		name       string
		checks     map[string]func(context.Context) error
		wantStatus int
		wantBody   string
	}{
		{"all up", map[string]func(context.Context) error{"postgres": ok, "redis": ok}, http.StatusOK, "ready"},
		{"redis down", map[string]func(context.Context) error{"postgres": ok, "redis": down}, http.StatusServiceUnavailable, "not ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			readyHandler(tt.checks)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body struct {
				Status       string            `json:"status"`
				Dependencies map[string]string `json:"dependencies"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantBody, body.Status)
			assert.Equal(t, "ok", body.Dependencies["postgres"])
		})
	}
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

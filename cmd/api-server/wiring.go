package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"admissions-forms/internal/common/auth"
	"admissions-forms/internal/common/aws"
	"admissions-forms/internal/common/config"
	"admissions-forms/internal/common/logger"
	"admissions-forms/internal/forms"
	"admissions-forms/internal/models"
	"admissions-forms/internal/notify"
	"admissions-forms/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// buildSenders picks the email provider and, when enabled, the SMS sender.
func buildSenders(ctx context.Context, cfg *config.Config, log logger.Logger) (map[notify.Channel]notify.Sender, error) {
	senders := map[notify.Channel]notify.Sender{}
	email := cfg.Notifications.Email

	if email.Enabled {
		layout := notify.NewLayout(email.FromName)
		switch strings.ToLower(email.Provider) {
		case "ses":
			client, err := aws.NewSESClient(ctx, cfg.Integrations.AWS.Region)
			if err != nil {
				return nil, err
			}
			from := (&mail.Address{Name: email.FromName, Address: email.FromEmail}).String()
			senders[notify.ChannelEmail] = notify.NewSESSender(client, from, layout)
		case "sendgrid":
			sg := cfg.Integrations.SendGrid
			if sg.APIKey == "" {
				return nil, fmt.Errorf("sendgrid provider selected without an api key")
			}
			senders[notify.ChannelEmail] = notify.NewSendGridSender(sg.APIKey, sg.Host, email.FromName, email.FromEmail, layout)
		case "", "console":
			senders[notify.ChannelEmail] = notify.NewConsoleSender(log)
		default:
			return nil, fmt.Errorf("unknown email provider %q", email.Provider)
		}
	}

	if cfg.Notifications.SMS.Enabled {
		client, err := aws.NewSNSClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			return nil, err
		}
		senders[notify.ChannelSMS] = notify.NewSMSSender(client, cfg.Integrations.AWS.SNS.DefaultSMSSenderID)
	}
	return senders, nil
}

func buildVerifier(cfg config.AuthConfig) (auth.TokenVerifier, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "jwt":
		if cfg.JWT.Secret == "" {
			return nil, fmt.Errorf("auth.jwt.secret is required")
		}
		return auth.NewJWTVerifier(cfg.JWT.Secret, cfg.JWT.Issuer), nil
	case "keycloak":
		kc := cfg.Keycloak
		if kc.URL == "" || kc.Realm == "" {
			return nil, fmt.Errorf("auth.keycloak.url and realm are required")
		}
		return auth.NewKeycloakClient(kc.URL, kc.Realm, kc.ClientID, kc.ClientSecret), nil
	default:
		return nil, fmt.Errorf("unknown auth provider %q", cfg.Provider)
	}
}

// smsPriorities drops unknown priority names.
func smsPriorities(names []string) []models.Priority {
	var out []models.Priority
	for _, n := range names {
		p := models.Priority(strings.ToLower(strings.TrimSpace(n)))
		if p.Valid() {
			out = append(out, p)
		}
	}
	return out
}

type seeder interface {
	Seed(ctx context.Context, actorID string, templates []registry.FormTemplate) (forms.SeedResult, error)
}

// seedForms creates the registry's published templates that do not exist yet.
func seedForms(ctx context.Context, svc seeder, path string, log logger.Logger) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return err
	}
	res, err := svc.Seed(ctx, "", reg.Published())
	if err != nil {
		return err
	}
	log.Info("form registry seeded", map[string]interface{}{
		"path":    path,
		"created": res.Created,
		"skipped": res.Skipped,
		"failed":  res.Failed,
	})
	return nil
}

type migrator interface {
	RunMigrations(ctx context.Context, command string, args ...string) error
}

// runMigrate handles `api-server migrate [command] [args...]`. The command
// defaults to up.
func runMigrate(ctx context.Context, m migrator, args []string, log logger.Logger) error {
	command := "up"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}
	log.Info("Running database migrations", map[string]interface{}{
		"command": command,
		"args":    args,
	})
	return m.RunMigrations(ctx, command, args...)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// readyHandler runs every dependency check and answers 503 if any fails.
func readyHandler(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				deps[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}

		body := map[string]interface{}{
			"status":       "ready",
			"dependencies": deps,
			"time":         time.Now().UTC().Format(time.RFC3339),
		}
		if status != http.StatusOK {
			body["status"] = "not ready"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

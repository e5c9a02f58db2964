package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// MergeSecrets fills unset secret fields from Google Secret Manager. Called
// only when SECRETS_PROJECT is set; individual lookup failures are logged and
// skipped so a missing secret does not block startup when the env var is the
// real source.
func MergeSecrets(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("create secretmanager client: %w", err)
	}
	defer client.Close()

	targets := map[string]*string{
		"worker-auth-token": &cfg.AuthToken,
		"worker-secret":     &cfg.WorkerSecret,
	}

	for secretID, field := range targets {
		if *field != "" {
			continue // env wins
		}
		name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", cfg.SecretsProject, secretID)
		resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
		if err != nil {
			logger.Warn("secret lookup failed", "secret", secretID, "err", err)
			continue
		}
		*field = strings.TrimSpace(string(resp.GetPayload().GetData()))
		logger.Info("config loaded from secret manager", "secret", secretID)
	}
	return nil
}

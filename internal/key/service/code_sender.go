package service

import (
	"context"
	"log/slog"

	"dictkeys/internal/key/models"
	"dictkeys/pkg/email"
)

// LogCodeSender writes codes to the log instead of delivering them. It is
// the default for local runs where no SMS or mail relay exists. The code is
// logged at debug level only.
type LogCodeSender struct {
	Logger *slog.Logger
}

func (l LogCodeSender) SendCode(ctx context.Context, key *models.Key, code string) error {
	attrs := []any{"key_id", key.ID, "destination", maskDestination(key)}
	if key.Type == models.KeyTypeEmail {
		attrs = append(attrs, "email_domain", email.Domain(key.Value))
	}
	l.Logger.InfoContext(ctx, "verification code issued", attrs...)
	l.Logger.DebugContext(ctx, "verification code", "key_id", key.ID, "code", code)
	return nil
}

func maskDestination(key *models.Key) string {
	if key.Type == models.KeyTypeEmail {
		return email.Mask(key.Value)
	}
	if n := len(key.Value); n > 4 {
		return key.Value[:3] + "*****" + key.Value[n-2:]
	}
	return "****"
}

package identity

import (
	"context"

	"github.com/angelmondragon/storefront/pkg/logger"
)

// ConfirmationSender delivers the email confirmation token to the user.
type ConfirmationSender interface {
	SendConfirmation(ctx context.Context, email, token string) error
}

// LogSender writes confirmation tokens to the log; used for local installs without a mailer.
type LogSender struct {
	Logg *logger.Logger
}

func (s LogSender) SendConfirmation(ctx context.Context, email, token string) error {
	logg := s.Logg
	if logg == nil {
		logg = logger.Nop()
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"email": email, "confirmation_token": token}), "email confirmation pending")
	return nil
}

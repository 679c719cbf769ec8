// Package mailer delivers the password reset and email verification links.
package mailer

import (
	"context"
	"log/slog"
	"time"
)

// Mailer sends one message per call. link already carries the token.
type Mailer interface {
	SendPasswordReset(ctx context.Context, toEmail, link string, expiresIn time.Duration) error
	SendEmailVerification(ctx context.Context, toEmail, link string, expiresIn time.Duration) error
}

// LogMailer writes messages to the structured log instead of sending them.
// It is the delivery backend for development and single-instance demos.
type LogMailer struct {
	Logger *slog.Logger
}

func (m *LogMailer) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, toEmail, link string, expiresIn time.Duration) error {
	m.logger().InfoContext(ctx, "password reset email", "to", toEmail, "link", link, "expires_in", expiresIn.String())
	return nil
}

func (m *LogMailer) SendEmailVerification(ctx context.Context, toEmail, link string, expiresIn time.Duration) error {
	m.logger().InfoContext(ctx, "verification email", "to", toEmail, "link", link, "expires_in", expiresIn.String())
	return nil
}

// NopMailer discards every message.
type NopMailer struct{}

func (NopMailer) SendPasswordReset(context.Context, string, string, time.Duration) error {
	return nil
}

func (NopMailer) SendEmailVerification(context.Context, string, string, time.Duration) error {
	return nil
}
